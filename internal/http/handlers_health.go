package httpx

import (
	"context"
	"io"
	"net/http"
	"time"
)

const readyCheckTimeout = 2 * time.Second

// healthHandler answers liveness probes. It reports only that the process is
// serving; dependency state belongs to /readyz.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, `{"status":"ok"}`); err != nil {
		// Client connection is gone.
		return
	}
}

// ReadinessChecks holds dependency probes for /readyz. Nil entries are
// skipped, so an API-only deployment without Redis still reports ready.
type ReadinessChecks struct {
	Postgres func(ctx context.Context) error
	Cache    func(ctx context.Context) error
}

// readyHandler answers readiness probes by pinging each configured
// dependency. Any failure returns 503 naming the component so probes show
// which dependency is down.
func readyHandler(checks ReadinessChecks) http.HandlerFunc {
	probes := []struct {
		name  string
		check func(ctx context.Context) error
	}{
		{name: "postgres", check: checks.Postgres},
		{name: "cache", check: checks.Cache},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		for _, p := range probes {
			if p.check == nil {
				continue
			}
			if err := p.check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				if r.Method != http.MethodHead {
					_, _ = io.WriteString(w, `{"status":"unavailable","component":"`+p.name+`"}`)
				}
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = io.WriteString(w, `{"status":"ok"}`)
		}
	}
}
