package httpx

import (
	"log/slog"
	"net/http"

	"github.com/danavision/discovery-go/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs   *service.JobService
	Stores *service.StoreService
	// Identity resolves the caller and stores the user id in the request
	// context. When nil, API routes are registered without identity and
	// handlers reject every request as unauthenticated.
	Identity func(http.Handler) http.Handler
	Logger   *slog.Logger // Logger for HTTP errors (optional)
	// Readiness probes for /readyz. Zero value means /readyz always reports
	// ready, which suits tests and API-only deployments.
	Readiness ReadinessChecks
}

// NewRouter creates and configures a new HTTP router. Every /api route runs
// behind the identity middleware; /healthz and /readyz stay open for probes.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs}
	storeHandlers := &StoreHandlers{Svc: services.Stores}

	wrap := identityWrap(services.Identity)
	registerJobRoutes(mux, jobHandlers, wrap)
	registerStoreRoutes(mux, storeHandlers, wrap)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	ready := readyHandler(services.Readiness)
	mux.Handle("GET /readyz", ready)
	mux.Handle("HEAD /readyz", ready)

	return mux
}

// identityWrap returns a no-op wrapper when identity is nil.
func identityWrap(identity func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if identity == nil {
		return func(h http.Handler) http.Handler { return h }
	}
	return identity
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers, wrap func(http.Handler) http.Handler) {
	mux.Handle("POST /api/jobs", wrap(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/jobs", wrap(http.HandlerFunc(h.List)))
	mux.Handle("DELETE /api/jobs", wrap(http.HandlerFunc(h.ClearHistory)))
	// Literal segments take precedence over {id} in the mux, so active and
	// stats never collide with job ids.
	mux.Handle("GET /api/jobs/active", wrap(http.HandlerFunc(h.ListActive)))
	mux.Handle("GET /api/jobs/stats", wrap(http.HandlerFunc(h.Stats)))
	mux.Handle("GET /api/jobs/{id}", wrap(http.HandlerFunc(h.Get)))
	mux.Handle("GET /api/jobs/{id}/status", wrap(http.HandlerFunc(h.GetStatus)))
	mux.Handle("POST /api/jobs/{id}/cancel", wrap(http.HandlerFunc(h.Cancel)))
	mux.Handle("DELETE /api/jobs/{id}", wrap(http.HandlerFunc(h.Delete)))
}

func registerStoreRoutes(mux *http.ServeMux, h *StoreHandlers, wrap func(http.Handler) http.Handler) {
	mux.Handle("GET /api/stores", wrap(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/stores", wrap(http.HandlerFunc(h.Add)))
	mux.Handle("PATCH /api/stores/{id}/preference", wrap(http.HandlerFunc(h.SetPreference)))
	mux.Handle("DELETE /api/stores/{id}", wrap(http.HandlerFunc(h.Delete)))
}
