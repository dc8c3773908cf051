// Package runlog provides the structured execution trace attached to every
// discovery job. Handlers append leveled entries and bump counters as a run
// progresses; the final log is serialized into the job output so failures
// and partial results stay explainable after the fact.
package runlog

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Level classifies a run log entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelDebug   Level = "debug"
)

// Counter names tracked across a discovery run.
const (
	CounterURLsAttempted    = "urls_attempted"
	CounterURLsSucceeded    = "urls_succeeded"
	CounterURLsFailed       = "urls_failed"
	CounterTier1Results     = "tier1_results"
	CounterTier2Results     = "tier2_results"
	CounterPricesFound      = "prices_found"
	CounterProvidersQueried = "providers_queried"
	CounterProvidersFailed  = "providers_failed"
)

// Entry is one run log line.
type Entry struct {
	Level   Level          `json:"level"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// Stats summarizes a run: counters, error/warning totals, and the elapsed
// duration. Duration is computed lazily at read time, not stored.
type Stats struct {
	StartedAt    time.Time      `json:"started_at"`
	DurationMS   int64          `json:"duration_ms"`
	Counters     map[string]int `json:"counters"`
	ErrorCount   int            `json:"error_count"`
	WarningCount int            `json:"warning_count"`
	EntryCount   int            `json:"entry_count"`
}

// Logger is an append-only run log. Safe for concurrent use; fan-out stages
// log fetch attempts from multiple goroutines.
type Logger struct {
	mu       sync.Mutex
	scope    string
	started  time.Time
	entries  []Entry
	counters map[string]int
	errors   int
	warnings int
	now      func() time.Time
}

// New creates a run logger scoped to one job run.
func New(scope string) *Logger {
	l := &Logger{
		scope:    scope,
		counters: make(map[string]int),
		now:      time.Now,
	}
	l.started = l.now()
	return l
}

// Scope returns the scope the logger was created with.
func (l *Logger) Scope() string {
	return l.scope
}

func (l *Logger) append(level Level, msg string, payload map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, Entry{
		Level:   level,
		Message: msg,
		Payload: payload,
		At:      l.now(),
	})
	switch level {
	case LevelError:
		l.errors++
	case LevelWarning:
		l.warnings++
	}
}

// Info appends an informational entry.
func (l *Logger) Info(msg string, payload map[string]any) {
	l.append(LevelInfo, msg, payload)
}

// Success appends a success entry.
func (l *Logger) Success(msg string, payload map[string]any) {
	l.append(LevelSuccess, msg, payload)
}

// Warning appends a warning entry.
func (l *Logger) Warning(msg string, payload map[string]any) {
	l.append(LevelWarning, msg, payload)
}

// Error appends an error entry. Run errors never abort the run by
// themselves; they feed the completed-with-warnings summary.
func (l *Logger) Error(msg string, payload map[string]any) {
	l.append(LevelError, msg, payload)
}

// Debug appends a debug entry.
func (l *Logger) Debug(msg string, payload map[string]any) {
	l.append(LevelDebug, msg, payload)
}

// Count adds delta to the named counter.
func (l *Logger) Count(name string, delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters[name] += delta
}

// FetchAttempt records one URL fetch outcome and bumps the URL counters.
func (l *Logger) FetchAttempt(url string, ok bool, errMsg string) {
	l.Count(CounterURLsAttempted, 1)
	if ok {
		l.Count(CounterURLsSucceeded, 1)
		l.append(LevelDebug, "fetched "+url, nil)
		return
	}
	l.Count(CounterURLsFailed, 1)
	payload := map[string]any{"url": url}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	l.append(LevelWarning, "fetch failed", payload)
}

// PriceExtraction records one price extraction outcome.
func (l *Logger) PriceExtraction(store string, found bool, price float64) {
	if found {
		l.Count(CounterPricesFound, 1)
		l.append(LevelSuccess, fmt.Sprintf("price found at %s", store), map[string]any{
			"store": store,
			"price": price,
		})
		return
	}
	l.append(LevelWarning, "price_not_found", map[string]any{"store": store})
}

// TierComplete records completion of a discovery tier and its result count.
func (l *Logger) TierComplete(tier int, resultCount int) {
	switch tier {
	case 1:
		l.Count(CounterTier1Results, resultCount)
	case 2:
		l.Count(CounterTier2Results, resultCount)
	}
	l.append(LevelInfo, fmt.Sprintf("tier %d complete", tier), map[string]any{
		"tier":    tier,
		"results": resultCount,
	})
}

// HasErrors reports whether any error entries were logged.
func (l *Logger) HasErrors() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors > 0
}

// ErrorCount returns the number of error entries logged.
func (l *Logger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors
}

// WarningCount returns the number of warning entries logged.
func (l *Logger) WarningCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warnings
}

// Counter returns the current value of a named counter.
func (l *Logger) Counter(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters[name]
}

// Entries returns a copy of the logged entries in append order.
func (l *Logger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Stats computes the run summary at call time.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	counters := make(map[string]int, len(l.counters))
	for k, v := range l.counters {
		counters[k] = v
	}
	return Stats{
		StartedAt:    l.started,
		DurationMS:   l.now().Sub(l.started).Milliseconds(),
		Counters:     counters,
		ErrorCount:   l.errors,
		WarningCount: l.warnings,
		EntryCount:   len(l.entries),
	}
}

// serialized is the JSON shape embedded into job output under "run_log".
type serialized struct {
	Scope   string  `json:"scope"`
	Entries []Entry `json:"entries"`
	Stats   Stats   `json:"stats"`
}

// MarshalJSON serializes the log with its computed stats.
func (l *Logger) MarshalJSON() ([]byte, error) {
	stats := l.Stats()
	entries := l.Entries()
	return json.Marshal(serialized{
		Scope:   l.scope,
		Entries: entries,
		Stats:   stats,
	})
}
