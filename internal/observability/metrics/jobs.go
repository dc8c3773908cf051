// Package metrics standardises the metric names and tags emitted around job
// state transitions so dashboards can pivot on job_type and result without
// per-call-site drift.
package metrics

import (
	"time"

	obserrors "github.com/danavision/discovery-go/internal/observability/errors"
	"github.com/danavision/discovery-go/internal/observability/statsd"
)

// Result tag values. Noop covers transitions that matched nothing, such as a
// cancel that raced a completion.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric is one job lifecycle event.
type JobMetric struct {
	JobType    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle counts the transition and, when a duration is known, times
// it. Errors are classified into an error_class tag so failure spikes can be
// split by taxonomy code.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := in.tags()
	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		// Each emission gets its own map; the sink may retain tags.
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// tags renders the event as a tag map. Empty values are skipped so the
// metrics backend never sees blank tag members.
func (m JobMetric) tags() map[string]string {
	tags := make(map[string]string, 4)
	putTag(tags, "job_type", m.JobType)
	putTag(tags, "transition", m.Transition)
	putTag(tags, "result", m.Result)

	if m.Err != nil && m.Result == ResultError {
		putTag(tags, "error_class", obserrors.Classify(m.Err))
	}
	return tags
}

func putTag(tags map[string]string, key, value string) {
	if value != "" {
		tags[key] = value
	}
}

// CloneTags shallow-copies a tag map so one event's tags can feed several
// emissions without aliasing. Returns nil for an empty source.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
