// Package notify defines the shared shape of job failure notifications
// consumed by the Slack and PagerDuty sinks.
package notify

import (
	"context"
	"time"
)

// Severity values recognised by downstream sinks.
const (
	SeverityCritical = "critical"
)

// JobFailurePayload is one terminally failed job, flattened for delivery.
// ErrorClass carries the taxonomy code so alert routing can key on it.
type JobFailurePayload struct {
	JobID      string
	JobType    string
	OwnerID    string
	Scope      string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Normalize fills the fields every sink expects to be set: Severity
// defaults to critical and OccurredAt to the current time. Empty
// Metadata maps collapse to nil so payload comparisons stay simple.
func (p *JobFailurePayload) Normalize() {
	if p.Severity == "" {
		p.Severity = SeverityCritical
	}
	if p.OccurredAt.IsZero() {
		p.OccurredAt = time.Now()
	}
	if len(p.Metadata) == 0 {
		p.Metadata = nil
	}
}

// Sink delivers job failure notifications to one destination.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements Sink. A nil SinkFunc drops the payload.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
