package testutil

import (
	"encoding/json"

	"github.com/danavision/discovery-go/internal/domain/model"
)

// JobRequestBuilder builds CreateJobRequest values for tests. The zero
// builder from NewJobRequest is a valid mid-priority price search.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest starts a builder with usable defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Type:     model.JobTypePriceSearch,
			Priority: 50,
			Input:    json.RawMessage(`{"query": "wireless headphones"}`),
		},
	}
}

// WithType sets the job type.
func (b *JobRequestBuilder) WithType(jobType model.JobType) *JobRequestBuilder {
	b.req.Type = jobType
	return b
}

// WithPriority sets the job priority.
func (b *JobRequestBuilder) WithPriority(priority int) *JobRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithInputString sets the job input from a JSON string.
func (b *JobRequestBuilder) WithInputString(input string) *JobRequestBuilder {
	b.req.Input = json.RawMessage(input)
	return b
}

// Build returns the constructed request.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// PriceSearchJobRequest is a ready-made price search request.
func PriceSearchJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithType(model.JobTypePriceSearch).
		WithInputString(`{"query": "usb-c charger", "options": {"max_results": 10}}`).
		Build()
}

// LowPriorityJobRequest is a request that sorts behind the defaults.
func LowPriorityJobRequest() *model.CreateJobRequest {
	return NewJobRequest().
		WithPriority(-50).
		WithInputString(`{"query": "background"}`).
		Build()
}
