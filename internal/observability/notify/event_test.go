package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobFailurePayloadNormalize(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		p := JobFailurePayload{JobID: "j-1", Metadata: map[string]string{}}
		p.Normalize()

		assert.Equal(t, SeverityCritical, p.Severity)
		assert.WithinDuration(t, time.Now(), p.OccurredAt, time.Minute)
		assert.Nil(t, p.Metadata)
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		p := JobFailurePayload{
			Severity:   "warning",
			OccurredAt: at,
			Metadata:   map[string]string{"zip": "55403"},
		}
		p.Normalize()

		assert.Equal(t, "warning", p.Severity)
		assert.Equal(t, at, p.OccurredAt)
		assert.Equal(t, map[string]string{"zip": "55403"}, p.Metadata)
	})
}

func TestSinkFunc(t *testing.T) {
	var got JobFailurePayload
	fn := SinkFunc(func(_ context.Context, payload JobFailurePayload) error {
		got = payload
		return nil
	})

	require.NoError(t, fn.SendJobFailure(context.Background(), JobFailurePayload{JobID: "j-9"}))
	assert.Equal(t, "j-9", got.JobID)

	var nilFn SinkFunc
	assert.NoError(t, nilFn.SendJobFailure(context.Background(), JobFailurePayload{}))
}
