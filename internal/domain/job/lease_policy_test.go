package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLeasePolicy(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		policy, err := NewLeasePolicy(30 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, policy.Default())
	})

	t.Run("rejects non-positive default", func(t *testing.T) {
		for _, d := range []time.Duration{0, -time.Second} {
			policy, err := NewLeasePolicy(d)
			require.ErrorIs(t, err, ErrInvalidDefaultLease)
			assert.Nil(t, policy)
		}
	})
}

func TestLeasePolicy_Resolve(t *testing.T) {
	policy, err := NewLeasePolicy(30 * time.Second)
	require.NoError(t, err)

	tests := []struct {
		name        string
		request     time.Duration
		wantSeconds int
		wantSource  LeaseSource
	}{
		{
			name:        "explicit duration uses whole seconds",
			request:     45 * time.Second,
			wantSeconds: 45,
			wantSource:  LeaseSourceExplicit,
		},
		{
			name:        "fractional seconds truncate",
			request:     45*time.Second + 900*time.Millisecond,
			wantSeconds: 45,
			wantSource:  LeaseSourceExplicit,
		},
		{
			name:        "zero falls back to default",
			request:     0,
			wantSeconds: 30,
			wantSource:  LeaseSourceDefault,
		},
		{
			name:        "sub-second clamps to minimum",
			request:     500 * time.Millisecond,
			wantSeconds: 1,
			wantSource:  LeaseSourceClamped,
		},
		{
			name:        "negative clamps to minimum",
			request:     -5 * time.Second,
			wantSeconds: 1,
			wantSource:  LeaseSourceClamped,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := policy.Resolve(tc.request)
			assert.Equal(t, tc.wantSeconds, decision.Seconds)
			assert.Equal(t, tc.wantSource, decision.Source)
			assert.Equal(t, tc.request, decision.Requested)
			assert.Equal(t, tc.wantSource == LeaseSourceDefault, decision.UsedDefault())
			assert.Equal(t, tc.wantSource == LeaseSourceClamped, decision.Clamped())
		})
	}
}

func TestLeasePolicy_NilReceiver(t *testing.T) {
	var policy *LeasePolicy

	assert.Equal(t, time.Duration(0), policy.Default())

	decision := policy.Resolve(10 * time.Second)
	assert.Equal(t, 0, decision.Seconds)
	assert.Equal(t, LeaseSourceDefault, decision.Source)
}
