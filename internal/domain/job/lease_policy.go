package job

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// Leases are stored as whole seconds in the database, so every resolved
// duration lands in [minLeaseSeconds, maxLeaseSeconds].
const (
	minLeaseSeconds = 1
	maxLeaseSeconds = int64(math.MaxInt)
)

// LeaseSource identifies how a lease duration was resolved.
type LeaseSource string

const (
	// LeaseSourceExplicit means the caller supplied a usable duration.
	LeaseSourceExplicit LeaseSource = "explicit"
	// LeaseSourceDefault means the policy default was used.
	LeaseSourceDefault LeaseSource = "default"
	// LeaseSourceClamped means the request was forced into the supported range.
	LeaseSourceClamped LeaseSource = "clamped"
)

// LeasePolicy resolves the lease durations used when reserving jobs and
// extending them on heartbeat. A zero request means "use the default";
// anything unusable is clamped rather than rejected so a worker with a bad
// config still makes progress.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default lease duration.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// LeaseDecision is the outcome of resolving one lease request.
type LeaseDecision struct {
	Seconds   int
	Source    LeaseSource
	Requested time.Duration
}

// UsedDefault reports whether the policy fell back to the default lease.
func (d LeaseDecision) UsedDefault() bool {
	return d.Source == LeaseSourceDefault
}

// Clamped reports whether the request was forced into the supported range.
// Callers log these; a clamped lease usually means a misconfigured worker.
func (d LeaseDecision) Clamped() bool {
	return d.Source == LeaseSourceClamped
}

// Resolve turns a requested duration into whole seconds.
func (p *LeasePolicy) Resolve(request time.Duration) LeaseDecision {
	if p == nil {
		return LeaseDecision{Seconds: 0, Source: LeaseSourceDefault, Requested: request}
	}

	if request < 0 {
		return LeaseDecision{Seconds: minLeaseSeconds, Source: LeaseSourceClamped, Requested: request}
	}

	if request == 0 {
		seconds, _ := clampSeconds(p.defaultLease)
		return LeaseDecision{Seconds: seconds, Source: LeaseSourceDefault, Requested: request}
	}

	seconds, clamped := clampSeconds(request)
	source := LeaseSourceExplicit
	if clamped {
		source = LeaseSourceClamped
	}
	return LeaseDecision{Seconds: seconds, Source: source, Requested: request}
}

func clampSeconds(d time.Duration) (int, bool) {
	seconds := int64(d / time.Second)

	if seconds < minLeaseSeconds {
		return minLeaseSeconds, true
	}
	if seconds > maxLeaseSeconds {
		return int(maxLeaseSeconds), true
	}
	return int(seconds), false
}
