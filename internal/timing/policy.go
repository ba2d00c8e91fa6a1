// Package timing equalizes observable response latency across outcome
// branches of sensitive endpoints, so a caller cannot infer account
// existence or lock state from how fast a request fails.
package timing

import (
	"context"
	"time"
)

// DefaultMinResponseTime applies to every endpoint without an override.
const DefaultMinResponseTime = time.Second

// Policy suspends callers until a minimum wall-clock time has elapsed since
// the start of the operation. The wait is a cooperative sleep; callers must
// not hold locks across Enforce.
type Policy struct {
	defaultMin time.Duration
	overrides  map[string]time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration)
}

// Option configures a Policy.
type Option func(*Policy)

// WithClock replaces the wall clock. Test use.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// WithSleeper replaces the suspension primitive. Test use.
func WithSleeper(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(p *Policy) { p.sleep = sleep }
}

// NewPolicy builds a Policy with the given default minimum and per-endpoint
// overrides. A non-positive default falls back to DefaultMinResponseTime.
func NewPolicy(defaultMin time.Duration, overrides map[string]time.Duration, opts ...Option) *Policy {
	if defaultMin <= 0 {
		defaultMin = DefaultMinResponseTime
	}
	p := &Policy{
		defaultMin: defaultMin,
		overrides:  overrides,
		now:        time.Now,
		sleep:      contextSleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enforce suspends until at least the configured minimum for endpoint has
// elapsed since start. Returns immediately when the minimum has already
// passed. Cancellation of ctx cuts the wait short; that is the transport's
// call, not this policy's.
func (p *Policy) Enforce(ctx context.Context, start time.Time, endpoint string) {
	minimum := p.defaultMin
	if override, ok := p.overrides[endpoint]; ok {
		minimum = override
	}

	elapsed := p.now().Sub(start)
	if remaining := minimum - elapsed; remaining > 0 {
		p.sleep(ctx, remaining)
	}
}

func contextSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
