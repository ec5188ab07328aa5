// Package retry provides the shared backoff decision logic used by preload
// fetches and sync replays. It is a pure policy: it decides whether another
// attempt is allowed and how long to wait, and never sleeps or performs I/O
// itself. Callers own the actual delay (usually a select on time.After and
// their context).
package retry

import (
	"math/rand"
	"sync"
	"time"
)

// Default policy values.
const (
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultJitter      = 0.2
)

// Policy computes exponential backoff with a cap and random jitter.
//
// The delay for attempt n (zero-based) is base * 2^n, capped at MaxDelay,
// then scaled by a random factor in [1-Jitter, 1+Jitter] so a burst of
// failures doesn't retry in lockstep.
type Policy struct {
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration

	// MaxAttempts is the number of attempts allowed before the policy
	// reports exhaustion. An attempt number >= MaxAttempts is exhausted.
	MaxAttempts uint

	// Jitter is the relative jitter amplitude in [0, 1). 0 disables jitter.
	Jitter float64

	// rng guards the jitter source; rand.Rand is not goroutine-safe.
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPolicy returns a policy with the given parameters. Zero values fall
// back to the package defaults.
func NewPolicy(base, max time.Duration, maxAttempts uint, jitter float64) *Policy {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Policy{
		BaseDelay:   base,
		MaxDelay:    max,
		MaxAttempts: maxAttempts,
		Jitter:      jitter,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DefaultPolicy returns the policy used across the engine: 500ms base,
// 30s cap, 3 attempts, 20% jitter.
func DefaultPolicy() *Policy {
	return NewPolicy(DefaultBaseDelay, DefaultMaxDelay, DefaultMaxAttempts, DefaultJitter)
}

// Next returns the delay before retrying after the given zero-based attempt
// number, and whether a retry is allowed at all. ok is false once the
// attempt count reaches MaxAttempts; the returned delay is then zero.
func (p *Policy) Next(attempt uint) (delay time.Duration, ok bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}

	delay = p.BaseDelay
	for i := uint(0); i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	return p.applyJitter(delay), true
}

// Exhausted reports whether the given zero-based attempt number has used up
// the policy's budget.
func (p *Policy) Exhausted(attempt uint) bool {
	return attempt >= p.MaxAttempts
}

func (p *Policy) applyJitter(d time.Duration) time.Duration {
	if p.Jitter <= 0 || p.rng == nil {
		return d
	}

	p.mu.Lock()
	f := p.rng.Float64()
	p.mu.Unlock()

	// Scale by a factor in [1-Jitter, 1+Jitter]
	factor := 1 - p.Jitter + 2*p.Jitter*f
	return time.Duration(float64(d) * factor)
}
