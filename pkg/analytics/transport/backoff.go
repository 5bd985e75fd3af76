package transport

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Backoff computes the wait before the next delivery attempt after a
// retryable failure.
//
// The schedule is Base doubling per attempt up to Max. Jitter adds up to
// Jitter*delay on top, never subtracts, and the result is clamped to Max.
// With Jitter <= 1 the doubling always outgrows the previous attempt's
// jitter, so successive delays never decrease.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// DefaultBackoff returns the standard 1s..30s schedule with 50% jitter.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 30 * time.Second, Jitter: 0.5}
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base, maxDelay := b.Base, b.Max
	if base <= 0 {
		base = time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}

	exp := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
	}
	exp.Reset()
	d := exp.NextBackOff()
	for i := 1; i < attempt && d < maxDelay; i++ {
		d = exp.NextBackOff()
	}

	jitter := b.Jitter
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	if jitter > 0 {
		r := rand.Float64
		if b.Rand != nil {
			r = b.Rand
		}
		d += time.Duration(float64(d) * jitter * r())
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
