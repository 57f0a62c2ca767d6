// Package backoff provides exponential backoff with jitter for retrying
// transient provider failures.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Initial is the backoff after the first failure.
	Initial time.Duration
	// Max caps the backoff between attempts.
	Max time.Duration
	// Factor is the exponential factor applied per attempt.
	Factor float64
	// Jitter is the randomization fraction (0.0 to 1.0) added to the base.
	Jitter float64
}

// DefaultPolicy returns the policy used for LLM and retrieval calls:
// 1s initial, 30s cap, doubling, 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		Initial: time.Second,
		Max:     30 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

// Delay computes the backoff duration for attempt (1-indexed):
// base = initial * factor^(attempt-1), plus base*jitter*random, capped at max.
func (p Policy) Delay(attempt int) time.Duration {
	return p.delayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// delayWithRand computes the delay using a provided random value in [0, 1).
// Exposed to tests for deterministic results.
func (p Policy) delayWithRand(attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	total := base + base*p.Jitter*random
	if capped := float64(p.Max); total > capped {
		total = capped
	}
	return time.Duration(total)
}
