// Package backoff implements capped exponential backoff with decorrelated jitter.
package backoff

import (
	rand "math/rand/v2"
	"time"
)

// Policy describes a capped exponential backoff.
type Policy struct {
	// Base is the first delay and the lower bound of every delay.
	Base time.Duration

	// Multiplier is the growth factor applied to the previous delay (values < 1 mean 1).
	Multiplier float64

	// Cap bounds every delay (0 disables the cap).
	Cap time.Duration

	// Seed makes the jitter sequence deterministic when non-zero.
	Seed int64
}

// Sequence produces successive delays for one retry sequence. It is not safe
// for concurrent use; create one per retry loop.
type Sequence struct {
	policy Policy
	prev   time.Duration
	rng    *rand.Rand
}

// New starts a new delay sequence for p.
//
// Example:
//
//	seq := backoff.New(backoff.Policy{Base: 25 * time.Millisecond, Multiplier: 2, Cap: 500 * time.Millisecond})
//	for attempt := 0; attempt < 5; attempt++ {
//	    if err := try(); err == nil {
//	        break
//	    }
//	    time.Sleep(seq.Next())
//	}
func New(p Policy) *Sequence {
	return &Sequence{policy: p, rng: newRNG(p.Seed)}
}

// Next returns the next delay in the sequence.
func (s *Sequence) Next() time.Duration {
	s.prev = jitter(s.prev, s.policy.Base, s.policy.Multiplier, s.policy.Cap, s.rng)
	return s.prev
}

// Reset restarts the sequence from Base.
func (s *Sequence) Reset() {
	s.prev = 0
}

// jitter implements decorrelated jitter backoff ("Full Jitter" variant) with a cap.
// See: https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
//
// Given previous delay (prev), computes next delay as:
//
//	next = min(cap, base + rand.Int64N(prev*multiplier-base)) with guards
//
// Behavior:
//   - If prev <= 0, start from base
//   - Multiplier <= 1.0 falls back to 1.0 (no growth)
//   - Cap <= base returns cap
func jitter(prev, base time.Duration, mult float64, capDur time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if mult < 1.0 {
		mult = 1.0
	}
	if capDur > 0 && capDur < base {
		return capDur
	}
	if prev <= 0 {
		return base
	}

	maxDuration := time.Duration(float64(prev)*mult) - base
	if maxDuration <= 0 {
		maxDuration = base
	}

	var j int64
	if rng != nil {
		j = rng.Int64N(int64(maxDuration))
	} else {
		j = rand.Int64N(int64(maxDuration)) //nolint:gosec // non-crypto backoff jitter
	}

	next := base + time.Duration(j)
	if capDur > 0 && next > capDur {
		return capDur
	}

	return next
}

// newRNG returns a deterministic RNG only when a non-zero seed is provided.
// When seed == 0 it returns nil so callers use the package-level PRNG instead.
//
//nolint:gosec
func newRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	s1 := uint64(seed)
	s2 := s1 ^ 0x9e3779b97f4a7c15

	return rand.New(rand.NewPCG(s1, s2))
}
