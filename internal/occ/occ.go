// Package occ implements read-transform-conditional-write retries for stores
// that offer compare-and-swap by version.
package occ

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/changefeed/internal/backoff"
)

// ErrExhausted is returned when every attempt hit a version conflict.
var ErrExhausted = errors.New("optimistic concurrency retries exhausted")

// Defaults applied by Config.withDefaults.
const (
	DefaultAttempts    = 5
	DefaultBackoffBase = 25 * time.Millisecond
	DefaultBackoffCap  = 500 * time.Millisecond
)

// Config bounds a retry sequence.
type Config struct {
	// Attempts is the total number of conditional writes tried (default 5).
	Attempts int

	// Backoff is the pause policy between attempts (default 25ms base, x2, 500ms cap).
	Backoff backoff.Policy

	// OnConflict is called after each conflicting write, before the pause.
	OnConflict func(attempt int)
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.Backoff.Base <= 0 {
		c.Backoff.Base = DefaultBackoffBase
	}
	if c.Backoff.Multiplier == 0 {
		c.Backoff.Multiplier = 2
	}
	if c.Backoff.Cap == 0 {
		c.Backoff.Cap = DefaultBackoffCap
	}

	return c
}

// Ops are the store operations of one retry sequence.
type Ops[T any] struct {
	// Read fetches the current version of the value.
	Read func(ctx context.Context) (T, error)

	// Write stores v conditionally on the version v was read at.
	Write func(ctx context.Context, v T) (T, error)

	// IsConflict reports whether a Write error is a version conflict.
	IsConflict func(err error) bool
}

// Do mutates current and writes it, re-reading and re-applying mutate after
// every version conflict.
//
// The first attempt applies mutate to current as passed by the caller, so no
// read is issued when the caller's copy is up to date. mutate receives a value
// it may modify and return; an error from mutate aborts the sequence and is
// returned unwrapped. Errors from Read, and Write errors that are not
// conflicts, also abort. After cfg.Attempts conflicts Do returns an error
// wrapping ErrExhausted.
//
// Example:
//
//	updated, err := occ.Do(ctx, occ.Config{}, lease, func(l *Lease) (*Lease, error) {
//	    l.Owner = "host-b"
//	    return l, nil
//	}, occ.Ops[*Lease]{Read: read, Write: write, IsConflict: isStale})
func Do[T any](ctx context.Context, cfg Config, current T, mutate func(T) (T, error), ops Ops[T]) (T, error) {
	var zero T
	cfg = cfg.withDefaults()
	seq := backoff.New(cfg.Backoff)

	for attempt := 1; ; attempt++ {
		next, err := mutate(current)
		if err != nil {
			return zero, err
		}

		written, err := ops.Write(ctx, next)
		if err == nil {
			return written, nil
		}
		if !ops.IsConflict(err) {
			return zero, err
		}

		if cfg.OnConflict != nil {
			cfg.OnConflict(attempt)
		}
		if attempt >= cfg.Attempts {
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(seq.Next()):
		}

		current, err = ops.Read(ctx)
		if err != nil {
			return zero, err
		}
	}
}
