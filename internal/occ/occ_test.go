package occ

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/changefeed/internal/backoff"
)

var errStale = errors.New("stale version")

type versioned struct {
	version int
	value   int
}

// cell is a compare-and-swap register.
type cell struct {
	mu sync.Mutex
	v  versioned
}

func (c *cell) read(context.Context) (versioned, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.v, nil
}

func (c *cell) write(_ context.Context, v versioned) (versioned, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v.version != c.v.version {
		return versioned{}, errStale
	}
	v.version++
	c.v = v

	return v, nil
}

func (c *cell) ops() Ops[versioned] {
	return Ops[versioned]{
		Read:       c.read,
		Write:      c.write,
		IsConflict: func(err error) bool { return errors.Is(err, errStale) },
	}
}

func fastConfig() Config {
	return Config{Backoff: backoff.Policy{Base: time.Millisecond, Multiplier: 1, Cap: time.Millisecond}}
}

func increment(v versioned) (versioned, error) {
	v.value++
	return v, nil
}

func TestDo_FirstAttemptUsesCallerCopy(t *testing.T) {
	t.Parallel()

	c := &cell{}
	var reads atomic.Int32
	ops := c.ops()
	read := ops.Read
	ops.Read = func(ctx context.Context) (versioned, error) {
		reads.Add(1)
		return read(ctx)
	}

	got, err := Do(t.Context(), fastConfig(), versioned{}, increment, ops)
	require.NoError(t, err)
	require.Equal(t, versioned{version: 1, value: 1}, got)
	require.Equal(t, int32(0), reads.Load())
}

func TestDo_RetriesAfterConflict(t *testing.T) {
	t.Parallel()

	c := &cell{v: versioned{version: 3, value: 10}}
	conflicts := 0
	cfg := fastConfig()
	cfg.OnConflict = func(int) { conflicts++ }

	// Caller holds version 0; the store is at 3.
	got, err := Do(t.Context(), cfg, versioned{}, increment, c.ops())
	require.NoError(t, err)
	require.Equal(t, versioned{version: 4, value: 11}, got)
	require.Equal(t, 1, conflicts)
}

func TestDo_Exhausted(t *testing.T) {
	t.Parallel()

	c := &cell{}
	ops := c.ops()
	ops.Write = func(context.Context, versioned) (versioned, error) {
		return versioned{}, errStale
	}

	attempts := 0
	cfg := fastConfig()
	cfg.OnConflict = func(int) { attempts++ }

	_, err := Do(t.Context(), cfg, versioned{}, increment, ops)
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, errStale)
	require.Equal(t, DefaultAttempts, attempts)
}

func TestDo_MutateErrorAborts(t *testing.T) {
	t.Parallel()

	errOwner := errors.New("owner changed")
	c := &cell{}
	_, err := Do(t.Context(), fastConfig(), versioned{}, func(versioned) (versioned, error) {
		return versioned{}, errOwner
	}, c.ops())
	require.Equal(t, errOwner, err)
}

func TestDo_NonConflictWriteErrorAborts(t *testing.T) {
	t.Parallel()

	errDown := errors.New("store down")
	c := &cell{}
	ops := c.ops()
	calls := 0
	ops.Write = func(context.Context, versioned) (versioned, error) {
		calls++
		return versioned{}, errDown
	}

	_, err := Do(t.Context(), fastConfig(), versioned{}, increment, ops)
	require.ErrorIs(t, err, errDown)
	require.Equal(t, 1, calls)
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	c := &cell{v: versioned{version: 1}}
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		Backoff:    backoff.Policy{Base: time.Hour, Cap: time.Hour},
		OnConflict: func(int) { cancel() },
	}

	_, err := Do(ctx, cfg, versioned{}, increment, c.ops())
	require.ErrorIs(t, err, context.Canceled)
}

// TestDo_ConcurrentWriters verifies that concurrent read-modify-write sequences
// never lose an update: each round has exactly one winner and losers retry
// against the new version.
func TestDo_ConcurrentWriters(t *testing.T) {
	t.Parallel()

	const writers = 8
	c := &cell{}
	cfg := fastConfig()
	cfg.Attempts = 100

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start, _ := c.read(context.Background())
			if _, err := Do(context.Background(), cfg, start, increment, c.ops()); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(0), failures.Load())
	final, _ := c.read(context.Background())
	require.Equal(t, writers, final.value)
	require.Equal(t, writers, final.version)
}
