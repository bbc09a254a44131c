package renewer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/changefeed/internal/logger"
)

type renewalCounter struct {
	ok   atomic.Int32
	fail atomic.Int32
}

func (c *renewalCounter) RecordOwnedLeases(int) {}

func (c *renewalCounter) RecordRenewal(success bool) {
	if success {
		c.ok.Add(1)
	} else {
		c.fail.Add(1)
	}
}

func TestRenewer_StartStop(t *testing.T) {
	var rounds, noDeadline atomic.Int32
	r := New(10*time.Millisecond, 0, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			noDeadline.Add(1)
		}
		rounds.Add(1)

		return nil
	}, WithLogger(logger.NewTest(t)))

	require.ErrorIs(t, r.Stop(), ErrNotStarted)
	require.NoError(t, r.Start(t.Context()))
	require.True(t, r.IsStarted())
	require.ErrorIs(t, r.Start(t.Context()), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return rounds.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.Stop())
	require.False(t, r.IsStarted())
	require.Zero(t, noDeadline.Load())

	after := rounds.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, after, rounds.Load())
}

func TestRenewer_Restart(t *testing.T) {
	var rounds atomic.Int32
	r := New(5*time.Millisecond, 0, func(context.Context) error {
		rounds.Add(1)
		return nil
	})

	require.NoError(t, r.Start(t.Context()))
	require.NoError(t, r.Stop())
	require.NoError(t, r.Start(t.Context()))
	require.Eventually(t, func() bool { return rounds.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop())
}

func TestRenewer_RecordsOutcome(t *testing.T) {
	counter := &renewalCounter{}
	var n atomic.Int32
	r := New(5*time.Millisecond, time.Second, func(context.Context) error {
		if n.Add(1)%2 == 0 {
			return errors.New("store unavailable")
		}

		return nil
	}, WithMetrics(counter), WithLogger(logger.NewTest(t)))

	require.NoError(t, r.Start(t.Context()))
	require.Eventually(t, func() bool {
		return counter.ok.Load() >= 2 && counter.fail.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop())
}

func TestRenewer_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	r := New(5*time.Millisecond, 0, func(context.Context) error { return nil })

	require.NoError(t, r.Start(ctx))
	cancel()

	// The loop has exited; Stop still completes.
	require.NoError(t, r.Stop())
}
