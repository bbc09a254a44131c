// Package renewer runs a host's periodic lease renewal.
//
// A host refreshes the timestamp of every lease it owns once per renew
// interval. Leases whose timestamp is older than the expiration interval are
// considered free by other hosts, so the renew interval must be well below the
// expiration interval (a third of it is typical).
package renewer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arloliu/changefeed/internal/logger"
	"github.com/arloliu/changefeed/internal/metrics"
	"github.com/arloliu/changefeed/types"
)

// Common errors for renewer operations.
var (
	ErrNotStarted     = errors.New("renewer not started")
	ErrAlreadyStarted = errors.New("renewer already started")
)

// RenewFunc renews every lease the host owns.
//
// It returns an error when at least one renewal failed for a reason other than
// lease loss; lease loss is handled by the function itself.
type RenewFunc func(ctx context.Context) error

// Renewer calls a RenewFunc on a fixed interval.
type Renewer struct {
	interval time.Duration
	timeout  time.Duration
	renew    RenewFunc
	logger   types.Logger
	metrics  types.HostMetrics

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Renewer.
type Option func(*Renewer)

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(r *Renewer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m types.HostMetrics) Option {
	return func(r *Renewer) {
		if m != nil {
			r.metrics = m
		}
	}
}

// New creates a renewer.
//
// Parameters:
//   - interval: Time between renewal rounds
//   - timeout: Deadline of one renewal round (0 = interval)
//   - renew: Renewal round
//
// Returns:
//   - *Renewer: Stopped renewer; call Start to run it
func New(interval, timeout time.Duration, renew RenewFunc, opts ...Option) *Renewer {
	if timeout <= 0 {
		timeout = interval
	}

	r := &Renewer{
		interval: interval,
		timeout:  timeout,
		renew:    renew,
		logger:   logger.NewNop(),
		metrics:  metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start begins renewing in the background until Stop is called or ctx ends.
//
// Returns:
//   - error: ErrAlreadyStarted if already running
func (r *Renewer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}

	r.started = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.loop(ctx, r.stopCh, r.doneCh)

	return nil
}

// Stop stops the renewer and waits for an in-flight round to finish.
//
// Returns:
//   - error: ErrNotStarted if not running
func (r *Renewer) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrNotStarted
	}
	close(r.stopCh)
	r.started = false
	done := r.doneCh
	r.mu.Unlock()

	<-done

	return nil
}

// IsStarted returns whether the renewer is currently running.
func (r *Renewer) IsStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.started
}

func (r *Renewer) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.round(ctx)
		}
	}
}

func (r *Renewer) round(ctx context.Context) {
	roundCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.renew(roundCtx); err != nil {
		r.metrics.RecordRenewal(false)
		r.logger.Warn("lease renewal round failed", "error", err)

		return
	}

	r.metrics.RecordRenewal(true)
}
