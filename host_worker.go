package changefeed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/arloliu/changefeed/lease"
	"github.com/arloliu/changefeed/processor"
	"golang.org/x/sync/errgroup"
)

// worker is one running partition processor.
type worker struct {
	partitionID  string
	checkpointer *lease.PartitionCheckpointer
	cancel       context.CancelFunc

	// lost is set when renewal found the lease taken, so that the processor's
	// shutdown exit does not release a lease that belongs to someone else.
	lost atomic.Bool
}

// balance runs one synchronization and acquisition round.
func (h *Host) balance(ctx context.Context) error {
	leases, err := h.synchronize(ctx)
	if err != nil {
		return err
	}
	h.acquire(ctx, leases)

	return nil
}

// synchronize makes sure every live partition has a lease and removes leases
// of retired partitions nobody is processing.
//
// A new partition whose parent still has a lease starts from the parent's
// continuation, so no change between the parent's last checkpoint and the
// split is skipped.
//
// Returns the lease set after synchronization, sorted by partition ID.
func (h *Host) synchronize(ctx context.Context) ([]*lease.Lease, error) {
	partitions, err := h.source.ListPartitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	existing, err := h.leases.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list leases: %w", err)
	}

	byID := make(map[string]*lease.Lease, len(existing))
	for _, l := range existing {
		byID[l.PartitionID] = l
	}

	live := make(map[string]struct{}, len(partitions))
	for _, p := range partitions {
		live[p.ID] = struct{}{}
		if _, ok := byID[p.ID]; ok {
			continue
		}

		l, err := h.leases.CreateLeaseIfNotExists(ctx, p.ID, inheritedContinuation(p, byID), p.Parents...)
		if err != nil {
			h.logger.Warn("failed to create lease", "partition_id", p.ID, "error", err)
			continue
		}
		byID[p.ID] = l
	}

	now := time.Now()
	for id, l := range byID {
		if _, ok := live[id]; ok {
			continue
		}
		// A live owner learns about the retirement from its processor and
		// handles the lease itself.
		if l.Owner == h.owner || !l.IsExpired(now, h.cfg.LeaseExpirationInterval) {
			continue
		}

		if err := h.leases.Delete(ctx, l); err != nil {
			h.logger.Warn("failed to delete orphaned lease", "partition_id", id, "error", err)
			continue
		}
		delete(byID, id)
	}

	leases := make([]*lease.Lease, 0, len(byID))
	for _, l := range byID {
		leases = append(leases, l)
	}
	slices.SortFunc(leases, func(a, b *lease.Lease) int {
		return strings.Compare(a.PartitionID, b.PartitionID)
	})

	return leases, nil
}

// acquire takes the leases the strategy selects, plus leases this host owns
// in the store without running them (a restart under the same HostName).
func (h *Host) acquire(ctx context.Context, leases []*lease.Lease) {
	var picks []*lease.Lease
	for _, l := range leases {
		if l.Owner == h.owner && !h.isRunning(l.PartitionID) {
			picks = append(picks, l)
		}
	}
	picks = append(picks, h.strategy.Select(h.owner, leases, time.Now(),
		h.cfg.LeaseExpirationInterval, h.cfg.MaxPartitionsPerHost)...)

	g := errgroup.Group{}
	g.SetLimit(acquireConcurrency)
	for _, l := range picks {
		if h.isRunning(l.PartitionID) {
			continue
		}
		g.Go(func() error {
			h.take(ctx, l.Clone())
			return nil
		})
	}
	_ = g.Wait()

	h.metrics.RecordOwnedLeases(h.running.Size())
}

// take acquires one lease and starts its processor.
func (h *Host) take(ctx context.Context, l *lease.Lease) {
	if err := h.leases.Acquire(ctx, l, h.owner); err != nil {
		if errors.Is(err, ErrLeaseLost) || errors.Is(err, ErrLeaseNotFound) {
			h.logger.Debug("lease taken by another host first", "partition_id", l.PartitionID, "error", err)
			return
		}
		h.logger.Warn("failed to acquire lease", "partition_id", l.PartitionID, "error", err)

		return
	}

	h.start(l)
}

func (h *Host) isRunning(partitionID string) bool {
	_, ok := h.running.Load(partitionID)
	return ok
}

// start launches the processor of an acquired lease.
func (h *Host) start(l *lease.Lease) {
	pid := l.PartitionID
	cp := lease.NewPartitionCheckpointer(h.leases, l)

	settings := processor.Settings{
		PartitionID:        pid,
		Collection:         h.cfg.FeedCollection,
		Continuation:       l.ContinuationToken,
		StartFromBeginning: h.cfg.StartFromBeginning,
		StartTime:          h.cfg.StartTime,
		MaxItemCount:       h.cfg.MaxItemCount,
		FeedPollDelay:      h.cfg.FeedPollDelay,
	}
	p, err := processor.New(settings, h.client, h.handler, cp,
		processor.WithLogger(h.logger),
		processor.WithMetrics(h.metrics),
		processor.WithClassifier(h.classifier),
	)
	if err != nil {
		h.logger.Error("failed to create processor", "partition_id", pid, "error", err)
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.OperationTimeout)
		defer cancel()
		_ = cp.Release(ctx)

		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	w := &worker{partitionID: pid, checkpointer: cp, cancel: cancel}
	if _, loaded := h.running.LoadOrStore(pid, w); loaded {
		cancel()
		return
	}

	h.workers.Add(1)
	go h.run(ctx, w, p)

	h.fireHook("OnLeaseAcquired", pid, func(ctx context.Context) error {
		return h.hooks.OnLeaseAcquired(ctx, pid)
	})
}

// run drives one processor and settles its lease when the loop ends.
func (h *Host) run(ctx context.Context, w *worker, p *processor.Processor) {
	defer h.workers.Done()

	pid := w.partitionID
	var err error
	if opener, ok := h.handler.(processor.Opener); ok {
		if oerr := opener.Open(ctx, pid); oerr != nil {
			cont := w.checkpointer.Lease().ContinuationToken
			err = &processor.TerminatedError{
				Reason:       processor.ReasonHandlerError,
				PartitionID:  pid,
				Continuation: cont,
				Checkpointed: cont,
				Err:          fmt.Errorf("open handler: %w", oerr),
			}
		}
	}
	if err == nil {
		err = p.Run(ctx)
	}
	w.cancel()

	reason := processor.ReasonOf(err)

	// ctx is done by now; lease bookkeeping gets its own deadline.
	opCtx, cancel := context.WithTimeout(context.Background(), h.cfg.OperationTimeout)
	defer cancel()

	if closer, ok := h.handler.(processor.Closer); ok {
		if cerr := closer.Close(opCtx, pid, reason); cerr != nil {
			h.logger.Warn("handler close failed", "partition_id", pid, "error", cerr)
		}
	}

	h.settle(opCtx, w, reason, err)
	h.running.Delete(pid)
	h.metrics.RecordOwnedLeases(h.running.Size())

	h.fireHook("OnProcessorExit", pid, func(ctx context.Context) error {
		return h.hooks.OnProcessorExit(ctx, pid, string(reason), err)
	})
}

// settle applies the lease consequence of a processor exit.
func (h *Host) settle(ctx context.Context, w *worker, reason processor.Reason, err error) {
	pid := w.partitionID

	switch reason {
	case processor.ReasonShutdown:
		if w.lost.Load() {
			h.logger.Info("processor stopped after lease loss", "partition_id", pid)
			h.released(pid)

			return
		}
		h.release(ctx, w)

	case processor.ReasonLeaseLost:
		h.logger.Info("processor stopped, lease owned by another host", "partition_id", pid)
		h.released(pid)

	case processor.ReasonPartitionSplit:
		h.split(ctx, w, err)

	case processor.ReasonPartitionNotFound:
		h.logger.Info("partition gone, deleting lease", "partition_id", pid)
		h.remove(ctx, w)

	case processor.ReasonHandlerError:
		h.logger.Warn("handler failed, releasing lease", "partition_id", pid, "error", err)
		h.release(ctx, w)

	default:
		h.logger.Error("processor failed, releasing lease", "partition_id", pid, "error", err)
		h.release(ctx, w)
	}
}

// split hands a split partition over to its children.
//
// Child leases are created with the parent's checkpointed continuation before
// the parent lease is deleted, so a crash in between leaves the parent lease
// for the next synchronization to finish the job.
func (h *Host) split(ctx context.Context, w *worker, err error) {
	pid := w.partitionID

	cont := w.checkpointer.Lease().ContinuationToken
	var te *processor.TerminatedError
	if errors.As(err, &te) {
		cont = te.Checkpointed
	}

	partitions, lerr := h.source.ListPartitions(ctx)
	if lerr != nil {
		h.logger.Warn("failed to list split children, releasing lease", "partition_id", pid, "error", lerr)
		h.release(ctx, w)

		return
	}

	var children []string
	for _, p := range partitions {
		if !p.IsChildOf(pid) {
			continue
		}
		if _, cerr := h.leases.CreateLeaseIfNotExists(ctx, p.ID, cont, p.Parents...); cerr != nil {
			h.logger.Warn("failed to create child lease, releasing parent", "partition_id", pid, "child", p.ID, "error", cerr)
			h.release(ctx, w)

			return
		}
		children = append(children, p.ID)
	}

	if len(children) == 0 {
		h.logger.Warn("split children not visible yet, releasing lease", "partition_id", pid)
		h.release(ctx, w)

		return
	}

	h.logger.Info("partition split", "partition_id", pid, "children", children, "continuation", cont)
	h.remove(ctx, w)
}

// release gives the lease up so any host can retry the partition.
func (h *Host) release(ctx context.Context, w *worker) {
	if err := w.checkpointer.Release(ctx); err != nil {
		h.logger.Warn("failed to release lease", "partition_id", w.partitionID, "error", err)
	}
	h.released(w.partitionID)
}

// remove deletes the lease of a retired partition.
func (h *Host) remove(ctx context.Context, w *worker) {
	if err := h.leases.Delete(ctx, w.checkpointer.Lease()); err != nil {
		h.logger.Warn("failed to delete lease", "partition_id", w.partitionID, "error", err)
	}
	h.released(w.partitionID)
}

func (h *Host) released(partitionID string) {
	h.fireHook("OnLeaseReleased", partitionID, func(ctx context.Context) error {
		return h.hooks.OnLeaseReleased(ctx, partitionID)
	})
}

// renewOwned renews every running lease. A lease found taken stops its
// processor without releasing.
func (h *Host) renewOwned(ctx context.Context) error {
	var errs []error
	h.running.Range(func(pid string, w *worker) bool {
		err := w.checkpointer.Renew(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrLeaseLost), errors.Is(err, ErrLeaseNotFound):
			h.logger.Warn("lease lost on renewal, stopping processor", "partition_id", pid, "error", err)
			w.lost.Store(true)
			w.cancel()
		default:
			errs = append(errs, fmt.Errorf("renew lease %s: %w", pid, err))
		}

		return ctx.Err() == nil
	})

	return errors.Join(errs...)
}

// inheritedContinuation returns the continuation of the first parent that has one.
func inheritedContinuation(p Partition, leases map[string]*lease.Lease) string {
	for _, parent := range p.Parents {
		if l, ok := leases[parent]; ok && l.ContinuationToken != "" {
			return l.ContinuationToken
		}
	}

	return ""
}
