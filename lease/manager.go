package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/changefeed/internal/backoff"
	"github.com/arloliu/changefeed/internal/logger"
	"github.com/arloliu/changefeed/internal/metrics"
	"github.com/arloliu/changefeed/internal/occ"
	"github.com/arloliu/changefeed/types"
)

// Operation names used in logs and metrics.
const (
	OpCreate     = "create"
	OpAcquire    = "acquire"
	OpRenew      = "renew"
	OpRelease    = "release"
	OpCheckpoint = "checkpoint"
	OpDelete     = "delete"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	StoreConfig

	// UpdateRetries is the number of conditional writes tried per mutation (default 5).
	UpdateRetries int

	// UpdateBackoff is the base pause between conflicting writes (default 25ms).
	UpdateBackoff time.Duration
}

// Option configures optional Manager dependencies.
type Option func(*managerOptions)

type managerOptions struct {
	logger  types.Logger
	metrics types.LeaseMetrics
	now     func() time.Time
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(o *managerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the lease metrics sink.
func WithMetrics(m types.LeaseMetrics) Option {
	return func(o *managerOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock overrides the wall clock used for lease timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *managerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// Manager implements the lease ownership protocol.
//
// Every mutating operation routes through the Updater. The owner check in
// each mutation compares the stored owner with the owner recorded on the
// caller's copy, so a caller that read the lease while host A owned it can
// steal it from A, but fails with ErrLeaseLost if host B got there first.
type Manager struct {
	store   *Store
	updater *Updater
	logger  types.Logger
	metrics types.LeaseMetrics
	now     func() time.Time
}

// NewManager creates a lease Manager.
//
// Parameters:
//   - cfg: Manager configuration (client and lease collection are required)
//   - opts: Optional logger, metrics and clock
//
// Returns:
//   - *Manager: The lease manager
//   - error: ErrInvalidConfig if the configuration is invalid
//
// Example:
//
//	mgr, err := lease.NewManager(lease.ManagerConfig{
//	    StoreConfig: lease.StoreConfig{
//	        Client:          client,
//	        LeaseCollection: store.Collection{Database: "app", Collection: "leases"},
//	    },
//	}, lease.WithLogger(logger))
func NewManager(cfg ManagerConfig, opts ...Option) (*Manager, error) {
	s, err := NewStore(cfg.StoreConfig)
	if err != nil {
		return nil, err
	}
	if cfg.UpdateRetries < 0 {
		return nil, fmt.Errorf("%w: update retries must be >= 0", types.ErrInvalidConfig)
	}

	o := managerOptions{
		logger:  logger.NewNop(),
		metrics: metrics.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	updater := NewUpdater(s, occ.Config{
		Attempts: cfg.UpdateRetries,
		Backoff:  backoff.Policy{Base: cfg.UpdateBackoff, Multiplier: 2},
	}, o.metrics)

	return &Manager{
		store:   s,
		updater: updater,
		logger:  o.logger,
		metrics: o.metrics,
		now:     o.now,
	}, nil
}

// Store returns the underlying lease store accessor.
func (m *Manager) Store() *Store {
	return m.store
}

// CreateLeaseIfNotExists creates the lease for a partition unless one exists.
//
// Creation is idempotent: an existing lease is returned unchanged, its owner
// and continuation are never overwritten.
//
// Parameters:
//   - ctx: Context for cancellation
//   - partitionID: Partition to create the lease for
//   - continuation: Initial continuation ("" means collection default)
//   - parents: Partitions this partition was split from
//
// Returns:
//   - *Lease: The created or existing lease
//   - error: Store error
func (m *Manager) CreateLeaseIfNotExists(ctx context.Context, partitionID, continuation string, parents ...string) (*Lease, error) {
	l := &Lease{
		PartitionID:       partitionID,
		ContinuationToken: continuation,
		Parents:           parents,
		Timestamp:         m.now().UTC(),
	}

	created, err := m.store.Create(ctx, l)
	if err == nil {
		m.metrics.RecordLeaseOperation(OpCreate, true)
		m.logger.Info("lease created", "partition_id", partitionID, "continuation", continuation)

		return created, nil
	}
	if !errors.Is(err, types.ErrLeaseExists) {
		m.metrics.RecordLeaseOperation(OpCreate, false)
		return nil, err
	}

	existing, err := m.store.Read(ctx, partitionID)
	if err != nil {
		m.metrics.RecordLeaseOperation(OpCreate, false)
		return nil, err
	}
	m.metrics.RecordLeaseOperation(OpCreate, true)
	m.logger.Debug("lease already exists", "partition_id", partitionID, "owner", existing.Owner)

	return existing, nil
}

// Get returns the current version of a lease.
func (m *Manager) Get(ctx context.Context, partitionID string) (*Lease, error) {
	return m.store.Read(ctx, partitionID)
}

// List returns all leases.
func (m *Manager) List(ctx context.Context) ([]*Lease, error) {
	return m.store.List(ctx)
}

// Owned returns the leases currently owned by owner.
func (m *Manager) Owned(ctx context.Context, owner string) ([]*Lease, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	owned := make([]*Lease, 0, len(all))
	for _, l := range all {
		if l.Owner == owner {
			owned = append(owned, l)
		}
	}

	return owned, nil
}

// Acquire takes ownership of l for newOwner.
//
// l must be a recent read of the lease; the acquisition succeeds only if the
// stored owner still matches l.Owner (unowned, expired, or the victim of a
// steal). On success l is updated in place.
//
// Returns ErrLeaseLost if another host changed the owner first.
func (m *Manager) Acquire(ctx context.Context, l *Lease, newOwner string) error {
	expected := l.Owner
	err := m.update(ctx, OpAcquire, l, func(cur *Lease) error {
		if cur.Owner != expected {
			return fmt.Errorf("acquire lease %s: owner is %q, expected %q: %w",
				cur.PartitionID, cur.Owner, expected, types.ErrLeaseLost)
		}
		cur.Owner = newOwner
		cur.Timestamp = m.now().UTC()

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("lease acquired", "partition_id", l.PartitionID, "owner", newOwner, "previous_owner", expected)

	return nil
}

// Renew refreshes the timestamp of an owned lease.
//
// Returns ErrLeaseLost if the lease is no longer owned by l.Owner.
func (m *Manager) Renew(ctx context.Context, l *Lease) error {
	owner := l.Owner
	err := m.update(ctx, OpRenew, l, m.ownedBy(owner, func(cur *Lease) {
		cur.Timestamp = m.now().UTC()
	}))
	if err != nil {
		return err
	}

	m.logger.Debug("lease renewed", "partition_id", l.PartitionID, "owner", owner)

	return nil
}

// Release clears the owner of a lease.
//
// Release is best-effort: a lease that was already taken by another host or
// deleted is treated as released, so shutdown paths never fail on it.
func (m *Manager) Release(ctx context.Context, l *Lease) error {
	owner := l.Owner
	err := m.update(ctx, OpRelease, l, m.ownedBy(owner, func(cur *Lease) {
		cur.Owner = ""
	}))
	if err != nil {
		if errors.Is(err, types.ErrLeaseLost) {
			m.logger.Debug("lease already taken on release", "partition_id", l.PartitionID, "owner", owner)
			return nil
		}

		return err
	}

	m.logger.Info("lease released", "partition_id", l.PartitionID, "owner", owner)

	return nil
}

// Checkpoint persists a continuation into an owned lease.
//
// Checkpointing the same continuation repeatedly succeeds each time and
// leaves the continuation unchanged.
//
// Returns ErrLeaseLost if the caller has been superseded; the caller must stop
// processing the partition.
func (m *Manager) Checkpoint(ctx context.Context, l *Lease, continuation string) error {
	owner := l.Owner
	err := m.update(ctx, OpCheckpoint, l, m.ownedBy(owner, func(cur *Lease) {
		cur.ContinuationToken = continuation
		cur.Timestamp = m.now().UTC()
	}))
	if err != nil {
		return err
	}

	m.logger.Debug("checkpoint stored", "partition_id", l.PartitionID, "continuation", continuation)

	return nil
}

// Delete removes a lease. Deleting a missing lease is not an error.
func (m *Manager) Delete(ctx context.Context, l *Lease) error {
	err := m.store.Delete(ctx, l.PartitionID)
	if err != nil && !errors.Is(err, types.ErrLeaseNotFound) {
		m.metrics.RecordLeaseOperation(OpDelete, false)
		return err
	}

	m.metrics.RecordLeaseOperation(OpDelete, true)
	m.logger.Info("lease deleted", "partition_id", l.PartitionID)

	return nil
}

func (m *Manager) update(ctx context.Context, op string, l *Lease, mutate Mutation) error {
	err := m.updater.Update(ctx, op, l, mutate)
	m.metrics.RecordLeaseOperation(op, err == nil)

	return err
}

// ownedBy wraps a field change with the owner check shared by renew, release and checkpoint.
func (m *Manager) ownedBy(owner string, apply func(cur *Lease)) Mutation {
	return func(cur *Lease) error {
		if owner == "" || cur.Owner != owner {
			return fmt.Errorf("lease %s: owner is %q, expected %q: %w",
				cur.PartitionID, cur.Owner, owner, types.ErrLeaseLost)
		}
		apply(cur)

		return nil
	}
}
