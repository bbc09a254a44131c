package lease

import (
	"context"
	"sync"
)

// PartitionCheckpointer binds one owned lease for its processor loop.
//
// The processor persists continuations through Checkpoint while the host's
// renewer calls Renew on the same instance; both are serialized on the lease
// copy so this host never races itself on the concurrency tag.
type PartitionCheckpointer struct {
	manager     *Manager
	partitionID string

	mu    sync.Mutex
	lease *Lease
}

// NewPartitionCheckpointer binds l, which must be owned by the caller.
func NewPartitionCheckpointer(m *Manager, l *Lease) *PartitionCheckpointer {
	return &PartitionCheckpointer{manager: m, partitionID: l.PartitionID, lease: l.Clone()}
}

// PartitionID returns the bound partition. It is fixed at construction and
// safe to call while Checkpoint or Renew replace the lease copy.
func (c *PartitionCheckpointer) PartitionID() string {
	return c.partitionID
}

// Checkpoint persists continuation into the lease.
//
// Returns ErrLeaseLost if ownership was lost.
func (c *PartitionCheckpointer) Checkpoint(ctx context.Context, continuation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.manager.Checkpoint(ctx, c.lease, continuation)
}

// Renew refreshes the lease timestamp.
func (c *PartitionCheckpointer) Renew(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.manager.Renew(ctx, c.lease)
}

// Release gives up the lease; see Manager.Release.
func (c *PartitionCheckpointer) Release(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.manager.Release(ctx, c.lease)
}

// Lease returns a snapshot of the bound lease.
func (c *PartitionCheckpointer) Lease() *Lease {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lease.Clone()
}
