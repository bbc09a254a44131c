package lease

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/changefeed/internal/occ"
	"github.com/arloliu/changefeed/types"
)

// Mutation applies a field-level change to a lease copy. It returns
// ErrLeaseLost when the copy shows the caller no longer owns the lease.
type Mutation func(l *Lease) error

// Updater retries lease mutations under concurrent modification.
//
// It is the only place optimistic-concurrency retries happen. Each attempt
// applies the mutation to the latest known version and writes it presenting
// that version's etag; a stale etag triggers a re-read and another attempt.
type Updater struct {
	store   *Store
	cfg     occ.Config
	metrics types.LeaseMetrics
}

// NewUpdater creates an Updater.
//
// Parameters:
//   - s: Lease store accessor
//   - cfg: Retry bounds (zero value: 5 attempts, 25ms..500ms jittered backoff)
//   - metrics: Conflict metrics sink
func NewUpdater(s *Store, cfg occ.Config, metrics types.LeaseMetrics) *Updater {
	return &Updater{store: s, cfg: cfg, metrics: metrics}
}

// Update applies mutate to l and stores the result.
//
// On success l is refreshed in place with the stored version. The mutation
// may run several times, each time on a fresh copy. Update fails with
// ErrLeaseLost when:
//   - mutate returns ErrLeaseLost (ownership changed)
//   - the lease was deleted
//   - every attempt hit a concurrency conflict
func (u *Updater) Update(ctx context.Context, op string, l *Lease, mutate Mutation) error {
	cfg := u.cfg
	cfg.OnConflict = func(int) {
		u.metrics.RecordLeaseConflict(op)
	}

	updated, err := occ.Do(ctx, cfg, l.Clone(),
		func(cur *Lease) (*Lease, error) {
			if err := mutate(cur); err != nil {
				return nil, err
			}

			return cur, nil
		},
		occ.Ops[*Lease]{
			Read: func(ctx context.Context) (*Lease, error) {
				return u.store.Read(ctx, l.PartitionID)
			},
			Write: u.store.Replace,
			IsConflict: func(err error) bool {
				return errors.Is(err, types.ErrPreconditionFailed)
			},
		},
	)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrLeaseLost):
			return err
		case errors.Is(err, occ.ErrExhausted), errors.Is(err, types.ErrLeaseNotFound):
			return fmt.Errorf("%s lease %s: %w: %w", op, l.PartitionID, types.ErrLeaseLost, err)
		default:
			return fmt.Errorf("%s lease %s: %w", op, l.PartitionID, err)
		}
	}

	*l = *updated

	return nil
}
