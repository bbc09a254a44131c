package processor

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/arloliu/changefeed/store"
	"github.com/arloliu/changefeed/types"
)

// Checkpointer persists a continuation into the partition's lease.
//
// lease.PartitionCheckpointer implements it.
type Checkpointer interface {
	// Checkpoint stores continuation. It returns an error wrapping
	// types.ErrLeaseLost when the caller no longer owns the lease.
	Checkpoint(ctx context.Context, continuation string) error
}

// ChangeContext binds one dispatch to its partition and batch continuation.
//
// It is only valid during the HandleChanges call it was passed to.
type ChangeContext struct {
	// PartitionID is the partition the batch was read from.
	PartitionID string

	// Continuation is the position after this batch.
	Continuation string

	checkpointer Checkpointer
	state        *dispatchState
}

type dispatchState struct {
	leaseLost    atomic.Bool
	checkpointed atomic.Pointer[string]
}

// Checkpoint persists this batch's continuation into the partition's lease.
//
// It may be called zero or more times per dispatch; repeated calls store the
// same continuation. An error wrapping types.ErrLeaseLost means another host
// owns the partition now. The handler should return promptly; the loop stops
// after the handler returns regardless of what the handler does with the error.
func (c *ChangeContext) Checkpoint(ctx context.Context) error {
	err := c.checkpointer.Checkpoint(ctx, c.Continuation)
	if err != nil {
		if errors.Is(err, types.ErrLeaseLost) {
			c.state.leaseLost.Store(true)
		}

		return err
	}

	cont := c.Continuation
	c.state.checkpointed.Store(&cont)

	return nil
}

// ChangeHandler processes change batches for one partition.
//
// Dispatch is fire-and-wait: the loop does not read the next page until
// HandleChanges returns, so at most one batch per partition is in flight and
// the handler can checkpoint before more data is pulled. Delivery is
// at-least-once; handlers should be idempotent.
//
// Parameters:
//   - ctx: The loop's context; canceled on shutdown or lease loss
//   - cc: Partition, batch continuation and checkpoint capability
//   - docs: The batch, in store continuation order (never empty)
//
// Returns:
//   - error: nil when the batch was processed. A non-nil error marks the batch
//     undelivered and ends the loop; the host decides what happens next.
//
// Example:
//
//	var h processor.ChangeHandler = processor.HandlerFunc(
//	    func(ctx context.Context, cc *processor.ChangeContext, docs []store.Document) error {
//	        for _, d := range docs {
//	            index(d.Body)
//	        }
//	        return cc.Checkpoint(ctx)
//	    })
type ChangeHandler interface {
	HandleChanges(ctx context.Context, cc *ChangeContext, docs []store.Document) error
}

// HandlerFunc is a function adapter for ChangeHandler.
type HandlerFunc func(ctx context.Context, cc *ChangeContext, docs []store.Document) error

// HandleChanges implements ChangeHandler interface.
func (f HandlerFunc) HandleChanges(ctx context.Context, cc *ChangeContext, docs []store.Document) error {
	return f(ctx, cc, docs)
}

// Opener is implemented by handlers that want a call before a partition's loop starts.
type Opener interface {
	Open(ctx context.Context, partitionID string) error
}

// Closer is implemented by handlers that want a call after a partition's loop ends.
type Closer interface {
	Close(ctx context.Context, partitionID string, reason Reason) error
}
