package processor

import (
	"errors"
	"fmt"

	"github.com/arloliu/changefeed/types"
)

// Reason is why a processor loop terminated.
type Reason string

const (
	// ReasonShutdown means the loop's context was canceled.
	ReasonShutdown Reason = "shutdown"

	// ReasonPartitionNotFound means the partition was deleted or merged away.
	ReasonPartitionNotFound Reason = "partition_not_found"

	// ReasonPartitionSplit means the partition was split into children.
	ReasonPartitionSplit Reason = "partition_split"

	// ReasonLeaseLost means another host took the lease.
	ReasonLeaseLost Reason = "lease_lost"

	// ReasonHandlerError means the change handler failed a batch.
	ReasonHandlerError Reason = "handler_error"

	// ReasonFatal means an unclassified store fault.
	ReasonFatal Reason = "fatal"
)

// TerminatedError is returned by Run when the loop ends for a reason the
// owning host is expected to act on.
//
// It matches types.ErrPartitionNotFound, types.ErrPartitionSplit and
// types.ErrLeaseLost with errors.Is according to Reason.
type TerminatedError struct {
	// Reason is why the loop ended.
	Reason Reason

	// PartitionID is the partition the loop was processing.
	PartitionID string

	// Continuation is the last continuation the loop read successfully.
	Continuation string

	// Checkpointed is the last continuation persisted by a handler checkpoint
	// during this run, or the starting continuation if none was.
	Checkpointed string

	// Err is the underlying fault.
	Err error
}

// Error implements error.
func (e *TerminatedError) Error() string {
	return fmt.Sprintf("partition %s terminated (%s) at continuation %q: %v",
		e.PartitionID, e.Reason, e.Continuation, e.Err)
}

// Unwrap returns the underlying fault.
func (e *TerminatedError) Unwrap() error {
	return e.Err
}

// Is maps the termination reason onto the library sentinels.
func (e *TerminatedError) Is(target error) bool {
	switch e.Reason {
	case ReasonPartitionNotFound:
		return target == types.ErrPartitionNotFound
	case ReasonPartitionSplit:
		return target == types.ErrPartitionSplit
	case ReasonLeaseLost:
		return target == types.ErrLeaseLost
	default:
		return false
	}
}

// ReasonOf returns the termination reason of a Run result.
//
// nil maps to ReasonShutdown and errors that are not a *TerminatedError map to
// ReasonFatal.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonShutdown
	}

	var te *TerminatedError
	if errors.As(err, &te) {
		return te.Reason
	}

	return ReasonFatal
}
