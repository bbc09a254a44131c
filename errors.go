package changefeed

import "github.com/arloliu/changefeed/types"

// Sentinel errors re-exported from the types package so callers can match
// them with errors.Is without importing types.
var (
	ErrInvalidConfig           = types.ErrInvalidConfig
	ErrStoreClientRequired     = types.ErrStoreClientRequired
	ErrPartitionSourceRequired = types.ErrPartitionSourceRequired
	ErrHandlerRequired         = types.ErrHandlerRequired
	ErrAlreadyStarted          = types.ErrAlreadyStarted
	ErrNotStarted              = types.ErrNotStarted

	ErrLeaseLost          = types.ErrLeaseLost
	ErrLeaseNotFound      = types.ErrLeaseNotFound
	ErrLeaseExists        = types.ErrLeaseExists
	ErrPreconditionFailed = types.ErrPreconditionFailed

	ErrPartitionNotFound = types.ErrPartitionNotFound
	ErrPartitionSplit    = types.ErrPartitionSplit
)
