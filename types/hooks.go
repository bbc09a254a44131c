package types

import "context"

// Hooks defines callbacks for Host lease and processor lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// so that a slow hook never delays lease renewal. Hooks receive the host's
// lifecycle context which will be cancelled during shutdown.
//
// IMPORTANT: Hook execution behavior:
//   - Hooks run concurrently and may not complete before Stop() returns
//   - Hook errors are logged but don't fail host operations
//
// Example:
//
//	hooks := &changefeed.Hooks{
//	    OnLeaseAcquired: func(ctx context.Context, partitionID string) error {
//	        log.Printf("now processing %s", partitionID)
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnLeaseAcquired is called after this host acquired a lease and started its processor.
	OnLeaseAcquired func(ctx context.Context, partitionID string) error

	// OnLeaseReleased is called after this host gave up a lease, voluntarily or not.
	OnLeaseReleased func(ctx context.Context, partitionID string) error

	// OnProcessorExit is called when a partition processor loop terminates.
	// reason is one of "shutdown", "partition_not_found", "partition_split",
	// "lease_lost", "handler_error" or "fatal"; err is nil for "shutdown".
	OnProcessorExit func(ctx context.Context, partitionID, reason string, err error) error
}
