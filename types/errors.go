package types

import (
	"errors"
	"strings"
)

// Sentinel errors for the changefeed library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).
//
// Error Naming Convention:
//   - Use descriptive names with Err prefix
//   - Group by component (Host, Lease, Processor, etc.)
//   - Use consistent messages across similar error types

// Host errors - Public API errors returned by the Host.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreClientRequired is returned when the store client is nil.
	ErrStoreClientRequired = errors.New("store client is required")

	// ErrPartitionSourceRequired is returned when partition source is nil.
	ErrPartitionSourceRequired = errors.New("partition source is required")

	// ErrHandlerRequired is returned when the change handler is nil.
	ErrHandlerRequired = errors.New("change handler is required")

	// ErrAlreadyStarted is returned when Start is called on an already running host.
	ErrAlreadyStarted = errors.New("host already started")

	// ErrNotStarted is returned when operations require a started host.
	ErrNotStarted = errors.New("host not started")
)

// Lease errors - Returned by the lease accessor, updater and manager.
var (
	// ErrLeaseLost is returned when a lease mutation discovers that the lease
	// was taken over, altered by another owner, or deleted. The caller must stop
	// processing the partition and must not retry locally.
	ErrLeaseLost = errors.New("lease lost")

	// ErrLeaseNotFound is returned when a lease document does not exist.
	ErrLeaseNotFound = errors.New("lease not found")

	// ErrLeaseExists is returned when creating a lease that already exists.
	ErrLeaseExists = errors.New("lease already exists")

	// ErrPreconditionFailed is returned when a conditional write presents a stale concurrency tag.
	ErrPreconditionFailed = errors.New("lease concurrency tag mismatch")
)

// Processor errors - Terminal reasons reported by a partition processor loop.
var (
	// ErrPartitionNotFound indicates the partition was deleted or merged away.
	ErrPartitionNotFound = errors.New("partition not found")

	// ErrPartitionSplit indicates the partition was split into child partitions.
	ErrPartitionSplit = errors.New("partition split")
)

// Common errors - Shared errors used across multiple components.
var (
	// ErrNoKeysFound is returned when NATS KV returns no keys (expected condition).
	ErrNoKeysFound = errors.New("no keys found")
)

// IsNoKeysFoundError checks if an error indicates that no keys were found in NATS KV.
//
// This function handles NATS-specific "no keys found" errors which may come as:
//   - Direct error: "nats: no keys found"
//   - Wrapped error: "failed to list KV keys: nats: no keys found"
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error indicates no keys were found, false otherwise
func IsNoKeysFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoKeysFound) {
		return true
	}

	return strings.Contains(err.Error(), "no keys found")
}
