package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	ProcessorMetrics
	LeaseMetrics
	HostMetrics
}

// ProcessorMetrics defines metrics recorded by partition processor loops.
type ProcessorMetrics interface {
	// RecordBatch records one dispatched change batch.
	//
	// Parameters:
	//   - partitionID: Partition the batch was read from
	//   - documents: Number of documents in the batch
	//   - duration: Handler execution time in seconds
	RecordBatch(partitionID string, documents int, duration float64)

	// RecordPollError records a classified store fault observed by the loop.
	//
	// Parameters:
	//   - partitionID: Partition being polled
	//   - category: Classification ("transient", "request_too_large", "partition_split", ...)
	RecordPollError(partitionID, category string)

	// RecordMaxItemCount sets the effective max item count of a partition (gauge metric).
	RecordMaxItemCount(partitionID string, count int)

	// RecordProcessorExit records the terminal reason of a processor loop.
	RecordProcessorExit(partitionID, reason string)
}

// LeaseMetrics defines metrics for lease manager operations.
type LeaseMetrics interface {
	// RecordLeaseOperation records a lease manager operation outcome.
	//
	// Parameters:
	//   - operation: Operation name ("create", "acquire", "renew", "release", "checkpoint", "delete")
	//   - success: true if the operation succeeded, false otherwise
	RecordLeaseOperation(operation string, success bool)

	// RecordLeaseConflict records a concurrency-tag conflict retried by the lease updater.
	RecordLeaseConflict(operation string)
}

// HostMetrics defines metrics for host-level lease ownership.
type HostMetrics interface {
	// RecordOwnedLeases sets the number of leases owned by this host (gauge metric).
	RecordOwnedLeases(count int)

	// RecordRenewal records a renewal cycle over all owned leases.
	RecordRenewal(success bool)
}
