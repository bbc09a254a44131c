// Package processor implements the per-partition change-feed processing loop.
//
// A Processor pulls pages of changes for one owned partition, hands each
// non-empty page to a ChangeHandler, and tracks the continuation so the work
// can resume elsewhere. Store faults are classified (see package classify):
//
//   - transient faults are retried after the store's retry-after or the poll delay
//   - "request too large" faults shrink the page size for the current cycle
//   - partition-not-found and partition-split end the loop with a *TerminatedError
//   - unclassified faults end the loop and are returned unmodified
//
// A checkpoint that reports lease loss also ends the loop with a
// *TerminatedError, since another host now owns the partition.
package processor
