// Package lease implements the lease ownership protocol used to coordinate
// change-feed partitions across competing hosts.
//
// A lease is a small document, stored in the same store as the data, that
// records which host currently owns one partition's read cursor and where that
// cursor is. Ownership is exclusive, renewable and stealable: every mutation
// presents the concurrency tag (etag) it last read, and a write against a stale
// tag fails. The Updater turns such failures into bounded read-modify-write
// retries that re-check ownership; a caller that has been superseded observes
// ErrLeaseLost and must stop processing the partition.
//
// Components, leaves first:
//   - Store: read/create/replace/delete/list lease documents (etag aware)
//   - Updater: optimistic-concurrency retries around a mutation
//   - Manager: create/acquire/renew/release/checkpoint/delete
//   - PartitionCheckpointer: the per-partition façade used by the processor loop
package lease
