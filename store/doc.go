// Package store defines the document-store client surface consumed by the lease
// manager and the partition processor loop.
//
// A store holds collections of versioned JSON documents and exposes, per
// collection, a partitioned append-only change feed. Every fault returned by a
// Client is a *Error carrying an HTTP-style status code, an optional sub-status
// and an optional retry-after hint, which the classify package turns into a
// semantic category.
//
// Implementations:
//   - store/natsstore: NATS JetStream (KV buckets + streams)
//   - store/redisstore: Redis (hashes + Lua CAS + streams)
//   - store/memstore: in-process, with fault injection for tests
package store
