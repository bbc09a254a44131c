// Package strategy provides built-in lease selection strategies.
//
// A strategy decides, on every acquire cycle, which leases a host should try
// to take. Hosts never talk to each other: each one reads the shared lease
// collection and converges on a fair share through the lease timestamps and
// owners it observes. The package includes two built-in strategies:
//
//   - EqualPartitions: every live host aims for ceil(leases / hosts) leases
//     (default)
//   - ConsistentHash: like EqualPartitions, but a host prefers the free
//     leases a consistent hash ring maps to it, keeping partitions on the
//     same host across restarts
//
// # Strategy Selection Guide
//
// EqualPartitions:
//   - Use for stateless handlers
//   - Competing hosts rank free leases with rendezvous hashing so concurrent
//     acquire cycles mostly pick different partitions
//   - Steals at most one lease per cycle from an over-loaded host
//
// ConsistentHash:
//   - Use when handlers keep per-partition caches worth preserving
//   - Requires stable owner names (see Config.HostName)
//
// Custom strategies can be implemented by satisfying the Strategy interface.
package strategy
