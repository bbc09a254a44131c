// Package types provides core type definitions and interfaces for the changefeed library.
//
// This package contains shared types that are used across multiple packages in the
// changefeed library. By keeping these types in a separate package, we avoid import
// cycles between the root changefeed package, the lease and processor packages, and
// their internal implementations.
//
// Key types:
//   - State: Host lifecycle state
//   - Partition: A change-feed partition as reported by a PartitionSource
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
//   - Hooks: Optional lease and processor lifecycle callbacks
package types
