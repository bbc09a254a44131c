// Package metrics provides MetricsCollector implementations.
package metrics

import "github.com/arloliu/changefeed/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	host, _ := changefeed.NewHost(cfg, client, src, handler, changefeed.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// ProcessorMetrics implementation

// RecordBatch discards the batch metric.
func (n *NopMetrics) RecordBatch(_ string, _ int, _ float64) {}

// RecordPollError discards the poll error metric.
func (n *NopMetrics) RecordPollError(_, _ string) {}

// RecordMaxItemCount discards the max item count gauge.
func (n *NopMetrics) RecordMaxItemCount(_ string, _ int) {}

// RecordProcessorExit discards the processor exit metric.
func (n *NopMetrics) RecordProcessorExit(_, _ string) {}

// LeaseMetrics implementation

// RecordLeaseOperation discards the lease operation metric.
func (n *NopMetrics) RecordLeaseOperation(_ string, _ bool) {}

// RecordLeaseConflict discards the lease conflict metric.
func (n *NopMetrics) RecordLeaseConflict(_ string) {}

// HostMetrics implementation

// RecordOwnedLeases discards the owned leases gauge.
func (n *NopMetrics) RecordOwnedLeases(_ int) {}

// RecordRenewal discards the renewal metric.
func (n *NopMetrics) RecordRenewal(_ bool) {}
