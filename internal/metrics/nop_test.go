package metrics

import (
	"testing"

	"github.com/arloliu/changefeed/types"
	"github.com/stretchr/testify/require"
)

func TestNopMetrics(t *testing.T) {
	var m types.MetricsCollector = NewNop()

	require.NotPanics(t, func() {
		m.RecordBatch("p1", 3, 0.01)
		m.RecordPollError("p1", "transient")
		m.RecordMaxItemCount("p1", 50)
		m.RecordProcessorExit("p1", "partition_split")
		m.RecordLeaseOperation("acquire", true)
		m.RecordLeaseConflict("checkpoint")
		m.RecordOwnedLeases(4)
		m.RecordRenewal(false)
	})
}
