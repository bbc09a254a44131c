package changefeed

import (
	"github.com/arloliu/changefeed/processor"
	"github.com/arloliu/changefeed/types"
)

// Re-export types from the types package.
//
// Internal packages depend on types rather than on the root package, which
// avoids import cycles while still offering changefeed.Partition,
// changefeed.Logger and friends to users.
type (
	State     = types.State
	Partition = types.Partition
)

// Re-export interfaces for convenience.
type (
	PartitionSource  = types.PartitionSource
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export the handler surface of the processor package.
type (
	ChangeHandler = processor.ChangeHandler
	HandlerFunc   = processor.HandlerFunc
	ChangeContext = processor.ChangeContext
)

// Re-export State constants.
const (
	StateInit     = types.StateInit
	StateStarting = types.StateStarting
	StateRunning  = types.StateRunning
	StateStopping = types.StateStopping
	StateStopped  = types.StateStopped
)
