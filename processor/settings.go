package processor

import (
	"fmt"
	"time"

	"github.com/arloliu/changefeed/store"
	"github.com/arloliu/changefeed/types"
)

// Default values applied by Settings.withDefaults.
const (
	// DefaultMaxItemCount is the page size used after a "request too large"
	// fault when no max item count was configured.
	DefaultMaxItemCount = 100

	// DefaultFeedPollDelay is the pause between drained poll cycles.
	DefaultFeedPollDelay = 5 * time.Second
)

// Settings is the immutable per-partition loop configuration.
type Settings struct {
	// PartitionID selects the partition to read. Required.
	PartitionID string

	// Collection is the monitored collection. Required.
	Collection store.Collection

	// Continuation resumes after this position; empty applies the start options.
	Continuation string

	// StartFromBeginning reads from the oldest retained change when Continuation is empty.
	StartFromBeginning bool

	// StartTime reads from the first change at or after this time when
	// Continuation is empty and StartFromBeginning is false.
	StartTime time.Time

	// MaxItemCount is the configured page size; 0 means the store default.
	MaxItemCount int

	// FeedPollDelay is the pause after a drained cycle and after retryable faults.
	FeedPollDelay time.Duration

	// SessionToken is passed to the store on the first read.
	SessionToken string
}

// Validate checks required fields.
func (s Settings) Validate() error {
	if s.PartitionID == "" {
		return fmt.Errorf("%w: partition id is required", types.ErrInvalidConfig)
	}
	if s.Collection.Collection == "" {
		return fmt.Errorf("%w: collection is required", types.ErrInvalidConfig)
	}
	if s.MaxItemCount < 0 {
		return fmt.Errorf("%w: max item count must be >= 0", types.ErrInvalidConfig)
	}
	if s.FeedPollDelay < 0 {
		return fmt.Errorf("%w: feed poll delay must be >= 0", types.ErrInvalidConfig)
	}

	return nil
}

func (s Settings) withDefaults() Settings {
	if s.FeedPollDelay == 0 {
		s.FeedPollDelay = DefaultFeedPollDelay
	}

	return s
}
