// Package classify maps store faults to the categories the partition processor
// loop reacts to.
//
// Classification is total and side-effect free: every error, including nil and
// errors that did not come from a store, maps to exactly one Category. This is
// the only place store-specific status and sub-status codes are interpreted.
package classify

import (
	"strings"
	"time"

	"github.com/arloliu/changefeed/store"
)

// Category is the semantic class of a store fault.
type Category int

const (
	// Undefined faults are unexpected; the processor propagates them unmodified.
	Undefined Category = iota

	// PartitionNotFound means the partition was deleted or merged away.
	PartitionNotFound

	// PartitionSplit means the partition was retired by a split.
	PartitionSplit

	// TransientError means the request may succeed if retried (throttling, 5xx).
	TransientError

	// RequestTooLarge means the requested page exceeded a server limit.
	RequestTooLarge
)

// String returns the metric-friendly name of the category.
func (c Category) String() string {
	switch c {
	case PartitionNotFound:
		return "partition_not_found"
	case PartitionSplit:
		return "partition_split"
	case TransientError:
		return "transient"
	case RequestTooLarge:
		return "request_too_large"
	default:
		return "undefined"
	}
}

// reducePageSizeMessage is the message fragment servers use when a page
// exceeded the response size limit.
const reducePageSizeMessage = "Reduce page size and try again"

// Classifier classifies faults with an optional rule for RequestTooLarge.
//
// The zero value applies only the status rules.
type Classifier struct {
	// RequestTooLarge reports whether a fault means the requested page was too
	// large. It is consulted before the status rules.
	RequestTooLarge func(*store.Error) bool
}

// Default is the classifier used by the processor loop unless overridden.
var Default = Classifier{RequestTooLarge: DefaultRequestTooLarge}

// DefaultRequestTooLarge matches 413 responses and 400 responses asking the
// client to reduce the page size.
func DefaultRequestTooLarge(e *store.Error) bool {
	switch e.StatusCode {
	case store.StatusRequestTooLarge:
		return true
	case store.StatusBadRequest:
		return strings.Contains(e.Message, reducePageSizeMessage)
	default:
		return false
	}
}

// Classify applies the classifier's rules to err.
func (c Classifier) Classify(err error) Category {
	se, ok := store.AsError(err)
	if !ok {
		return Undefined
	}
	if c.RequestTooLarge != nil && c.RequestTooLarge(se) {
		return RequestTooLarge
	}

	return classifyStatus(se)
}

// Classify applies the status rules only.
//
// Rules, in priority order:
//  1. 404 with any sub-status other than ReadSessionNotAvailable: PartitionNotFound
//  2. 410 with sub-status PartitionKeyRangeGone or Splitting: PartitionSplit
//  3. 429 or any 5xx: TransientError
//  4. anything else: Undefined
func Classify(err error) Category {
	return Classifier{}.Classify(err)
}

func classifyStatus(e *store.Error) Category {
	switch {
	case e.StatusCode == store.StatusNotFound && e.SubStatus != store.SubStatusReadSessionNotAvailable:
		return PartitionNotFound
	case e.StatusCode == store.StatusGone &&
		(e.SubStatus == store.SubStatusPartitionKeyRangeGone || e.SubStatus == store.SubStatusSplitting):
		return PartitionSplit
	case e.StatusCode == store.StatusTooManyRequests || e.StatusCode >= store.StatusInternalError:
		return TransientError
	default:
		return Undefined
	}
}

// RetryAfter returns the store-supplied back-off hint carried by err, or 0.
func RetryAfter(err error) time.Duration {
	if se, ok := store.AsError(err); ok && se.RetryAfter > 0 {
		return se.RetryAfter
	}

	return 0
}
