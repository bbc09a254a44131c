package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// HTTP-style status codes carried by store faults.
const (
	StatusBadRequest         = 400
	StatusNotFound           = 404
	StatusConflict           = 409
	StatusGone               = 410
	StatusPreconditionFailed = 412
	StatusRequestTooLarge    = 413
	StatusTooManyRequests    = 429
	StatusInternalError      = 500
	StatusServiceUnavailable = 503
)

// Sub-status codes refining a status.
const (
	// SubStatusNone means no sub-status was reported.
	SubStatusNone = 0

	// SubStatusNotFound marks a partition or document that does not exist (404).
	SubStatusNotFound = 1000

	// SubStatusReadSessionNotAvailable marks a 404 caused by a session read
	// landing on a replica that has not caught up yet. It is not a missing partition.
	SubStatusReadSessionNotAvailable = 1002

	// SubStatusPartitionKeyRangeGone marks a 410 for a partition retired by a split.
	// It shares its numeric value with SubStatusReadSessionNotAvailable; the
	// status code disambiguates.
	SubStatusPartitionKeyRangeGone = 1002

	// SubStatusSplitting marks a 410 for a partition that is being split.
	SubStatusSplitting = 1007
)

// ErrOperationCanceled is the cause of faults produced when a store call was
// canceled, either by the caller's context or by the transport.
var ErrOperationCanceled = errors.New("store operation canceled")

// Error is a store fault.
type Error struct {
	// StatusCode is an HTTP-style status.
	StatusCode int

	// SubStatus refines StatusCode (0 when absent).
	SubStatus int

	// RetryAfter is the store-supplied back-off hint (0 when absent).
	RetryAfter time.Duration

	// Message is the store's description.
	Message string

	// Err is the underlying transport error, if any.
	Err error
}

// NewError creates a store fault.
func NewError(status, subStatus int, format string, args ...any) *Error {
	return &Error{StatusCode: status, SubStatus: subStatus, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a store fault caused by err.
func WrapError(status, subStatus int, err error, format string, args ...any) *Error {
	e := NewError(status, subStatus, format, args...)
	e.Err = err

	return e
}

// Canceled creates a fault for a canceled operation.
func Canceled(err error, op string) *Error {
	return &Error{StatusCode: StatusServiceUnavailable, Message: op + " canceled", Err: errors.Join(ErrOperationCanceled, err)}
}

// WithRetryAfter sets the retry-after hint and returns e.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// Error implements error.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "store: status %d", e.StatusCode)
	if e.SubStatus != SubStatusNone {
		fmt.Fprintf(&sb, "/%d", e.SubStatus)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying transport error.
func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}

	return nil, false
}

// StatusOf returns the status code of err, or 0 when err is not a store fault.
func StatusOf(err error) int {
	if se, ok := AsError(err); ok {
		return se.StatusCode
	}

	return 0
}

// IsNotFound reports a 404 fault.
func IsNotFound(err error) bool { return StatusOf(err) == StatusNotFound }

// IsConflict reports a 409 fault.
func IsConflict(err error) bool { return StatusOf(err) == StatusConflict }

// IsPreconditionFailed reports a 412 fault.
func IsPreconditionFailed(err error) bool { return StatusOf(err) == StatusPreconditionFailed }

// IsOperationCanceled reports a canceled store operation.
func IsOperationCanceled(err error) bool {
	return errors.Is(err, ErrOperationCanceled)
}
