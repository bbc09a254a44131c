package testing

import (
	"testing"

	"github.com/arloliu/changefeed/internal/logger"
	"github.com/arloliu/changefeed/types"
)

// NewTestLogger creates a new logger instance that writes to the testing.T logger.
// This is useful for seeing host, lease and processor log output during test runs.
func NewTestLogger(t testing.TB) types.Logger {
	return logger.NewTest(t)
}
