package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	t.Run("errors.Is works correctly", func(t *testing.T) {
		require.True(t, errors.Is(ErrLeaseLost, ErrLeaseLost))
		require.False(t, errors.Is(ErrLeaseLost, ErrLeaseNotFound))

		wrapped := fmt.Errorf("checkpoint partition 7: %w", ErrLeaseLost)
		require.True(t, errors.Is(wrapped, ErrLeaseLost))
	})

	t.Run("all errors are distinct", func(t *testing.T) {
		allErrors := []error{
			ErrInvalidConfig,
			ErrStoreClientRequired,
			ErrPartitionSourceRequired,
			ErrHandlerRequired,
			ErrAlreadyStarted,
			ErrNotStarted,
			ErrLeaseLost,
			ErrLeaseNotFound,
			ErrLeaseExists,
			ErrPreconditionFailed,
			ErrPartitionNotFound,
			ErrPartitionSplit,
			ErrNoKeysFound,
		}

		for i, err1 := range allErrors {
			for j, err2 := range allErrors {
				if i == j {
					require.True(t, errors.Is(err1, err2), "error should equal itself: %v", err1)
				} else {
					require.False(t, errors.Is(err1, err2), "errors should be distinct: %v vs %v", err1, err2)
				}
			}
		}
	})
}

func TestIsNoKeysFoundError(t *testing.T) {
	t.Run("returns false for nil error", func(t *testing.T) {
		require.False(t, IsNoKeysFoundError(nil))
	})

	t.Run("returns true for wrapped ErrNoKeysFound", func(t *testing.T) {
		wrapped := errors.Join(ErrNoKeysFound, errors.New("additional context"))
		require.True(t, IsNoKeysFoundError(wrapped))
	})

	t.Run("returns true for NATS error message", func(t *testing.T) {
		require.True(t, IsNoKeysFoundError(errors.New("failed to list KV keys: nats: no keys found")))
	})

	t.Run("returns false for unrelated error", func(t *testing.T) {
		require.False(t, IsNoKeysFoundError(errors.New("some other error")))
		require.False(t, IsNoKeysFoundError(ErrLeaseLost))
	})
}
