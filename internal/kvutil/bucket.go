// Package kvutil provides bootstrap helpers for NATS JetStream KeyValue buckets and streams.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// EnsureKVBucketWithRetry creates or opens a KV bucket with retry logic.
//
// Several hosts bootstrap the same document buckets concurrently on startup;
// a losing creator opens the bucket created by the winner. Transient failures
// are retried with exponential backoff.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration
//   - maxRetries: Maximum number of attempts (default: 3)
//
// Returns:
//   - jetstream.KeyValue: The KV bucket instance
//   - error: Any error that occurred after all retries
//
// Example:
//
//	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
//	    Bucket:  "changefeed_app_leases",
//	    History: 1,
//	}, 3)
func EnsureKVBucketWithRetry(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	maxRetries int,
) (jetstream.KeyValue, error) {
	var kv jetstream.KeyValue
	err := retry(ctx, maxRetries, func() error {
		created, err := js.CreateKeyValue(ctx, config)
		if err == nil {
			kv = created
			return nil
		}
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return err
		}

		opened, err := js.KeyValue(ctx, config.Bucket)
		if err != nil {
			return fmt.Errorf("bucket exists but failed to open: %w", err)
		}
		kv = opened

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/open KV bucket %s: %w", config.Bucket, err)
	}

	return kv, nil
}

// EnsureStreamWithRetry creates or updates a stream with retry logic.
//
// CreateOrUpdateStream is idempotent for identical configurations, so
// concurrent hosts converge on the same stream.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: Stream configuration
//   - maxRetries: Maximum number of attempts (default: 3)
//
// Returns:
//   - jetstream.Stream: The stream handle
//   - error: Any error that occurred after all retries
func EnsureStreamWithRetry(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.StreamConfig,
	maxRetries int,
) (jetstream.Stream, error) {
	var stream jetstream.Stream
	err := retry(ctx, maxRetries, func() error {
		s, err := js.CreateOrUpdateStream(ctx, config)
		if err != nil {
			return err
		}
		stream = s

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", config.Name, err)
	}

	return stream, nil
}

func retry(ctx context.Context, maxRetries int, fn func() error) error {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		}

		// Exponential backoff: 10ms, 20ms, 40ms...
		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond //nolint:gosec // attempt is bounded by maxRetries
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}
