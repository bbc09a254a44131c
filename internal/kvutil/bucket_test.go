package kvutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	cftest "github.com/arloliu/changefeed/testing"
)

// TestConcurrentKVBucketCreation verifies that multiple goroutines can safely
// ensure the same KV bucket concurrently without errors.
func TestConcurrentKVBucketCreation(t *testing.T) {
	_, nc := cftest.StartEmbeddedNATS(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	const numWorkers = 5
	var wg sync.WaitGroup
	errs := make([]error, numWorkers)
	kvs := make([]jetstream.KeyValue, numWorkers)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			kvs[idx], errs[idx] = EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
				Bucket:  "concurrent-leases",
				History: 1,
				Storage: jetstream.MemoryStorage,
			}, 3)
		}(i)
	}
	wg.Wait()

	for i := 0; i < numWorkers; i++ {
		require.NoError(t, errs[i], "worker %d", i)
		require.NotNil(t, kvs[i], "worker %d", i)
	}

	_, err = kvs[0].Create(ctx, "lease.p1", []byte("{}"))
	require.NoError(t, err)

	entry, err := kvs[numWorkers-1].Get(ctx, "lease.p1")
	require.NoError(t, err)
	require.Equal(t, "{}", string(entry.Value()))
}

func TestEnsureStreamWithRetry(t *testing.T) {
	_, nc := cftest.StartEmbeddedNATS(t)
	ctx := t.Context()

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	cfg := jetstream.StreamConfig{
		Name:     "FEED_TEST",
		Subjects: []string{"feed.test.>"},
		Storage:  jetstream.MemoryStorage,
	}

	s1, err := EnsureStreamWithRetry(ctx, js, cfg, 3)
	require.NoError(t, err)
	s2, err := EnsureStreamWithRetry(ctx, js, cfg, 3)
	require.NoError(t, err)

	require.Equal(t, s1.CachedInfo().Config.Name, s2.CachedInfo().Config.Name)
}

func TestEnsureKVBucketWithRetry_CanceledContext(t *testing.T) {
	_, nc := cftest.StartEmbeddedNATS(t)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{Bucket: "never"}, 3)
	require.Error(t, err)
}
