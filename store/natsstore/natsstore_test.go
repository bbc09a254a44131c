package natsstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/changefeed/classify"
	"github.com/arloliu/changefeed/lease"
	"github.com/arloliu/changefeed/store"
	cftest "github.com/arloliu/changefeed/testing"
	"github.com/arloliu/changefeed/types"
)

var (
	docsColl = store.Collection{Database: "app", Collection: "leases"}
	feedColl = store.Collection{Database: "app", Collection: "orders"}
)

func newStore(t *testing.T) *Store {
	t.Helper()

	_, nc := cftest.StartEmbeddedNATS(t)
	s, err := New(t.Context(), nc, Config{Storage: jetstream.MemoryStorage}, WithLogger(cftest.NewTestLogger(t)))
	require.NoError(t, err)

	return s
}

func TestNew_RequiresConnection(t *testing.T) {
	_, err := New(t.Context(), nil, Config{})
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestDocuments(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()

	t.Run("create then read", func(t *testing.T) {
		created, err := s.CreateDocument(ctx, docsColl, store.Document{ID: "d1", Body: []byte(`{"v":1}`)})
		require.NoError(t, err)
		require.NotEmpty(t, created.ETag)

		got, err := s.ReadDocument(ctx, docsColl, "d1")
		require.NoError(t, err)
		require.Equal(t, created.ETag, got.ETag)
		require.JSONEq(t, `{"v":1}`, string(got.Body))
	})

	t.Run("create existing is a conflict", func(t *testing.T) {
		_, err := s.CreateDocument(ctx, docsColl, store.Document{ID: "d1", Body: []byte(`{}`)})
		require.True(t, store.IsConflict(err), "got %v", err)
	})

	t.Run("read missing is not found", func(t *testing.T) {
		_, err := s.ReadDocument(ctx, docsColl, "missing")
		require.True(t, store.IsNotFound(err), "got %v", err)
	})

	t.Run("replace checks etag", func(t *testing.T) {
		cur, err := s.ReadDocument(ctx, docsColl, "d1")
		require.NoError(t, err)

		next, err := s.ReplaceDocument(ctx, docsColl, store.Document{ID: "d1", Body: []byte(`{"v":2}`)}, cur.ETag)
		require.NoError(t, err)
		require.NotEqual(t, cur.ETag, next.ETag)

		_, err = s.ReplaceDocument(ctx, docsColl, store.Document{ID: "d1", Body: []byte(`{"v":3}`)}, cur.ETag)
		require.True(t, store.IsPreconditionFailed(err), "got %v", err)

		_, err = s.ReplaceDocument(ctx, docsColl, store.Document{ID: "nope", Body: []byte(`{}`)}, "1")
		require.True(t, store.IsNotFound(err), "got %v", err)

		_, err = s.ReplaceDocument(ctx, docsColl, store.Document{ID: "d1", Body: []byte(`{}`)}, "not-a-number")
		require.Equal(t, store.StatusBadRequest, store.StatusOf(err))
	})

	t.Run("query by prefix", func(t *testing.T) {
		for _, id := range []string{"q.b", "q.a", "other"} {
			_, err := s.CreateDocument(ctx, docsColl, store.Document{ID: id, Body: []byte(`{}`)})
			require.NoError(t, err)
		}

		docs, err := s.QueryDocuments(ctx, docsColl, "q.")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		require.Equal(t, "q.a", docs[0].ID)
		require.Equal(t, "q.b", docs[1].ID)

		empty, err := s.QueryDocuments(ctx, store.Collection{Database: "app", Collection: "empty"}, "")
		require.NoError(t, err)
		require.Empty(t, empty)
	})

	t.Run("delete", func(t *testing.T) {
		cur, err := s.ReadDocument(ctx, docsColl, "q.a")
		require.NoError(t, err)

		require.True(t, store.IsPreconditionFailed(s.DeleteDocument(ctx, docsColl, "q.a", "1")))
		require.NoError(t, s.DeleteDocument(ctx, docsColl, "q.a", cur.ETag))
		require.True(t, store.IsNotFound(s.DeleteDocument(ctx, docsColl, "q.a", "")))
		require.NoError(t, s.DeleteDocument(ctx, docsColl, "q.b", ""))

		// A deleted document can be created again.
		_, err = s.CreateDocument(ctx, docsColl, store.Document{ID: "q.a", Body: []byte(`{}`)})
		require.NoError(t, err)
	})
}

func TestDocuments_WriteReturnsWrittenVersion(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()

	created, err := s.CreateDocument(ctx, docsColl, store.Document{ID: "w", Body: []byte(`{"n":0}`)})
	require.NoError(t, err)
	require.JSONEq(t, `{"n":0}`, string(created.Body))

	// Writers race on one document. Every successful write must report the
	// body it stored and a revision no other writer was given.
	const writers = 8
	var (
		mu    sync.Mutex
		etags = map[string]string{created.ETag: `{"n":0}`}
	)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			body := fmt.Sprintf(`{"n":%d}`, i+1)
			for {
				cur, err := s.ReadDocument(ctx, docsColl, "w")
				if err != nil {
					t.Errorf("read: %v", err)
					return
				}
				next, err := s.ReplaceDocument(ctx, docsColl, store.Document{ID: "w", Body: []byte(body)}, cur.ETag)
				if store.IsPreconditionFailed(err) {
					continue
				}
				if err != nil {
					t.Errorf("replace: %v", err)
					return
				}
				if string(next.Body) != body {
					t.Errorf("replace returned body %s, wrote %s", next.Body, body)
				}

				mu.Lock()
				if prev, dup := etags[next.ETag]; dup {
					t.Errorf("etag %s returned for %s and %s", next.ETag, prev, body)
				}
				etags[next.ETag] = body
				mu.Unlock()

				return
			}
		}()
	}
	wg.Wait()
	require.Len(t, etags, writers+1)

	// The last reported version is the one stored.
	final, err := s.ReadDocument(ctx, docsColl, "w")
	require.NoError(t, err)
	require.Equal(t, etags[final.ETag], string(final.Body))
}

func appendDocs(t *testing.T, s *Store, partitionID string, ids ...string) string {
	t.Helper()

	docs := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, store.Document{ID: id, Body: []byte(`"` + id + `"`)})
	}
	cont, err := s.Append(t.Context(), feedColl, partitionID, docs...)
	require.NoError(t, err)

	return cont
}

func TestReadChanges(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreatePartition(ctx, feedColl, "p0"))
	require.NoError(t, s.CreatePartition(ctx, feedColl, "p1"))
	require.NoError(t, s.CreatePartition(ctx, feedColl, "p0")) // idempotent

	appendDocs(t, s, "p0", "a", "b")
	appendDocs(t, s, "p1", "x")
	last := appendDocs(t, s, "p0", "c")

	t.Run("pages from the beginning", func(t *testing.T) {
		page, err := s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0", StartFromBeginning: true, MaxItemCount: 2})
		require.NoError(t, err)
		require.True(t, page.HasMoreResults)
		require.Equal(t, []string{"a", "b"}, []string{page.Documents[0].ID, page.Documents[1].ID})

		page, err = s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0", Continuation: page.Continuation, MaxItemCount: 2})
		require.NoError(t, err)
		require.False(t, page.HasMoreResults)
		require.Len(t, page.Documents, 1)
		require.Equal(t, "c", page.Documents[0].ID)
		require.Equal(t, last, page.Continuation)
	})

	t.Run("empty page keeps the continuation", func(t *testing.T) {
		page, err := s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0", Continuation: last})
		require.NoError(t, err)
		require.Empty(t, page.Documents)
		require.Equal(t, last, page.Continuation)
	})

	t.Run("start from now", func(t *testing.T) {
		page, err := s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0"})
		require.NoError(t, err)
		require.Empty(t, page.Documents)

		appendDocs(t, s, "p0", "d")
		page, err = s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0", Continuation: page.Continuation})
		require.NoError(t, err)
		require.Len(t, page.Documents, 1)
		require.Equal(t, "d", page.Documents[0].ID)
	})

	t.Run("start time", func(t *testing.T) {
		time.Sleep(20 * time.Millisecond)
		mark := time.Now()
		appendDocs(t, s, "p0", "e")

		page, err := s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0", StartTime: mark})
		require.NoError(t, err)
		require.Len(t, page.Documents, 1)
		require.Equal(t, "e", page.Documents[0].ID)
	})

	t.Run("invalid continuation", func(t *testing.T) {
		_, err := s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0", Continuation: "abc"})
		require.Equal(t, classify.Undefined, classify.Default.Classify(err))
	})
}

func TestPartitionLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreatePartition(ctx, feedColl, "p0"))
	require.NoError(t, s.CreatePartition(ctx, feedColl, "q0"))
	cont := appendDocs(t, s, "p0", "a")

	_, err := s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "unknown"})
	require.Equal(t, classify.PartitionNotFound, classify.Default.Classify(err))

	require.NoError(t, s.SplitPartition(ctx, feedColl, "p0", "p1", "p2"))
	_, err = s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0", Continuation: cont})
	require.Equal(t, classify.PartitionSplit, classify.Default.Classify(err))

	_, err = s.Append(ctx, feedColl, "p0", store.Document{ID: "late"})
	require.Error(t, err)

	// The parent's continuation is a valid starting point for a child.
	appendDocs(t, s, "p1", "b")
	page, err := s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p1", Continuation: cont})
	require.NoError(t, err)
	require.Len(t, page.Documents, 1)
	require.Equal(t, "b", page.Documents[0].ID)

	require.NoError(t, s.RemovePartition(ctx, feedColl, "q0"))
	_, err = s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "q0"})
	require.Equal(t, classify.PartitionNotFound, classify.Default.Classify(err))

	parts, err := s.Source(feedColl).ListPartitions(ctx)
	require.NoError(t, err)
	require.Equal(t, []types.Partition{
		{ID: "p1", Parents: []string{"p0"}},
		{ID: "p2", Parents: []string{"p0"}},
	}, parts)

	other, err := s.Source(store.Collection{Database: "app", Collection: "none"}).ListPartitions(ctx)
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestCanceledContext(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.CreatePartition(t.Context(), feedColl, "p0"))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := s.ReadDocument(ctx, docsColl, "d1")
	require.True(t, store.IsOperationCanceled(err), "got %v", err)
}

func TestLeaseManagerOverNATS(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()

	mgr, err := lease.NewManager(lease.ManagerConfig{
		StoreConfig: lease.StoreConfig{Client: s, LeaseCollection: docsColl, FeedCollection: feedColl},
	})
	require.NoError(t, err)

	l, err := mgr.CreateLeaseIfNotExists(ctx, "p0", "")
	require.NoError(t, err)
	again, err := mgr.CreateLeaseIfNotExists(ctx, "p0", "ignored")
	require.NoError(t, err)
	require.Equal(t, l.ETag, again.ETag)

	require.NoError(t, mgr.Acquire(ctx, l, "host-a"))
	stale := l.Clone()
	require.NoError(t, mgr.Checkpoint(ctx, l, "42"))

	// A stale copy held by another host cannot steal without re-reading.
	require.NoError(t, mgr.Acquire(ctx, stale, "host-b"))
	require.ErrorIs(t, mgr.Checkpoint(ctx, l, "43"), types.ErrLeaseLost)

	got, err := mgr.Get(ctx, "p0")
	require.NoError(t, err)
	require.Equal(t, "host-b", got.Owner)
	require.Equal(t, "42", got.ContinuationToken)

	require.NoError(t, mgr.Delete(ctx, got))
	require.NoError(t, mgr.Delete(ctx, got))

	leases, err := mgr.List(ctx)
	require.NoError(t, err)
	require.Empty(t, leases)
}
