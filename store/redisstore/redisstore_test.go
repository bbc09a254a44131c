package redisstore

import (
	"context"
	"math"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
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

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	_, rdb := cftest.StartEmbeddedRedis(t)
	s, err := New(rdb, Config{}, append([]Option{WithLogger(cftest.NewTestLogger(t))}, opts...)...)
	require.NoError(t, err)

	return s
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil, Config{})
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestDocuments(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newStore(t, WithClock(func() time.Time { return now }))
	ctx := t.Context()

	created, err := s.CreateDocument(ctx, docsColl, store.Document{ID: "d1", Body: []byte(`{"v":1}`)})
	require.NoError(t, err)
	require.Equal(t, "1", created.ETag)
	require.Equal(t, now, created.Timestamp)

	_, err = s.CreateDocument(ctx, docsColl, store.Document{ID: "d1", Body: []byte(`{}`)})
	require.True(t, store.IsConflict(err), "got %v", err)

	got, err := s.ReadDocument(ctx, docsColl, "d1")
	require.NoError(t, err)
	require.Equal(t, created, got)

	_, err = s.ReadDocument(ctx, docsColl, "missing")
	require.True(t, store.IsNotFound(err))

	next, err := s.ReplaceDocument(ctx, docsColl, store.Document{ID: "d1", Body: []byte(`{"v":2}`)}, created.ETag)
	require.NoError(t, err)
	require.Equal(t, "2", next.ETag)

	_, err = s.ReplaceDocument(ctx, docsColl, store.Document{ID: "d1", Body: []byte(`{"v":3}`)}, created.ETag)
	require.True(t, store.IsPreconditionFailed(err), "got %v", err)

	_, err = s.ReplaceDocument(ctx, docsColl, store.Document{ID: "nope"}, "1")
	require.True(t, store.IsNotFound(err))

	for _, id := range []string{"q.b", "q.a", "other"} {
		_, err := s.CreateDocument(ctx, docsColl, store.Document{ID: id, Body: []byte(id)})
		require.NoError(t, err)
	}
	docs, err := s.QueryDocuments(ctx, docsColl, "q.")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "q.a", docs[0].ID)
	require.Equal(t, []byte("q.a"), docs[0].Body)

	require.True(t, store.IsPreconditionFailed(s.DeleteDocument(ctx, docsColl, "d1", "1")))
	require.NoError(t, s.DeleteDocument(ctx, docsColl, "d1", next.ETag))
	require.True(t, store.IsNotFound(s.DeleteDocument(ctx, docsColl, "d1", "")))
	require.NoError(t, s.DeleteDocument(ctx, docsColl, "q.a", ""))

	docs, err = s.QueryDocuments(ctx, docsColl, "q.")
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func appendDocs(t *testing.T, s *Store, partitionID string, ids ...string) string {
	t.Helper()

	docs := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, store.Document{ID: id, Body: []byte(id)})
	}
	cont, err := s.Append(t.Context(), feedColl, partitionID, docs...)
	require.NoError(t, err)

	return cont
}

func TestReadChanges(t *testing.T) {
	_, rdb := cftest.StartEmbeddedRedis(t)
	s, err := New(rdb, Config{DefaultMaxItemCount: 2})
	require.NoError(t, err)
	ctx := t.Context()

	require.NoError(t, s.CreatePartition(ctx, feedColl, "p0"))
	require.NoError(t, s.CreatePartition(ctx, feedColl, "p0"))

	_, err = s.Append(ctx, feedColl, "unknown", store.Document{ID: "x"})
	require.True(t, store.IsNotFound(err))

	appendDocs(t, s, "p0", "a", "b")
	last := appendDocs(t, s, "p0", "c")

	page, err := s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0", StartFromBeginning: true})
	require.NoError(t, err)
	require.True(t, page.HasMoreResults)
	require.Len(t, page.Documents, 2)
	require.Equal(t, "a", page.Documents[0].ID)
	require.Equal(t, []byte("b"), page.Documents[1].Body)

	page, err = s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0", Continuation: page.Continuation})
	require.NoError(t, err)
	require.False(t, page.HasMoreResults)
	require.Len(t, page.Documents, 1)
	require.Equal(t, last, page.Continuation)

	// Start from now skips history.
	page, err = s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0"})
	require.NoError(t, err)
	require.Empty(t, page.Documents)
	require.Equal(t, last, page.Continuation)

	// Start time selects by entry ID time.
	time.Sleep(5 * time.Millisecond)
	mark := time.Now()
	time.Sleep(5 * time.Millisecond)
	appendDocs(t, s, "p0", "d")

	page, err = s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0", StartTime: mark})
	require.NoError(t, err)
	require.Len(t, page.Documents, 1)
	require.Equal(t, "d", page.Documents[0].ID)

	_, err = s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0", Continuation: "bogus"})
	require.Equal(t, classify.Undefined, classify.Default.Classify(err))
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

	err = s.SplitPartition(ctx, feedColl, "p0", "p3")
	require.True(t, store.IsConflict(err), "got %v", err)

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
}

func TestSplitChildrenSortAboveParent(t *testing.T) {
	_, rdb := cftest.StartEmbeddedRedis(t)
	s, err := New(rdb, Config{})
	require.NoError(t, err)
	ctx := t.Context()

	require.NoError(t, s.CreatePartition(ctx, feedColl, "p0"))

	// A parent entry in a millisecond the clock has not reached yet stands in
	// for a child write landing in the same millisecond as the parent's last.
	parentCont, err := rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: s.feedKey(feedColl, "p0"),
		ID:     "99999999999999-5",
		Values: []any{fieldID, "a", fieldBody, "a"},
	}).Result()
	require.NoError(t, err)

	require.NoError(t, s.SplitPartition(ctx, feedColl, "p0", "p1", "p2"))

	childCont := appendDocs(t, s, "p1", "b", "c")
	page, err := s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p1", Continuation: parentCont})
	require.NoError(t, err)
	require.Len(t, page.Documents, 2)
	require.Equal(t, "99999999999999-6", page.Documents[0].ETag)
	require.Equal(t, "c", page.Documents[1].ID)
	require.Equal(t, childCont, page.Continuation)

	// p2 is split again before it ever received an entry; its children
	// inherit the original floor.
	require.NoError(t, s.SplitPartition(ctx, feedColl, "p2", "p3"))
	appendDocs(t, s, "p3", "d")
	page, err = s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p3", Continuation: parentCont})
	require.NoError(t, err)
	require.Len(t, page.Documents, 1)
	require.Equal(t, "d", page.Documents[0].ID)
}

func TestFirstChildID(t *testing.T) {
	floor := streamID{ms: 1000, seq: 3}

	require.Equal(t, streamID{ms: 1000, seq: 4}, firstChildID(floor, time.UnixMilli(1000)))
	require.Equal(t, streamID{ms: 1000, seq: 4}, firstChildID(floor, time.UnixMilli(999)))
	require.Equal(t, streamID{ms: 1001}, firstChildID(floor, time.UnixMilli(1001)))
	require.Equal(t, streamID{ms: 1001}, firstChildID(streamID{ms: 1000, seq: math.MaxUint64}, time.UnixMilli(1000)))
}

func TestConnectivityFaultsAreTransient(t *testing.T) {
	mr, rdb := cftest.StartEmbeddedRedis(t)
	s, err := New(rdb, Config{})
	require.NoError(t, err)
	require.NoError(t, s.CreatePartition(t.Context(), feedColl, "p0"))

	mr.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	_, err = s.ReadChanges(ctx, feedColl, store.ChangeFeedOptions{PartitionID: "p0"})
	require.Error(t, err)
	require.Equal(t, classify.TransientError, classify.Default.Classify(err), "got %v", err)
}

func TestLeaseManagerOverRedis(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()

	mgr, err := lease.NewManager(lease.ManagerConfig{
		StoreConfig: lease.StoreConfig{Client: s, LeaseCollection: docsColl, FeedCollection: feedColl},
	})
	require.NoError(t, err)

	l, err := mgr.CreateLeaseIfNotExists(ctx, "p0", "", "root")
	require.NoError(t, err)
	require.NoError(t, mgr.Acquire(ctx, l, "host-a"))
	require.NoError(t, mgr.Checkpoint(ctx, l, "1-0"))
	require.NoError(t, mgr.Renew(ctx, l))

	owned, err := mgr.Owned(ctx, "host-a")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, "1-0", owned[0].ContinuationToken)
	require.Equal(t, []string{"root"}, owned[0].Parents)

	require.NoError(t, mgr.Release(ctx, l))
	require.ErrorIs(t, mgr.Checkpoint(ctx, l, "2-0"), types.ErrLeaseLost)
}
