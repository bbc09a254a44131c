package natsstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/changefeed/internal/kvutil"
	"github.com/arloliu/changefeed/internal/logger"
	"github.com/arloliu/changefeed/internal/natsutil"
	"github.com/arloliu/changefeed/store"
	"github.com/arloliu/changefeed/types"
)

// Store is a store.Client backed by NATS JetStream.
type Store struct {
	js       jetstream.JetStream
	cfg      Config
	logger   types.Logger
	registry jetstream.KeyValue

	buckets *xsync.Map[store.Collection, jetstream.KeyValue]
	streams *xsync.Map[store.Collection, jetstream.Stream]
}

var _ store.Client = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New connects a Store to JetStream and ensures the partition registry bucket.
//
// Parameters:
//   - ctx: Context for bucket bootstrap
//   - nc: Connected NATS client with JetStream enabled on the server
//   - cfg: Layout configuration; zero fields take DefaultConfig values
//   - opts: Optional logger
//
// Returns:
//   - *Store: Ready store
//   - error: JetStream or bootstrap error
func New(ctx context.Context, nc *nats.Conn, cfg Config, opts ...Option) (*Store, error) {
	if nc == nil {
		return nil, fmt.Errorf("%w: nats connection is required", types.ErrInvalidConfig)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	s := &Store{
		js:      js,
		cfg:     cfg.withDefaults(),
		logger:  logger.NewNop(),
		buckets: xsync.NewMap[store.Collection, jetstream.KeyValue](),
		streams: xsync.NewMap[store.Collection, jetstream.Stream](),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry, err = kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:   s.cfg.BucketPrefix + "_partitions",
		History:  1,
		Storage:  s.cfg.Storage,
		Replicas: s.cfg.Replicas,
	}, s.cfg.BootstrapRetries)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) bucket(ctx context.Context, coll store.Collection) (jetstream.KeyValue, error) {
	if kv, ok := s.buckets.Load(coll); ok {
		return kv, nil
	}

	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, s.js, jetstream.KeyValueConfig{
		Bucket:   s.cfg.BucketPrefix + "_" + name(coll),
		History:  1,
		Storage:  s.cfg.Storage,
		Replicas: s.cfg.Replicas,
	}, s.cfg.BootstrapRetries)
	if err != nil {
		return nil, mapError("open bucket", err)
	}
	kv, _ = s.buckets.LoadOrStore(coll, kv)
	s.logger.Debug("document bucket ready", "collection", coll.String())

	return kv, nil
}

// ReadDocument implements store.Client.
func (s *Store) ReadDocument(ctx context.Context, coll store.Collection, id string) (*store.Document, error) {
	kv, err := s.bucket(ctx, coll)
	if err != nil {
		return nil, err
	}

	entry, err := kv.Get(ctx, id)
	if err != nil {
		return nil, mapError("read document "+id, err)
	}

	return entryToDoc(entry), nil
}

// CreateDocument implements store.Client.
func (s *Store) CreateDocument(ctx context.Context, coll store.Collection, doc store.Document) (*store.Document, error) {
	kv, err := s.bucket(ctx, coll)
	if err != nil {
		return nil, err
	}

	rev, err := kv.Create(ctx, doc.ID, doc.Body)
	if err != nil {
		if natsutil.IsWrongRevision(err) {
			return nil, store.WrapError(store.StatusConflict, store.SubStatusNone, err, "create document %s", doc.ID)
		}

		return nil, mapError("create document "+doc.ID, err)
	}

	return writtenDoc(doc, rev), nil
}

// ReplaceDocument implements store.Client.
func (s *Store) ReplaceDocument(ctx context.Context, coll store.Collection, doc store.Document, etag string) (*store.Document, error) {
	kv, err := s.bucket(ctx, coll)
	if err != nil {
		return nil, err
	}

	rev, err := parseRevision(etag)
	if err != nil {
		return nil, err
	}

	next, err := kv.Update(ctx, doc.ID, doc.Body, rev)
	if err != nil {
		mapped := mapError("replace document "+doc.ID, err)
		if store.IsPreconditionFailed(mapped) {
			// A stale revision and a deleted key look the same to Update.
			if _, getErr := kv.Get(ctx, doc.ID); errors.Is(getErr, jetstream.ErrKeyNotFound) {
				return nil, mapError("replace document "+doc.ID, getErr)
			}
		}

		return nil, mapped
	}

	return writtenDoc(doc, next), nil
}

// DeleteDocument implements store.Client.
func (s *Store) DeleteDocument(ctx context.Context, coll store.Collection, id, etag string) error {
	kv, err := s.bucket(ctx, coll)
	if err != nil {
		return err
	}

	entry, err := kv.Get(ctx, id)
	if err != nil {
		return mapError("delete document "+id, err)
	}

	rev := entry.Revision()
	if etag != "" {
		if rev, err = parseRevision(etag); err != nil {
			return err
		}
	}

	if err := kv.Delete(ctx, id, jetstream.LastRevision(rev)); err != nil {
		return mapError("delete document "+id, err)
	}

	return nil
}

// QueryDocuments implements store.Client.
func (s *Store) QueryDocuments(ctx context.Context, coll store.Collection, prefix string) ([]store.Document, error) {
	kv, err := s.bucket(ctx, coll)
	if err != nil {
		return nil, err
	}

	keys, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) || types.IsNoKeysFoundError(err) {
			return nil, nil
		}

		return nil, mapError("query documents", err)
	}
	slices.Sort(keys)

	docs := make([]store.Document, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		entry, err := kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue // deleted since listing
		}
		if err != nil {
			return nil, mapError("query documents", err)
		}
		docs = append(docs, *entryToDoc(entry))
	}

	return docs, nil
}

// writtenDoc describes the version a successful Create or Update stored. It
// is built from the returned revision rather than read back, since a read
// may already see a later writer's version.
func writtenDoc(doc store.Document, rev uint64) *store.Document {
	return &store.Document{
		ID:        doc.ID,
		ETag:      strconv.FormatUint(rev, 10),
		Timestamp: time.Now().UTC(),
		Body:      slices.Clone(doc.Body),
	}
}

func entryToDoc(entry jetstream.KeyValueEntry) *store.Document {
	return &store.Document{
		ID:        entry.Key(),
		ETag:      strconv.FormatUint(entry.Revision(), 10),
		Timestamp: entry.Created(),
		Body:      slices.Clone(entry.Value()),
	}
}

func parseRevision(etag string) (uint64, error) {
	rev, err := strconv.ParseUint(etag, 10, 64)
	if err != nil {
		return 0, store.NewError(store.StatusBadRequest, store.SubStatusNone, "invalid etag %q", etag)
	}

	return rev, nil
}

// name renders a collection as a bucket/stream name token.
func name(coll store.Collection) string {
	return sanitize(coll.Database) + "_" + sanitize(coll.Collection)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
