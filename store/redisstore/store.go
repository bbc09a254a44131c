package redisstore

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arloliu/changefeed/internal/logger"
	"github.com/arloliu/changefeed/store"
	"github.com/arloliu/changefeed/types"
)

// Config configures the key layout of a Store.
type Config struct {
	// KeyPrefix prefixes every key (default "changefeed").
	KeyPrefix string

	// DefaultMaxItemCount is the page size when a read does not set one (default 100).
	DefaultMaxItemCount int
}

// Store is a store.Client backed by Redis.
type Store struct {
	rdb    goredis.UniversalClient
	cfg    Config
	logger types.Logger
	now    func() time.Time
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

// WithClock overrides the clock used for document timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store over rdb.
//
// Returns:
//   - *Store: Ready store; no keys are created until first use
//   - error: ErrInvalidConfig if rdb is nil
func New(rdb goredis.UniversalClient, cfg Config, opts ...Option) (*Store, error) {
	if rdb == nil {
		return nil, fmt.Errorf("%w: redis client is required", types.ErrInvalidConfig)
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "changefeed"
	}
	if cfg.DefaultMaxItemCount <= 0 {
		cfg.DefaultMaxItemCount = 100
	}

	s := &Store{
		rdb:    rdb,
		cfg:    cfg,
		logger: logger.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Store) base(coll store.Collection) string {
	return s.cfg.KeyPrefix + ":{" + coll.Database + ":" + coll.Collection + "}:"
}

func (s *Store) docKey(coll store.Collection, id string) string {
	return s.base(coll) + "doc:" + id
}

func (s *Store) etagKey(coll store.Collection) string {
	return s.base(coll) + "etag"
}

func (s *Store) idsKey(coll store.Collection) string {
	return s.base(coll) + "ids"
}

// ReadDocument implements store.Client.
func (s *Store) ReadDocument(ctx context.Context, coll store.Collection, id string) (*store.Document, error) {
	fields, err := s.rdb.HGetAll(ctx, s.docKey(coll, id)).Result()
	if err != nil {
		return nil, mapError("read document "+id, err)
	}
	if len(fields) == 0 {
		return nil, store.NewError(store.StatusNotFound, store.SubStatusNotFound, "read document %s: not found", id)
	}

	return toDocument(id, fields), nil
}

// CreateDocument implements store.Client.
func (s *Store) CreateDocument(ctx context.Context, coll store.Collection, doc store.Document) (*store.Document, error) {
	ts := s.now()
	res, err := createScript.Run(ctx, s.rdb,
		[]string{s.docKey(coll, doc.ID), s.etagKey(coll), s.idsKey(coll)},
		doc.ID, doc.Body, ts.UnixMilli(),
	).Result()
	if err != nil {
		return nil, mapError("create document "+doc.ID, err)
	}

	return s.scriptDocument("create document", doc, ts, res)
}

// ReplaceDocument implements store.Client.
func (s *Store) ReplaceDocument(ctx context.Context, coll store.Collection, doc store.Document, etag string) (*store.Document, error) {
	ts := s.now()
	res, err := replaceScript.Run(ctx, s.rdb,
		[]string{s.docKey(coll, doc.ID), s.etagKey(coll)},
		etag, doc.Body, ts.UnixMilli(),
	).Result()
	if err != nil {
		return nil, mapError("replace document "+doc.ID, err)
	}

	return s.scriptDocument("replace document", doc, ts, res)
}

// DeleteDocument implements store.Client.
func (s *Store) DeleteDocument(ctx context.Context, coll store.Collection, id, etag string) error {
	res, err := deleteScript.Run(ctx, s.rdb,
		[]string{s.docKey(coll, id), s.idsKey(coll)},
		id, etag,
	).Int64()
	if err != nil {
		return mapError("delete document "+id, err)
	}
	if res < 0 {
		return scriptStatus("delete document", id, res)
	}

	return nil
}

// QueryDocuments implements store.Client.
func (s *Store) QueryDocuments(ctx context.Context, coll store.Collection, prefix string) ([]store.Document, error) {
	ids, err := s.rdb.SMembers(ctx, s.idsKey(coll)).Result()
	if err != nil {
		return nil, mapError("query documents", err)
	}
	ids = slices.DeleteFunc(ids, func(id string) bool { return !strings.HasPrefix(id, prefix) })
	slices.Sort(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.docKey(coll, id))
		}

		return nil
	})
	if err != nil {
		return nil, mapError("query documents", err)
	}

	docs := make([]store.Document, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue // deleted since listing
		}
		docs = append(docs, *toDocument(ids[i], fields))
	}

	return docs, nil
}

func (s *Store) scriptDocument(op string, doc store.Document, ts time.Time, res any) (*store.Document, error) {
	switch v := res.(type) {
	case int64:
		return nil, scriptStatus(op, doc.ID, v)
	case string:
		return &store.Document{
			ID:        doc.ID,
			ETag:      v,
			Timestamp: time.UnixMilli(ts.UnixMilli()).UTC(),
			Body:      slices.Clone(doc.Body),
		}, nil
	default:
		return nil, store.NewError(store.StatusInternalError, store.SubStatusNone, "%s %s: unexpected script result %v", op, doc.ID, res)
	}
}

func toDocument(id string, fields map[string]string) *store.Document {
	doc := &store.Document{
		ID:   id,
		ETag: fields["etag"],
		Body: []byte(fields["body"]),
	}
	if ms, err := strconv.ParseInt(fields["ts"], 10, 64); err == nil {
		doc.Timestamp = time.UnixMilli(ms).UTC()
	}

	return doc
}
