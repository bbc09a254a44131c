// Package memstore provides an in-process store.Client with a partitioned
// change feed and fault injection. It backs unit tests and examples.
package memstore

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/changefeed/store"
	"github.com/arloliu/changefeed/types"
)

// Op names a store operation for fault injection.
type Op string

const (
	OpRead        Op = "read"
	OpCreate      Op = "create"
	OpReplace     Op = "replace"
	OpDelete      Op = "delete"
	OpQuery       Op = "query"
	OpReadChanges Op = "read_changes"
)

// FaultFunc decides whether an operation fails. key is the document ID, or
// the partition ID for OpReadChanges. A nil return lets the operation proceed.
type FaultFunc func(op Op, coll store.Collection, key string) error

// DefaultMaxItemCount is the page size used when a read does not set one.
const DefaultMaxItemCount = 100

type partitionState int

const (
	partitionActive partitionState = iota
	partitionSplit
	partitionRemoved
)

type entry struct {
	seq uint64
	at  time.Time
	doc store.Document
}

type partition struct {
	state    partitionState
	parents  []string
	children []string
	entries  []entry
}

type collection struct {
	docs       map[string]store.Document
	partitions map[string]*partition
	order      []string
}

// Store is an in-memory store.Client.
//
// Document versions and change sequence numbers share one global counter, so
// continuations of a split parent remain valid lower bounds for its children.
type Store struct {
	mu          sync.Mutex
	seq         uint64
	collections map[store.Collection]*collection
	fault       FaultFunc
	reads       []store.ChangeFeedOptions
	now         func() time.Time
}

// Compile-time assertion that Store implements store.Client.
var _ store.Client = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		collections: make(map[store.Collection]*collection),
		now:         time.Now,
	}
}

// SetClock overrides the clock used for document and change timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = now
}

// SetFault installs a fault injector; nil removes it.
func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fault = f
}

// Reads returns the options of every ReadChanges call, in order.
func (s *Store) Reads() []store.ChangeFeedOptions {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.reads)
}

func (s *Store) coll(c store.Collection) *collection {
	col, ok := s.collections[c]
	if !ok {
		col = &collection{
			docs:       make(map[string]store.Document),
			partitions: make(map[string]*partition),
		}
		s.collections[c] = col
	}

	return col
}

func (s *Store) next() (string, time.Time) {
	s.seq++
	return strconv.FormatUint(s.seq, 10), s.now().UTC()
}

func (s *Store) check(ctx context.Context, op Op, coll store.Collection, key string) error {
	if err := ctx.Err(); err != nil {
		return store.Canceled(err, string(op))
	}
	if s.fault != nil {
		return s.fault(op, coll, key)
	}

	return nil
}

// ReadDocument implements store.Client.
func (s *Store) ReadDocument(ctx context.Context, coll store.Collection, id string) (*store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, OpRead, coll, id); err != nil {
		return nil, err
	}

	doc, ok := s.coll(coll).docs[id]
	if !ok {
		return nil, store.NewError(store.StatusNotFound, store.SubStatusNotFound, "document %s not found", id)
	}

	return cloneDoc(doc), nil
}

// CreateDocument implements store.Client.
func (s *Store) CreateDocument(ctx context.Context, coll store.Collection, doc store.Document) (*store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, OpCreate, coll, doc.ID); err != nil {
		return nil, err
	}

	col := s.coll(coll)
	if _, ok := col.docs[doc.ID]; ok {
		return nil, store.NewError(store.StatusConflict, store.SubStatusNone, "document %s already exists", doc.ID)
	}
	doc.ETag, doc.Timestamp = s.next()
	doc.Body = slices.Clone(doc.Body)
	col.docs[doc.ID] = doc

	return cloneDoc(doc), nil
}

// ReplaceDocument implements store.Client.
func (s *Store) ReplaceDocument(ctx context.Context, coll store.Collection, doc store.Document, etag string) (*store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, OpReplace, coll, doc.ID); err != nil {
		return nil, err
	}

	col := s.coll(coll)
	cur, ok := col.docs[doc.ID]
	if !ok {
		return nil, store.NewError(store.StatusNotFound, store.SubStatusNotFound, "document %s not found", doc.ID)
	}
	if cur.ETag != etag {
		return nil, store.NewError(store.StatusPreconditionFailed, store.SubStatusNone,
			"document %s etag %s does not match %s", doc.ID, cur.ETag, etag)
	}
	doc.ETag, doc.Timestamp = s.next()
	doc.Body = slices.Clone(doc.Body)
	col.docs[doc.ID] = doc

	return cloneDoc(doc), nil
}

// DeleteDocument implements store.Client.
func (s *Store) DeleteDocument(ctx context.Context, coll store.Collection, id, etag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, OpDelete, coll, id); err != nil {
		return err
	}

	col := s.coll(coll)
	cur, ok := col.docs[id]
	if !ok {
		return store.NewError(store.StatusNotFound, store.SubStatusNotFound, "document %s not found", id)
	}
	if etag != "" && cur.ETag != etag {
		return store.NewError(store.StatusPreconditionFailed, store.SubStatusNone, "document %s etag mismatch", id)
	}
	delete(col.docs, id)

	return nil
}

// QueryDocuments implements store.Client.
func (s *Store) QueryDocuments(ctx context.Context, coll store.Collection, prefix string) ([]store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, OpQuery, coll, prefix); err != nil {
		return nil, err
	}

	var out []store.Document
	for id, doc := range s.coll(coll).docs {
		if strings.HasPrefix(id, prefix) {
			out = append(out, *cloneDoc(doc))
		}
	}
	slices.SortFunc(out, func(a, b store.Document) int { return strings.Compare(a.ID, b.ID) })

	return out, nil
}

// ReadChanges implements store.Reader.
//
// Reads on a split partition fail with 410/Splitting, reads on a removed or
// unknown partition with 404/NotFound.
func (s *Store) ReadChanges(ctx context.Context, coll store.Collection, opts store.ChangeFeedOptions) (*store.ChangePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads = append(s.reads, opts)
	if err := s.check(ctx, OpReadChanges, coll, opts.PartitionID); err != nil {
		return nil, err
	}

	p, ok := s.coll(coll).partitions[opts.PartitionID]
	if !ok || p.state == partitionRemoved {
		return nil, store.NewError(store.StatusNotFound, store.SubStatusNotFound, "partition %s not found", opts.PartitionID)
	}
	if p.state == partitionSplit {
		return nil, store.NewError(store.StatusGone, store.SubStatusSplitting, "partition %s was split", opts.PartitionID)
	}

	start, err := s.startSeq(p, opts)
	if err != nil {
		return nil, err
	}

	limit := opts.MaxItemCount
	if limit <= 0 {
		limit = DefaultMaxItemCount
	}

	page := &store.ChangePage{Continuation: strconv.FormatUint(start, 10)}
	for _, e := range p.entries {
		if e.seq <= start {
			continue
		}
		if len(page.Documents) == limit {
			page.HasMoreResults = true
			break
		}
		page.Documents = append(page.Documents, *cloneDoc(e.doc))
		page.Continuation = strconv.FormatUint(e.seq, 10)
	}
	page.SessionToken = "mem:" + strconv.FormatUint(s.seq, 10)

	return page, nil
}

func (s *Store) startSeq(p *partition, opts store.ChangeFeedOptions) (uint64, error) {
	switch {
	case opts.Continuation != "":
		seq, err := strconv.ParseUint(opts.Continuation, 10, 64)
		if err != nil {
			return 0, store.NewError(store.StatusBadRequest, store.SubStatusNone, "invalid continuation %q", opts.Continuation)
		}

		return seq, nil
	case opts.StartFromBeginning:
		return 0, nil
	case !opts.StartTime.IsZero():
		for _, e := range p.entries {
			if !e.at.Before(opts.StartTime) {
				return e.seq - 1, nil
			}
		}

		return s.seq, nil
	default:
		return s.seq, nil
	}
}

// AddPartition registers an active partition.
func (s *Store) AddPartition(coll store.Collection, partitionID string, parents ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.coll(coll)
	if _, ok := col.partitions[partitionID]; ok {
		return
	}
	col.partitions[partitionID] = &partition{parents: slices.Clone(parents)}
	col.order = append(col.order, partitionID)
}

// Append adds documents to a partition's change feed and returns the
// continuation after the last one.
func (s *Store) Append(coll store.Collection, partitionID string, docs ...store.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.coll(coll).partitions[partitionID]
	if !ok || p.state != partitionActive {
		return "", store.NewError(store.StatusNotFound, store.SubStatusNotFound, "partition %s not active", partitionID)
	}

	var cont string
	for _, d := range docs {
		var at time.Time
		cont, at = s.next()
		d.ETag = cont
		d.Timestamp = at
		d.Body = slices.Clone(d.Body)
		p.entries = append(p.entries, entry{seq: s.seq, at: at, doc: d})
	}

	return cont, nil
}

// Split retires parent and registers children as its successors.
func (s *Store) Split(coll store.Collection, parent string, children ...string) error {
	s.mu.Lock()
	p, ok := s.coll(coll).partitions[parent]
	if !ok || p.state != partitionActive {
		s.mu.Unlock()
		return store.NewError(store.StatusNotFound, store.SubStatusNotFound, "partition %s not active", parent)
	}
	p.state = partitionSplit
	p.children = slices.Clone(children)
	s.mu.Unlock()

	for _, c := range children {
		s.AddPartition(coll, c, parent)
	}

	return nil
}

// RemovePartition retires a partition without successors.
func (s *Store) RemovePartition(coll store.Collection, partitionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.coll(coll).partitions[partitionID]; ok {
		p.state = partitionRemoved
	}
}

// Source returns a PartitionSource listing the active partitions of coll.
func (s *Store) Source(coll store.Collection) types.PartitionSource {
	return &source{store: s, coll: coll}
}

type source struct {
	store *Store
	coll  store.Collection
}

func (src *source) ListPartitions(ctx context.Context) ([]types.Partition, error) {
	s := src.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, OpQuery, src.coll, ""); err != nil {
		return nil, err
	}

	col := s.coll(src.coll)
	out := make([]types.Partition, 0, len(col.order))
	for _, id := range col.order {
		p := col.partitions[id]
		if p.state != partitionActive {
			continue
		}
		out = append(out, types.Partition{ID: id, Parents: slices.Clone(p.parents)})
	}

	return out, nil
}

func cloneDoc(d store.Document) *store.Document {
	d.Body = slices.Clone(d.Body)
	return &d
}
