package lease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/arloliu/changefeed/store"
	"github.com/arloliu/changefeed/types"
)

// StoreConfig locates lease documents.
type StoreConfig struct {
	// Client is the store client holding the lease collection. Required.
	Client store.Client

	// LeaseCollection is the collection holding lease documents. Required.
	LeaseCollection store.Collection

	// FeedCollection is the monitored collection. Optional; when Prefix is empty
	// it scopes lease ids as "<database>.<collection>." so that several feeds
	// can share one lease collection.
	FeedCollection store.Collection

	// Prefix is prepended to partition IDs to form lease document IDs.
	Prefix string
}

// Validate checks required fields.
func (c StoreConfig) Validate() error {
	if c.Client == nil {
		return fmt.Errorf("%w: lease store client is required", types.ErrInvalidConfig)
	}
	if c.LeaseCollection.Collection == "" {
		return fmt.Errorf("%w: lease collection is required", types.ErrInvalidConfig)
	}

	return nil
}

func (c StoreConfig) prefix() string {
	if c.Prefix != "" || c.FeedCollection.IsZero() {
		return c.Prefix
	}

	return c.FeedCollection.Database + "." + c.FeedCollection.Collection + "."
}

// Store reads and writes lease documents.
type Store struct {
	client store.Client
	coll   store.Collection
	prefix string
}

// NewStore creates a lease store accessor.
//
// Parameters:
//   - cfg: Store configuration (client and lease collection are required)
//
// Returns:
//   - *Store: The accessor
//   - error: ErrInvalidConfig if a required field is missing
func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Store{client: cfg.Client, coll: cfg.LeaseCollection, prefix: cfg.prefix()}, nil
}

// Prefix returns the lease document ID prefix.
func (s *Store) Prefix() string {
	return s.prefix
}

// Read returns the current version of a lease.
//
// Returns ErrLeaseNotFound if the lease does not exist.
func (s *Store) Read(ctx context.Context, partitionID string) (*Lease, error) {
	doc, err := s.client.ReadDocument(ctx, s.coll, s.docID(partitionID))
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("read lease %s: %w", partitionID, types.ErrLeaseNotFound)
		}

		return nil, fmt.Errorf("read lease %s: %w", partitionID, err)
	}

	return decode(doc)
}

// Create stores a new lease.
//
// Returns ErrLeaseExists if a lease for the partition is already stored.
func (s *Store) Create(ctx context.Context, l *Lease) (*Lease, error) {
	doc, err := s.encode(l)
	if err != nil {
		return nil, err
	}

	created, err := s.client.CreateDocument(ctx, s.coll, doc)
	if err != nil {
		if store.IsConflict(err) {
			return nil, fmt.Errorf("create lease %s: %w", l.PartitionID, types.ErrLeaseExists)
		}

		return nil, fmt.Errorf("create lease %s: %w", l.PartitionID, err)
	}

	return decode(created)
}

// Replace writes l conditionally on l.ETag.
//
// Returns ErrPreconditionFailed if the stored version moved past l.ETag and
// ErrLeaseNotFound if the lease was deleted.
func (s *Store) Replace(ctx context.Context, l *Lease) (*Lease, error) {
	doc, err := s.encode(l)
	if err != nil {
		return nil, err
	}

	replaced, err := s.client.ReplaceDocument(ctx, s.coll, doc, l.ETag)
	if err != nil {
		switch {
		case store.IsPreconditionFailed(err):
			return nil, fmt.Errorf("replace lease %s: %w", l.PartitionID, types.ErrPreconditionFailed)
		case store.IsNotFound(err):
			return nil, fmt.Errorf("replace lease %s: %w", l.PartitionID, types.ErrLeaseNotFound)
		default:
			return nil, fmt.Errorf("replace lease %s: %w", l.PartitionID, err)
		}
	}

	return decode(replaced)
}

// Delete removes a lease unconditionally.
//
// Returns ErrLeaseNotFound if the lease does not exist.
func (s *Store) Delete(ctx context.Context, partitionID string) error {
	err := s.client.DeleteDocument(ctx, s.coll, s.docID(partitionID), "")
	if err != nil {
		if store.IsNotFound(err) {
			return fmt.Errorf("delete lease %s: %w", partitionID, types.ErrLeaseNotFound)
		}

		return fmt.Errorf("delete lease %s: %w", partitionID, err)
	}

	return nil
}

// List returns every lease under the store's prefix, ordered by partition ID.
func (s *Store) List(ctx context.Context) ([]*Lease, error) {
	docs, err := s.client.QueryDocuments(ctx, s.coll, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list leases: %w", err)
	}

	leases := make([]*Lease, 0, len(docs))
	for i := range docs {
		l, err := decode(&docs[i])
		if err != nil {
			return nil, err
		}
		leases = append(leases, l)
	}

	return leases, nil
}

func (s *Store) docID(partitionID string) string {
	return s.prefix + partitionID
}

func (s *Store) encode(l *Lease) (store.Document, error) {
	body, err := json.Marshal(l)
	if err != nil {
		return store.Document{}, fmt.Errorf("encode lease %s: %w", l.PartitionID, err)
	}

	return store.Document{ID: s.docID(l.PartitionID), Body: body}, nil
}

var errEmptyPartition = errors.New("lease document has no partition id")

func decode(doc *store.Document) (*Lease, error) {
	var l Lease
	if err := json.Unmarshal(doc.Body, &l); err != nil {
		return nil, fmt.Errorf("decode lease %s: %w", doc.ID, err)
	}
	if strings.TrimSpace(l.PartitionID) == "" {
		return nil, fmt.Errorf("decode lease %s: %w", doc.ID, errEmptyPartition)
	}
	l.ETag = doc.ETag

	return &l, nil
}
