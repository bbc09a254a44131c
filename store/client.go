package store

import (
	"context"
	"time"
)

// Collection locates a document collection.
type Collection struct {
	Database   string `yaml:"database" json:"database"`
	Collection string `yaml:"collection" json:"collection"`
}

// String returns "database/collection".
func (c Collection) String() string {
	return c.Database + "/" + c.Collection
}

// IsZero reports whether the locator is empty.
func (c Collection) IsZero() bool {
	return c.Database == "" && c.Collection == ""
}

// Document is a versioned document.
type Document struct {
	// ID is unique within the collection.
	ID string

	// ETag is the store-assigned version; it changes on every write.
	ETag string

	// Timestamp is the time the store accepted the last write.
	Timestamp time.Time

	// Body is the raw document payload, normally JSON.
	Body []byte
}

// ChangeFeedOptions parameterizes one change-feed page read.
type ChangeFeedOptions struct {
	// PartitionID selects the partition to read.
	PartitionID string

	// Continuation resumes after the position it names. Empty means start
	// according to StartFromBeginning / StartTime.
	Continuation string

	// StartFromBeginning starts at the oldest retained change when Continuation is empty.
	StartFromBeginning bool

	// StartTime starts at the first change at or after this time when
	// Continuation is empty and StartFromBeginning is false.
	StartTime time.Time

	// MaxItemCount bounds the page size; 0 means the store default.
	MaxItemCount int

	// SessionToken is passed through for session-consistent stores.
	SessionToken string
}

// ChangePage is one page of changes.
type ChangePage struct {
	// Documents are ordered by store continuation.
	Documents []Document

	// Continuation is valid after this page. It is empty when the page did not
	// move the cursor and the caller should keep its current continuation.
	Continuation string

	// HasMoreResults reports that another page is immediately available.
	HasMoreResults bool

	// SessionToken is the session token after this read.
	SessionToken string
}

// Reader reads change-feed pages. It is the only store surface the processor loop needs.
type Reader interface {
	// ReadChanges reads the next page of changes for one partition.
	ReadChanges(ctx context.Context, coll Collection, opts ChangeFeedOptions) (*ChangePage, error)
}

// ReaderFunc is a function adapter for Reader.
type ReaderFunc func(ctx context.Context, coll Collection, opts ChangeFeedOptions) (*ChangePage, error)

// ReadChanges implements Reader interface.
func (f ReaderFunc) ReadChanges(ctx context.Context, coll Collection, opts ChangeFeedOptions) (*ChangePage, error) {
	return f(ctx, coll, opts)
}

// Client is the full store surface used by the lease manager and the host.
//
// All methods return *Error for store faults.
type Client interface {
	Reader

	// ReadDocument returns the document or a 404 fault.
	ReadDocument(ctx context.Context, coll Collection, id string) (*Document, error)

	// CreateDocument stores a new document and returns it with its ETag set.
	// An existing document yields a 409 fault.
	CreateDocument(ctx context.Context, coll Collection, doc Document) (*Document, error)

	// ReplaceDocument overwrites a document if its current ETag equals etag.
	// A stale etag yields 412, a missing document 404.
	ReplaceDocument(ctx context.Context, coll Collection, doc Document, etag string) (*Document, error)

	// DeleteDocument removes a document. A non-empty etag makes the delete
	// conditional (412 on mismatch). A missing document yields 404.
	DeleteDocument(ctx context.Context, coll Collection, id, etag string) error

	// QueryDocuments returns all documents whose ID starts with prefix, ordered by ID.
	QueryDocuments(ctx context.Context, coll Collection, prefix string) ([]Document, error)
}
