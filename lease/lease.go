package lease

import (
	"slices"
	"time"
)

// Lease represents exclusive ownership of one partition's read cursor.
type Lease struct {
	// PartitionID is the stable identifier of the partition.
	PartitionID string `json:"partitionId"`

	// Owner identifies the owning host; empty means unowned.
	Owner string `json:"owner,omitempty"`

	// ContinuationToken is the cursor to resume from; empty means start per
	// the collection default (beginning or now).
	ContinuationToken string `json:"continuationToken,omitempty"`

	// Timestamp is the wall-clock time of the last acquire, renew or checkpoint (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Parents lists the partitions this partition was split from.
	Parents []string `json:"parents,omitempty"`

	// ETag is the store-assigned concurrency tag of the version this copy was read at.
	ETag string `json:"-"`
}

// Clone returns a deep copy of the lease.
func (l *Lease) Clone() *Lease {
	c := *l
	c.Parents = slices.Clone(l.Parents)

	return &c
}

// IsOwned reports whether the lease has an owner.
func (l *Lease) IsOwned() bool {
	return l.Owner != ""
}

// IsExpired reports whether the lease is free to be taken: unowned, or not
// renewed within expiration.
func (l *Lease) IsExpired(now time.Time, expiration time.Duration) bool {
	if !l.IsOwned() {
		return true
	}

	return now.Sub(l.Timestamp) > expiration
}
