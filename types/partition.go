package types

import "slices"

// Partition represents one partition of a change feed.
//
// Partition IDs are assigned by the store and are never reused while the
// partition lives. When the store splits a partition, the children report the
// retired partition in Parents so that the host can carry the parent's
// continuation over to them.
type Partition struct {
	// ID uniquely identifies the partition within its collection.
	ID string `json:"id"`

	// Parents lists the partitions this one was split from (empty for roots).
	Parents []string `json:"parents,omitempty"`
}

// IsChildOf reports whether the partition was split from the given parent.
//
// Parameters:
//   - parentID: Partition ID of the candidate parent
//
// Returns:
//   - bool: true if parentID appears in Parents
func (p Partition) IsChildOf(parentID string) bool {
	return slices.Contains(p.Parents, parentID)
}

// Compare orders partitions by ID.
//
// Returns:
//   - int: -1 if p < q, 0 if equal, +1 if p > q
func (p Partition) Compare(q Partition) int {
	switch {
	case p.ID < q.ID:
		return -1
	case p.ID > q.ID:
		return 1
	default:
		return 0
	}
}
