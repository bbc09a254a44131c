package source

import (
	"context"
	"slices"
	"sync"

	"github.com/arloliu/changefeed/types"
)

// Static implements a partition source with a fixed list of partitions.
type Static struct {
	mu         sync.RWMutex
	partitions []types.Partition
}

var _ types.PartitionSource = (*Static)(nil)

// NewStatic creates a new static partition source.
//
// Useful for testing and for stores whose partition set never changes.
//
// Parameters:
//   - partitions: Initial list of partitions
//
// Returns:
//   - *Static: Initialized static source
//
// Example:
//
//	src := source.NewStatic([]types.Partition{{ID: "0"}, {ID: "1"}})
//	host, err := changefeed.NewHost(cfg, client, src, handler)
//	if err != nil { /* handle */ }
func NewStatic(partitions []types.Partition) *Static {
	s := &Static{}
	s.Update(partitions)

	return s
}

// NewStaticIDs creates a static source of root partitions with the given IDs.
func NewStaticIDs(ids ...string) *Static {
	partitions := make([]types.Partition, 0, len(ids))
	for _, id := range ids {
		partitions = append(partitions, types.Partition{ID: id})
	}

	return NewStatic(partitions)
}

// ListPartitions returns a copy of the partition list.
//
// Returns:
//   - []types.Partition: The current list of partitions
//   - error: ctx's error if it is done
func (s *Static) ListPartitions(ctx context.Context) ([]types.Partition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return clonePartitions(s.partitions), nil
}

// Update replaces the partition list.
//
// Parameters:
//   - partitions: New list of partitions
func (s *Static) Update(partitions []types.Partition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.partitions = clonePartitions(partitions)
}

// Split replaces parent with children whose Parents name it.
//
// Returns:
//   - bool: false if parent is not listed
func (s *Static) Split(parent string, children ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.partitions, func(p types.Partition) bool { return p.ID == parent })
	if idx < 0 {
		return false
	}

	replacement := make([]types.Partition, 0, len(children))
	for _, c := range children {
		replacement = append(replacement, types.Partition{ID: c, Parents: []string{parent}})
	}
	s.partitions = slices.Replace(s.partitions, idx, idx+1, replacement...)

	return true
}

// Remove drops a partition from the list.
func (s *Static) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.partitions = slices.DeleteFunc(s.partitions, func(p types.Partition) bool { return p.ID == id })
}

func clonePartitions(in []types.Partition) []types.Partition {
	out := make([]types.Partition, len(in))
	for i, p := range in {
		out[i] = types.Partition{ID: p.ID, Parents: slices.Clone(p.Parents)}
	}

	return out
}
