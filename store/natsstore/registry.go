package natsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/changefeed/store"
	"github.com/arloliu/changefeed/types"
)

type partitionState string

const (
	stateActive  partitionState = "active"
	stateSplit   partitionState = "split"
	stateRemoved partitionState = "removed"
)

// partitionRecord is the registry value of one partition.
type partitionRecord struct {
	State    partitionState `json:"state"`
	Parents  []string       `json:"parents,omitempty"`
	Children []string       `json:"children,omitempty"`
}

func registryPrefix(coll store.Collection) string {
	return sanitize(coll.Database) + "." + sanitize(coll.Collection) + "."
}

func registryKey(coll store.Collection, partitionID string) string {
	return registryPrefix(coll) + partitionID
}

func (s *Store) partition(ctx context.Context, coll store.Collection, partitionID string) (*partitionRecord, uint64, error) {
	entry, err := s.registry.Get(ctx, registryKey(coll, partitionID))
	if err != nil {
		return nil, 0, mapError("read partition "+partitionID, err)
	}

	var rec partitionRecord
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return nil, 0, store.WrapError(store.StatusInternalError, store.SubStatusNone, err, "decode partition %s", partitionID)
	}

	return &rec, entry.Revision(), nil
}

// checkReadable fails with the fault a reader of a retired partition observes.
func (s *Store) checkReadable(ctx context.Context, coll store.Collection, partitionID string) error {
	rec, _, err := s.partition(ctx, coll, partitionID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.NewError(store.StatusNotFound, store.SubStatusNotFound, "partition %s not found", partitionID)
		}

		return err
	}

	switch rec.State {
	case stateSplit:
		return store.NewError(store.StatusGone, store.SubStatusSplitting, "partition %s was split into %v", partitionID, rec.Children)
	case stateRemoved:
		return store.NewError(store.StatusNotFound, store.SubStatusNotFound, "partition %s was removed", partitionID)
	default:
		return nil
	}
}

func (s *Store) putPartition(ctx context.Context, coll store.Collection, partitionID string, rec partitionRecord, rev uint64) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode partition %s: %w", partitionID, err)
	}

	key := registryKey(coll, partitionID)
	if rev == 0 {
		_, err = s.registry.Create(ctx, key, data)
	} else {
		_, err = s.registry.Update(ctx, key, data, rev)
	}

	return mapError("write partition "+partitionID, err)
}

// CreatePartition registers an active partition. Registering an existing
// partition is a no-op.
func (s *Store) CreatePartition(ctx context.Context, coll store.Collection, partitionID string, parents ...string) error {
	if _, err := s.feed(ctx, coll); err != nil {
		return err
	}

	err := s.putPartition(ctx, coll, partitionID, partitionRecord{State: stateActive, Parents: parents}, 0)
	if store.IsPreconditionFailed(err) {
		return nil
	}

	return err
}

// SplitPartition retires parent and registers children as its successors.
func (s *Store) SplitPartition(ctx context.Context, coll store.Collection, parent string, children ...string) error {
	rec, rev, err := s.partition(ctx, coll, parent)
	if err != nil {
		return err
	}
	if rec.State != stateActive {
		return store.NewError(store.StatusConflict, store.SubStatusNone, "partition %s is %s", parent, rec.State)
	}

	for _, c := range children {
		if err := s.CreatePartition(ctx, coll, c, parent); err != nil {
			return err
		}
	}

	rec.State = stateSplit
	rec.Children = slices.Clone(children)
	if err := s.putPartition(ctx, coll, parent, *rec, rev); err != nil {
		return err
	}
	s.logger.Info("partition split", "collection", coll.String(), "partition_id", parent, "children", children)

	return nil
}

// RemovePartition retires a partition without successors.
func (s *Store) RemovePartition(ctx context.Context, coll store.Collection, partitionID string) error {
	rec, rev, err := s.partition(ctx, coll, partitionID)
	if err != nil {
		return err
	}
	rec.State = stateRemoved

	return s.putPartition(ctx, coll, partitionID, *rec, rev)
}

// Source returns a PartitionSource listing the active partitions of coll.
func (s *Store) Source(coll store.Collection) types.PartitionSource {
	return &source{store: s, coll: coll}
}

type source struct {
	store *Store
	coll  store.Collection
}

// ListPartitions implements types.PartitionSource.
func (src *source) ListPartitions(ctx context.Context) ([]types.Partition, error) {
	keys, err := src.store.registry.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) || types.IsNoKeysFoundError(err) {
			return nil, nil
		}

		return nil, mapError("list partitions", err)
	}
	slices.Sort(keys)

	prefix := registryPrefix(src.coll)
	var out []types.Partition
	for _, key := range keys {
		id, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}

		rec, _, err := src.store.partition(ctx, src.coll, id)
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.State != stateActive {
			continue
		}
		out = append(out, types.Partition{ID: id, Parents: rec.Parents})
	}

	return out, nil
}
