package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	goredis "github.com/redis/go-redis/v9"

	"github.com/arloliu/changefeed/store"
	"github.com/arloliu/changefeed/types"
)

type partitionState string

const (
	stateActive  partitionState = "active"
	stateSplit   partitionState = "split"
	stateRemoved partitionState = "removed"
)

type partitionRecord struct {
	State    partitionState `json:"state"`
	Parents  []string       `json:"parents,omitempty"`
	Children []string       `json:"children,omitempty"`

	// Floor is the last feed entry ID of the parent when this partition was
	// split from it. Entries of this partition are always above it.
	Floor string `json:"floor,omitempty"`
}

func (s *Store) registryKey(coll store.Collection) string {
	return s.base(coll) + "partitions"
}

func (s *Store) partition(ctx context.Context, rdb goredis.Cmdable, coll store.Collection, partitionID string) (*partitionRecord, error) {
	raw, err := rdb.HGet(ctx, s.registryKey(coll), partitionID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.NewError(store.StatusNotFound, store.SubStatusNotFound, "partition %s not found", partitionID)
	}
	if err != nil {
		return nil, mapError("read partition "+partitionID, err)
	}

	var rec partitionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, store.WrapError(store.StatusInternalError, store.SubStatusNone, err, "decode partition %s", partitionID)
	}

	return &rec, nil
}

func (s *Store) checkReadable(ctx context.Context, coll store.Collection, partitionID string) error {
	_, err := s.readable(ctx, coll, partitionID)
	return err
}

// readable returns the record of an active partition, or the fault a read on
// it must fail with.
func (s *Store) readable(ctx context.Context, coll store.Collection, partitionID string) (*partitionRecord, error) {
	rec, err := s.partition(ctx, s.rdb, coll, partitionID)
	if err != nil {
		return nil, err
	}

	switch rec.State {
	case stateSplit:
		return nil, store.NewError(store.StatusGone, store.SubStatusSplitting, "partition %s was split into %v", partitionID, rec.Children)
	case stateRemoved:
		return nil, store.NewError(store.StatusNotFound, store.SubStatusNotFound, "partition %s was removed", partitionID)
	default:
		return rec, nil
	}
}

func encodeRecord(rec partitionRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode partition record: %w", err)
	}

	return string(data), nil
}

// CreatePartition registers an active partition. Registering an existing
// partition is a no-op.
func (s *Store) CreatePartition(ctx context.Context, coll store.Collection, partitionID string, parents ...string) error {
	val, err := encodeRecord(partitionRecord{State: stateActive, Parents: parents})
	if err != nil {
		return err
	}

	return mapError("create partition "+partitionID, s.rdb.HSetNX(ctx, s.registryKey(coll), partitionID, val).Err())
}

// SplitPartition retires parent and registers children as its successors.
//
// Each child records the parent's last feed entry ID as its floor, so every
// child entry sorts above any continuation taken from the parent.
//
// The update runs in a WATCH transaction over the registry and the parent's
// feed; a concurrent change to either fails it with a 412 fault.
func (s *Store) SplitPartition(ctx context.Context, coll store.Collection, parent string, children ...string) error {
	key := s.registryKey(coll)
	parentFeed := s.feedKey(coll, parent)

	txf := func(tx *goredis.Tx) error {
		rec, err := s.partition(ctx, tx, coll, parent)
		if err != nil {
			return err
		}
		if rec.State != stateActive {
			return store.NewError(store.StatusConflict, store.SubStatusNone, "partition %s is %s", parent, rec.State)
		}

		rec.State = stateSplit
		rec.Children = slices.Clone(children)
		parentVal, err := encodeRecord(*rec)
		if err != nil {
			return err
		}
		floor := rec.Floor
		last, err := tx.XRevRangeN(ctx, parentFeed, "+", "-", 1).Result()
		if err != nil {
			return mapError("split partition "+parent, err)
		}
		if len(last) > 0 {
			floor = last[0].ID
		}

		childVal, err := encodeRecord(partitionRecord{State: stateActive, Parents: []string{parent}, Floor: floor})
		if err != nil {
			return err
		}

		// runs only if the registry is unchanged since the read
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, c := range children {
				pipe.HSetNX(ctx, key, c, childVal)
			}
			pipe.HSet(ctx, key, parent, parentVal)

			return nil
		})

		return err
	}

	if err := s.rdb.Watch(ctx, txf, key, parentFeed); err != nil {
		if _, ok := store.AsError(err); ok {
			return err
		}

		return mapError("split partition "+parent, err)
	}
	s.logger.Info("partition split", "collection", coll.String(), "partition_id", parent, "children", children)

	return nil
}

// RemovePartition retires a partition without successors.
func (s *Store) RemovePartition(ctx context.Context, coll store.Collection, partitionID string) error {
	rec, err := s.partition(ctx, s.rdb, coll, partitionID)
	if err != nil {
		return err
	}
	rec.State = stateRemoved

	val, err := encodeRecord(*rec)
	if err != nil {
		return err
	}

	return mapError("remove partition "+partitionID, s.rdb.HSet(ctx, s.registryKey(coll), partitionID, val).Err())
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
	all, err := src.store.rdb.HGetAll(ctx, src.store.registryKey(src.coll)).Result()
	if err != nil {
		return nil, mapError("list partitions", err)
	}

	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []types.Partition
	for _, id := range ids {
		var rec partitionRecord
		if err := json.Unmarshal([]byte(all[id]), &rec); err != nil {
			return nil, store.WrapError(store.StatusInternalError, store.SubStatusNone, err, "decode partition %s", id)
		}
		if rec.State == stateActive {
			out = append(out, types.Partition{ID: id, Parents: rec.Parents})
		}
	}

	return out, nil
}
