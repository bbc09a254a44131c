package types

import "context"

// PartitionSource lists the live partitions of the monitored collection.
//
// natsstore, redisstore and memstore expose their partition registries
// through Source(coll); source.Static serves a fixed list.
//
// The Host lists partitions at startup, on every acquire round and after a
// processor reports a split. A partition that was split or removed must no
// longer be listed; its children must carry it in Parents.
type PartitionSource interface {
	// ListPartitions returns the live partitions in a stable order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//
	// Returns:
	//   - []Partition: Live partitions
	//   - error: Store fault, passed through unmodified
	ListPartitions(ctx context.Context) ([]Partition, error)
}
