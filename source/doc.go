// Package source provides built-in partition source implementations.
//
// Partition sources discover the live partitions of a monitored collection.
// Store backends expose their own partition registry as a source
// (memstore.Store.Source, natsstore.Store.Source, redisstore.Store.Source);
// this package adds:
//
//   - Static: Fixed, manually updated list of partitions
//
// Custom sources can be implemented by satisfying the types.PartitionSource interface.
package source
