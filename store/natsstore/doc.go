// Package natsstore implements store.Client on NATS JetStream.
//
// Layout, for a store created with BucketPrefix "changefeed":
//
//   - Documents of collection db/coll live in the KV bucket
//     changefeed_db_coll. The document ETag is the decimal KV revision, so
//     ReplaceDocument and DeleteDocument are compare-and-set operations on the
//     revision.
//   - The change feed of db/coll is the stream changefeed_FEED_db_coll with
//     subjects feed.db.coll.<partition>. A continuation is the decimal stream
//     sequence of the last delivered message. Sequences are global to the
//     stream, so a parent partition's continuation is a valid lower bound for
//     its children after a split.
//   - The partition registry is the KV bucket changefeed_partitions keyed
//     db.coll.<partition>.
//
// Partition and document IDs must be valid NATS subject tokens / KV keys.
package natsstore
