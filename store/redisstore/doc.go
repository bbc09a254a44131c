// Package redisstore implements store.Client on Redis.
//
// Every key of collection db/coll shares the hash tag {db:coll}, so the Lua
// scripts that update several keys atomically also run on Redis Cluster.
//
//   - Documents are hashes <prefix>:{db:coll}:doc:<id> with fields etag, body
//     and ts. ETags come from the counter <prefix>:{db:coll}:etag, and
//     create, replace and delete run as Lua scripts so the etag check and the
//     write are atomic.
//   - The set <prefix>:{db:coll}:ids indexes document IDs for prefix queries.
//   - Each partition's change feed is the stream <prefix>:{db:coll}:feed:<partition>.
//     A continuation is the last delivered stream ID. Stream IDs are
//     time-ordered, so a parent's continuation is a valid lower bound for
//     the streams of its children.
//   - The partition registry is the hash <prefix>:{db:coll}:partitions.
package redisstore
