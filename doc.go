// Package changefeed provides a Go library for processing a partitioned change
// feed across many hosts with lease-based ownership and checkpointing.
//
// Each partition of the monitored collection is represented by a lease
// document in a lease collection. A Host keeps one lease per live partition,
// balances ownership with its peers, renews what it owns and runs one
// processor loop per owned partition. The processor delivers batches to a
// ChangeHandler and persists the continuation in the lease on checkpoint, so
// another host resumes where the previous owner stopped.
//
// # Quick Start
//
// Basic usage on NATS JetStream:
//
//	import "github.com/arloliu/changefeed"
//
//	st, _ := natsstore.New(ctx, nc, natsstore.DefaultConfig())
//
//	cfg := changefeed.DefaultConfig()
//	cfg.FeedCollection = store.Collection{Database: "shop", Collection: "orders"}
//	cfg.LeaseCollection = store.Collection{Database: "shop", Collection: "leases"}
//
//	handler := changefeed.HandlerFunc(func(ctx context.Context, cc *changefeed.ChangeContext, docs []store.Document) error {
//	    for _, d := range docs {
//	        process(d)
//	    }
//	    return cc.Checkpoint(ctx)
//	})
//
//	host, err := changefeed.NewHost(cfg, st, st.Source(cfg.FeedCollection), handler)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := host.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer host.Stop(context.Background())
//
// # Key Features
//
//   - Lease Ownership: optimistic-concurrency leases with expiration, renewal
//     and best-effort release on shutdown
//   - Checkpointing: continuations are written only through the owning lease,
//     so a host that lost its lease can never move another host's checkpoint
//   - Split Handover: children of a split partition start from the parent's
//     last checkpoint
//   - Fault Classification: store faults are mapped to retry, shrink-page or
//     terminate decisions by the classify package
//   - Pluggable Balancing: rendezvous-ranked equal spreading by default, or a
//     consistent hash ring
//   - Multiple Backends: NATS JetStream (store/natsstore), Redis
//     (store/redisstore) and an in-memory store for tests (store/memstore)
//
// # Architecture
//
// A Host runs three activities:
//
//  1. Acquire loop: lists partitions, creates missing leases, deletes leases
//     of retired partitions and takes the leases the Strategy selects
//  2. Renewer: renews every owned lease on LeaseRenewInterval
//  3. Processors: one loop per owned lease, reading the feed and dispatching
//     batches until a terminal reason ends it
//
// The terminal reason decides what happens to the lease: shutdown and handler
// errors release it, a split creates child leases and deletes the parent's,
// a removed partition deletes it, and a lost lease is left to its new owner.
//
// # Configuration
//
// See Config for all options. Config can be loaded from YAML with LoadConfig.
//
// # Observability
//
// Plug in a Logger (see internal/logging for the slog adapter) and a
// MetricsCollector (see internal/metrics for the Prometheus collector).
package changefeed
