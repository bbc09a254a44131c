package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/changefeed/store"
	"github.com/arloliu/changefeed/store/natsstore"
	"github.com/arloliu/changefeed/store/redisstore"
	"github.com/arloliu/changefeed/types"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
)

// backend is the store surface the CLI needs: the client used by the host
// plus the partition registry and feed producer of natsstore and redisstore.
type backend interface {
	store.Client

	Source(coll store.Collection) types.PartitionSource
	Append(ctx context.Context, coll store.Collection, partitionID string, docs ...store.Document) (string, error)
	CreatePartition(ctx context.Context, coll store.Collection, partitionID string, parents ...string) error
	SplitPartition(ctx context.Context, coll store.Collection, parent string, children ...string) error
	RemovePartition(ctx context.Context, coll store.Collection, partitionID string) error
}

var (
	_ backend = (*natsstore.Store)(nil)
	_ backend = (*redisstore.Store)(nil)
)

// openBackend connects to the configured store. The returned close function
// releases the connection.
func openBackend(ctx context.Context, o *globalOptions, logger types.Logger) (backend, func(), error) {
	switch o.backend {
	case "nats":
		nc, err := nats.Connect(o.natsURL,
			nats.Name("feedworker"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}

		cfg := natsstore.DefaultConfig()
		if o.keyPrefix != "" {
			cfg.BucketPrefix = o.keyPrefix
		}
		st, err := natsstore.New(ctx, nc, cfg, natsstore.WithLogger(logger))
		if err != nil {
			nc.Close()
			return nil, nil, err
		}

		return st, nc.Close, nil

	case "redis":
		rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{o.redisAddr}})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		st, err := redisstore.New(rdb, redisstore.Config{KeyPrefix: o.keyPrefix}, redisstore.WithLogger(logger))
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}

		return st, func() { _ = rdb.Close() }, nil

	default:
		return nil, nil, errors.New("invalid --backend; use nats|redis")
	}
}
