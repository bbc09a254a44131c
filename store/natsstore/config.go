package natsstore

import (
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Config configures the JetStream layout of a Store.
type Config struct {
	// BucketPrefix prefixes every bucket and stream name (default "changefeed").
	BucketPrefix string

	// Storage is the storage backend of buckets and streams (default file).
	Storage jetstream.StorageType

	// Replicas is the replication factor of buckets and streams (default 1).
	Replicas int

	// FeedMaxAge bounds change-feed retention (0 = unlimited).
	FeedMaxAge time.Duration

	// DefaultMaxItemCount is the page size when a read does not set one (default 100).
	DefaultMaxItemCount int

	// BootstrapRetries is the number of attempts to create a bucket or stream (default 3).
	BootstrapRetries int
}

// DefaultConfig returns the default store layout.
func DefaultConfig() Config {
	return Config{
		BucketPrefix:        "changefeed",
		Storage:             jetstream.FileStorage,
		Replicas:            1,
		DefaultMaxItemCount: 100,
		BootstrapRetries:    3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BucketPrefix == "" {
		c.BucketPrefix = d.BucketPrefix
	}
	if c.Replicas <= 0 {
		c.Replicas = d.Replicas
	}
	if c.DefaultMaxItemCount <= 0 {
		c.DefaultMaxItemCount = d.DefaultMaxItemCount
	}
	if c.BootstrapRetries <= 0 {
		c.BootstrapRetries = d.BootstrapRetries
	}

	return c
}
