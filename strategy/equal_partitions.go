package strategy

import (
	"time"

	"github.com/arloliu/changefeed/lease"
)

// EqualPartitions spreads leases evenly across live hosts.
type EqualPartitions struct {
	hashSeed uint64
}

var _ Strategy = (*EqualPartitions)(nil)

// EqualPartitionsOption configures an EqualPartitions strategy.
type EqualPartitionsOption func(*EqualPartitions)

// WithRendezvousSeed sets the seed of the rendezvous ranking.
func WithRendezvousSeed(seed uint64) EqualPartitionsOption {
	return func(e *EqualPartitions) {
		e.hashSeed = seed
	}
}

// NewEqualPartitions creates the default lease selection strategy.
//
// Example:
//
//	host, err := changefeed.NewHost(cfg, client, src, handler,
//	    changefeed.WithStrategy(strategy.NewEqualPartitions()),
//	)
func NewEqualPartitions(opts ...EqualPartitionsOption) *EqualPartitions {
	e := &EqualPartitions{}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Select implements Strategy.
//
// The algorithm:
//  1. Live hosts are the owners of unexpired leases plus owner itself
//  2. target = ceil(len(leases) / hosts), capped by maxPerHost when set
//  3. Free leases (unowned or expired) are ranked by rendezvous score and the
//     top target-owned of them are returned
//  4. With nothing free, one lease of the most loaded host is returned if
//     that host holds more than target
func (e *EqualPartitions) Select(owner string, leases []*lease.Lease, now time.Time, expiration time.Duration, maxPerHost int) []*lease.Lease {
	v := newView(owner, leases, now, expiration, maxPerHost)

	need := v.need()
	if need <= 0 {
		return nil
	}
	if len(v.free) == 0 {
		return v.steal(e.hashSeed)
	}

	ranked := rank(owner, e.hashSeed, v.free)

	return ranked[:min(need, len(ranked))]
}
