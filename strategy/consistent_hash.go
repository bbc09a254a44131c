package strategy

import (
	"time"

	"github.com/arloliu/changefeed/internal/hash"
	"github.com/arloliu/changefeed/lease"
)

// ConsistentHash prefers the free leases a hash ring of live hosts maps to
// this host, falling back to EqualPartitions for the remainder of its share.
type ConsistentHash struct {
	virtualNodes int
	hashSeed     uint64
}

var _ Strategy = (*ConsistentHash)(nil)

// ConsistentHashOption configures a ConsistentHash strategy.
type ConsistentHashOption func(*ConsistentHash)

// NewConsistentHash creates an affinity-preserving lease selection strategy.
//
// Parameters:
//   - opts: Optional configuration (WithVirtualNodes, WithHashSeed)
//
// Returns:
//   - *ConsistentHash: Initialized consistent hash strategy
func NewConsistentHash(opts ...ConsistentHashOption) *ConsistentHash {
	ch := &ConsistentHash{
		virtualNodes: 150,
	}
	for _, opt := range opts {
		opt(ch)
	}

	return ch
}

// WithVirtualNodes sets the number of virtual nodes per host.
//
// Recommended range: 100-300 (default: 150).
func WithVirtualNodes(nodes int) ConsistentHashOption {
	return func(ch *ConsistentHash) {
		if nodes > 0 {
			ch.virtualNodes = nodes
		}
	}
}

// WithHashSeed sets a custom hash seed for the ring and the fallback ranking.
func WithHashSeed(seed uint64) ConsistentHashOption {
	return func(ch *ConsistentHash) {
		ch.hashSeed = seed
	}
}

// Select implements Strategy.
func (ch *ConsistentHash) Select(owner string, leases []*lease.Lease, now time.Time, expiration time.Duration, maxPerHost int) []*lease.Lease {
	v := newView(owner, leases, now, expiration, maxPerHost)

	need := v.need()
	if need <= 0 {
		return nil
	}
	if len(v.free) == 0 {
		return v.steal(ch.hashSeed)
	}

	ring := hash.NewRing(v.hosts(), ch.virtualNodes, ch.hashSeed)

	var mine, rest []*lease.Lease
	for _, l := range v.free {
		if ring.GetNode(l.PartitionID) == owner {
			mine = append(mine, l)
		} else {
			rest = append(rest, l)
		}
	}

	out := rank(owner, ch.hashSeed, mine)
	if len(out) >= need {
		return out[:need]
	}

	rest = rank(owner, ch.hashSeed, rest)

	return append(out, rest[:min(need-len(out), len(rest))]...)
}
