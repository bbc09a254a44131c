package hash

import (
	"encoding/binary"
	"slices"

	"github.com/zeebo/xxh3"
)

// Ring implements a consistent hash ring with virtual nodes.
//
// The ring maps partition IDs to hosts so that a host joining or leaving only
// moves the partitions adjacent to its virtual nodes.
type Ring struct {
	// nodes contains all virtual nodes on the ring, sorted by hash
	nodes []virtualNode

	// hosts holds the unique list of hosts present on the ring
	hosts []string

	// seed for hash function (0 means no seed)
	seed uint64
}

type virtualNode struct {
	hash uint64
	host string
}

// NewRing creates a new consistent hash ring.
//
// Parameters:
//   - hosts: Lease owner names to place on the ring
//   - virtualNodesPerHost: Number of virtual nodes per host (higher = better distribution)
//   - seed: Seed for hash function (0 for the unseeded variant)
//
// Returns:
//   - *Ring: Initialized hash ring
//
// Example:
//
//	ring := hash.NewRing([]string{"host-a", "host-b"}, 150, 0)
//	owner := ring.GetNode(partitionID)
func NewRing(hosts []string, virtualNodesPerHost int, seed uint64) *Ring {
	ring := &Ring{
		nodes: make([]virtualNode, 0, len(hosts)*virtualNodesPerHost),
		hosts: make([]string, 0, len(hosts)),
		seed:  seed,
	}

	seen := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		ring.hosts = append(ring.hosts, h)
		ring.addHost(h, virtualNodesPerHost)
	}

	slices.SortFunc(ring.nodes, func(a, b virtualNode) int {
		if a.hash < b.hash {
			return -1
		}
		if a.hash > b.hash {
			return 1
		}

		return 0
	})

	return ring
}

// GetNode finds the host responsible for a partition ID.
//
// Uses binary search to find the first virtual node whose hash is >= the key hash,
// wrapping around to the first node past the end of the ring.
//
// Returns:
//   - string: Host responsible for key, or "" for an empty ring
func (r *Ring) GetNode(key string) string {
	if len(r.nodes) == 0 {
		return ""
	}

	target := String(key, r.seed)
	idx, _ := slices.BinarySearchFunc(r.nodes, target, func(node virtualNode, t uint64) int {
		if node.hash < t {
			return -1
		}
		if node.hash > t {
			return 1
		}

		return 0
	})
	if idx >= len(r.nodes) {
		idx = 0
	}

	return r.nodes[idx].host
}

// Hosts returns the list of unique hosts on the ring.
func (r *Ring) Hosts() []string {
	return append([]string(nil), r.hosts...)
}

// Size returns the total number of virtual nodes on the ring.
func (r *Ring) Size() int {
	return len(r.nodes)
}

func (r *Ring) addHost(host string, virtualNodes int) {
	base := String(host, r.seed)
	for i := range virtualNodes {
		var ib [8]byte
		binary.LittleEndian.PutUint64(ib[:], uint64(i)) //nolint:gosec
		r.nodes = append(r.nodes, virtualNode{hash: xxh3.HashSeed(ib[:], base), host: host})
	}
}

// String hashes s with XXH3, seeded when seed is non-zero.
func String(s string, seed uint64) uint64 {
	if seed != 0 {
		return xxh3.HashStringSeed(s, seed)
	}

	return xxh3.HashString(s)
}

// Rendezvous returns the highest-random-weight score of (host, key).
//
// Each host ranks keys by descending score; two hosts rank the same key set
// in independent orders, so hosts racing for free partitions mostly pick
// different ones.
func Rendezvous(host, key string, seed uint64) uint64 {
	return xxh3.HashStringSeed(key, String(host, seed))
}
