package strategy

import (
	"cmp"
	"slices"
	"time"

	"github.com/arloliu/changefeed/internal/hash"
	"github.com/arloliu/changefeed/lease"
)

// Strategy selects the leases a host should acquire.
type Strategy interface {
	// Select returns the leases owner should try to acquire now.
	//
	// Parameters:
	//   - owner: This host's lease owner name
	//   - leases: All leases in the collection, as just read
	//   - now: Current time, compared against lease timestamps
	//   - expiration: Lease expiration interval
	//   - maxPerHost: Cap on leases per host (0 = unlimited)
	//
	// Returns:
	//   - []*lease.Lease: Leases to acquire (may be empty). A lease owned by
	//     another live host is included only when it should be stolen.
	Select(owner string, leases []*lease.Lease, now time.Time, expiration time.Duration, maxPerHost int) []*lease.Lease
}

// view is the ownership picture a strategy reasons about.
type view struct {
	owner  string
	target int
	owned  int
	free   []*lease.Lease
	counts map[string]int
	byHost map[string][]*lease.Lease
}

func newView(owner string, leases []*lease.Lease, now time.Time, expiration time.Duration, maxPerHost int) *view {
	v := &view{
		owner:  owner,
		counts: map[string]int{owner: 0},
		byHost: make(map[string][]*lease.Lease),
	}

	for _, l := range leases {
		switch {
		case l.Owner == owner:
			v.owned++
		case l.IsExpired(now, expiration):
			v.free = append(v.free, l)
			continue
		}
		v.counts[l.Owner]++
		v.byHost[l.Owner] = append(v.byHost[l.Owner], l)
	}

	hosts := len(v.counts)
	v.target = (len(leases) + hosts - 1) / hosts
	if maxPerHost > 0 && v.target > maxPerHost {
		v.target = maxPerHost
	}

	return v
}

func (v *view) need() int {
	return v.target - v.owned
}

func (v *view) hosts() []string {
	hosts := make([]string, 0, len(v.counts))
	for h := range v.counts {
		hosts = append(hosts, h)
	}
	slices.Sort(hosts)

	return hosts
}

// rank sorts leases by descending rendezvous score for owner.
func rank(owner string, seed uint64, leases []*lease.Lease) []*lease.Lease {
	out := slices.Clone(leases)
	slices.SortFunc(out, func(a, b *lease.Lease) int {
		sa := hash.Rendezvous(owner, a.PartitionID, seed)
		sb := hash.Rendezvous(owner, b.PartitionID, seed)
		if c := cmp.Compare(sb, sa); c != 0 {
			return c
		}

		return cmp.Compare(a.PartitionID, b.PartitionID)
	})

	return out
}

// steal picks one lease from the most loaded host when that host is above target.
func (v *view) steal(seed uint64) []*lease.Lease {
	victim, most := "", 0
	for _, h := range v.hosts() {
		if h == v.owner {
			continue
		}
		if v.counts[h] > most {
			victim, most = h, v.counts[h]
		}
	}
	if victim == "" || most <= v.target {
		return nil
	}

	return rank(v.owner, seed, v.byHost[victim])[:1]
}
