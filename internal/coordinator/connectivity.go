package coordinator

import "github.com/nyxdb/contractcoord/internal/contract"

// Connectivity is a set of ordered pairs (observer, subject) meaning
// "observer reports it is connected to subject". A pair (self, s),
// where self is the coordinator's own server id, indicates "we are
// connected to s"; a pair (s, s) only records s reporting a connection
// to itself.
type Connectivity map[connPair]struct{}

type connPair struct {
	Observer, Subject contract.ServerID
}

// NewConnectivity builds a Connectivity view from a flat pair list.
func NewConnectivity(pairs ...[2]contract.ServerID) Connectivity {
	c := make(Connectivity, len(pairs))
	for _, p := range pairs {
		c[connPair{p[0], p[1]}] = struct{}{}
	}
	return c
}

// Reports reports whether observer has reported a connection to
// subject.
func (c Connectivity) Reports(observer, subject contract.ServerID) bool {
	_, ok := c[connPair{observer, subject}]
	return ok
}

// self is the coordinator's own server id: connectivity entries
// (self, x) mean "we are connected to x" per §3.
//
// invisibleToMajority implements §4.3(d)'s target-visibility rule:
// target is invisible to judges if fewer than a majority of judges
// either report seeing it, or are themselves unreachable from us
// (unreachable judges are optimistically assumed able to see the
// target, to avoid spurious failover on partial partitions).
func invisibleToMajority(c Connectivity, self contract.ServerID, judges []contract.ServerID, target contract.ServerID) bool {
	if len(judges) == 0 {
		return false
	}
	visibleCount := 0
	for _, judge := range judges {
		if c.Reports(judge, target) {
			visibleCount++
			continue
		}
		if !c.Reports(self, judge) {
			// judge is unreachable from us: optimistically assume it
			// can see target.
			visibleCount++
		}
	}
	return visibleCount*2 <= len(judges)
}

// isVisible implements the "visible voter" definition of §4.3(d): v is
// visible only if it appears in voters or tempVoters, and is not
// invisible to a majority of voters nor, while tempVoters is present,
// to a majority of tempVoters. A server that holds neither status (e.g.
// demoted to non-voting but still present in Replicas) is never
// visible, regardless of connectivity.
func isVisible(c Connectivity, self contract.ServerID, voters, tempVoters []contract.ServerID, v contract.ServerID) bool {
	inVoters := containsServer(voters, v)
	inTempVoters := tempVoters != nil && containsServer(tempVoters, v)
	if !inVoters && !inTempVoters {
		return false
	}
	if invisibleToMajority(c, self, voters, v) {
		return false
	}
	if tempVoters != nil && invisibleToMajority(c, self, tempVoters, v) {
		return false
	}
	return true
}

func containsServer(list []contract.ServerID, v contract.ServerID) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
