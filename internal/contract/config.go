package contract

import "github.com/nyxdb/contractcoord/internal/region"

// Shard is one entry of a table's configuration: the full replica set
// for a key range, the subset that should not vote, and an optional
// user-designated primary.
type Shard struct {
	Range             region.KeyRange
	AllReplicas       ServerSet
	NonvotingReplicas ServerSet
	PrimaryReplica    ServerID // NilServer if unspecified
}

// VotingReplicas returns AllReplicas minus NonvotingReplicas.
func (s Shard) VotingReplicas() ServerSet {
	out := s.AllReplicas.Clone()
	for id := range s.NonvotingReplicas {
		out.Remove(id)
	}
	return out
}

// TableConfig is the user-specified desired configuration: an ordered
// list of shards partitioning the key space.
type TableConfig struct {
	Shards []Shard
}

// ShardRegion returns the hash x key region a configured shard-index
// corresponds to within the key space. Hash dimension is always the
// full universe; sharding here is purely over key ranges, matching
// the driver's per-shard slicing in §4.4 step 1.
func (c TableConfig) ShardRegion(index int) region.Region {
	s := c.Shards[index]
	return region.Region{HashStart: 0, HashEnd: region.HashSize, Keys: s.Range}
}
