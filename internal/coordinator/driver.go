package coordinator

import (
	"fmt"
	"sort"

	"github.com/nyxdb/contractcoord/internal/branch"
	"github.com/nyxdb/contractcoord/internal/contract"
	"github.com/nyxdb/contractcoord/internal/fragment"
	"github.com/nyxdb/contractcoord/internal/region"
)

// CPUShards is the fixed number of pieces the hash dimension is
// divided into for the re-slicing step of §4.4(5); downstream
// execution is partitioned on this axis the way a real deployment
// partitions work across CPU cores.
const CPUShards = 8

// AckKey identifies a single ack: the server that sent it and the
// contract it acknowledges. Acks whose ContractID does not match the
// contract currently being processed are excluded, per §4.4 step 2.
type AckKey struct {
	Server     contract.ServerID
	ContractID contract.ID
}

// AckObservable is the pull-based "(server, contract-id) -> ack"
// mapping of §6.
type AckObservable interface {
	ReadAll() map[AckKey]contract.Ack
}

// TableState is the snapshot view over the table's replicated state:
// current contracts keyed by id, the table configuration, the
// current-branch map, and the branch history, per §6.
type TableState struct {
	Contracts       map[contract.ID]OldEntry
	Config          contract.TableConfig
	CurrentBranches region.Map[branch.ID]
	History         branch.History
}

// CalculateAllContractsInput bundles the driver's inputs.
type CalculateAllContractsInput struct {
	State        TableState
	Acks         AckObservable
	Connectivity Connectivity
	Self         contract.ServerID
	LogPrefix    string
	Logger       Logger
}

func cpuShardBoundaries() []uint64 {
	bounds := make([]uint64, CPUShards+1)
	for i := range bounds {
		bounds[i] = uint64(i) * region.HashSize / CPUShards
	}
	return bounds
}

// CalculateAllContracts is the driver of §4.4: it shards the old
// contracts by configured user-shard key range, runs the fragmenter
// and calculate_contract on each maximal homogeneous sub-region,
// coalesces, re-slices by cpu-shard x user-shard, and diffs against
// the previous generation.
func CalculateAllContracts(in CalculateAllContractsInput) Diff {
	allAcks := in.Acks.ReadAll()

	var oldEntries []OldEntry
	for id, e := range in.State.Contracts {
		oldEntries = append(oldEntries, OldEntry{ID: id, Region: e.Region, Contract: e.Contract})
	}
	sort.Slice(oldEntries, func(i, j int) bool { return oldEntries[i].ID.String() < oldEntries[j].ID.String() })

	var newFrags []region.Fragment[contract.Contract]
	var registrations []BranchRegistration

	for _, old := range oldEntries {
		for shardIndex := range in.State.Config.Shards {
			shardRegion := in.State.Config.ShardRegion(shardIndex)
			r := region.Intersect(old.Region, shardRegion)
			if r.Empty() {
				continue
			}

			fragsByServer := buildFragsByServer(r, old.ID, allAcks, in.State.CurrentBranches, in.State.History)

			subshardIndex := 0
			prevEndedFullHash := false
			fragsByServer.Visit(r, func(sub region.Region, servers serverFragMap) {
				if prevEndedFullHash {
					subshardIndex++
				}
				prevEndedFullHash = sub.HashEnd == region.HashSize

				cpuShard := cpuShardOf(sub)
				subPrefix := ""
				if in.LogPrefix != "" {
					subPrefix = fmt.Sprintf("%s shard %d.%d.%d", in.LogPrefix, shardIndex, subshardIndex, cpuShard)
				}

				newContract := CalculateContract(CalculateContractInput{
					Old:          old.Contract,
					Config:       in.State.Config.Shards[shardIndex],
					Acks:         servers.m,
					Connectivity: in.Connectivity,
					Self:         in.Self,
					LogPrefix:    subPrefix,
					Logger:       in.Logger,
				})

				newFrags = append(newFrags, region.Fragment[contract.Contract]{Region: sub, Value: newContract})

				if old.Contract.Primary != nil && newContract.Primary != nil &&
					old.Contract.Primary.Server == newContract.Primary.Server {
					if frag, ok := servers.m[old.Contract.Primary.Server]; ok && frag.State == contract.PrimaryNeedBranch && frag.HasBranch {
						registrations = append(registrations, BranchRegistration{Region: sub, Branch: frag.BranchID})
					}
				}
			})
		}
	}

	// Step 4: coalesce.
	coalesced := region.FromFragments(newFrags)

	// Step 5: re-slice by cpu-shard x user-shard so no surviving
	// fragment spans a shard boundary, even if its value is equal to
	// its neighbour's.
	var resliced []region.Fragment[contract.Contract]
	bounds := cpuShardBoundaries()
	for _, shard := range in.State.Config.Shards {
		for i := 0; i < CPUShards; i++ {
			shardRegion := region.Region{HashStart: bounds[i], HashEnd: bounds[i+1], Keys: shard.Range}
			coalesced.Visit(shardRegion, func(sub region.Region, v contract.Contract) {
				resliced = append(resliced, region.Fragment[contract.Contract]{Region: sub, Value: v})
			})
		}
	}

	diff := computeDiff(oldEntries, resliced)
	diff.RegisterCurrentBranches = registrations
	return diff
}

// cpuShardOf returns the cpu-shard index sub.HashStart falls in. A
// sub-region that spans several cpu-shards (possible at the call site,
// which runs before step 5's re-slicing) is reported under the
// cpu-shard of its first hash bucket.
func cpuShardOf(sub region.Region) int {
	bounds := cpuShardBoundaries()
	for i := 0; i < CPUShards; i++ {
		if sub.HashStart >= bounds[i] && sub.HashStart < bounds[i+1] {
			return i
		}
	}
	return CPUShards - 1
}

// buildFragsByServer implements §4.4 step 2: a region map, initially a
// single sub-region with an empty server->fragment map, mutated by
// inserting each matching ack's fragmentation. Duplicate insertion at
// the same (sub-region, server) is a programming error.
func buildFragsByServer(
	r region.Region,
	contractID contract.ID,
	allAcks map[AckKey]contract.Ack,
	currentBranches region.Map[branch.ID],
	history branch.History,
) region.Map[serverFragMap] {
	acc := region.Single(r, serverFragMap{m: map[contract.ServerID]contract.Fragment{}})

	for key, ack := range allAcks {
		if key.ContractID != contractID {
			continue
		}
		frags := fragment.BreakIntoFragments(r, ack, currentBranches, history)
		frags.Visit(r, func(sub region.Region, f contract.Fragment) {
			acc = acc.VisitMutable(sub, func(_ region.Region, cur serverFragMap) serverFragMap {
				if _, exists := cur.m[key.Server]; exists {
					panic(fmt.Sprintf("coordinator: duplicate ack fragment for server %s in sub-region", key.Server))
				}
				next := cur.clone()
				next.m[key.Server] = f
				return next
			})
		})
	}
	return acc
}

// serverFragMap adapts map[ServerID]Fragment to region.Equaler so it
// can live inside a region.Map while being built up incrementally.
// Equal compares the two maps entry by entry, so hash-adjacent
// sub-regions that carry the same ack set are coalesced into one.
type serverFragMap struct {
	m map[contract.ServerID]contract.Fragment
}

func (s serverFragMap) Equal(o serverFragMap) bool {
	if len(s.m) != len(o.m) {
		return false
	}
	for k, v := range s.m {
		ov, ok := o.m[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (s serverFragMap) clone() serverFragMap {
	out := make(map[contract.ServerID]contract.Fragment, len(s.m)+1)
	for k, v := range s.m {
		out[k] = v
	}
	return serverFragMap{m: out}
}
