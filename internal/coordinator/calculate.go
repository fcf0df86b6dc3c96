package coordinator

import (
	"sort"

	"github.com/nyxdb/contractcoord/internal/contract"
)

// CalculateContractInput bundles the per-region inputs §4.3 describes.
type CalculateContractInput struct {
	Old          contract.Contract
	Config       contract.Shard
	Acks         map[contract.ServerID]contract.Fragment // acks for Old specifically
	Connectivity Connectivity
	Self         contract.ServerID
	LogPrefix    string
	Logger       Logger
}

// CalculateContract produces the successor contract for one
// homogeneous sub-region, following §4.3(a)-(g) in order. It never
// fails: all guarantees fail closed, and when unsure it makes no
// change.
func CalculateContract(in CalculateContractInput) contract.Contract {
	out := in.Old.Clone()
	shouldKillPrimary := false

	// (a) Absorb new replicas.
	out.Replicas = out.Replicas.Union(in.Config.AllReplicas)

	cfgVoters := in.Config.VotingReplicas()

	// (b) Propose a voter change.
	if out.TempVoters == nil && !out.Voters.Equal(cfgVoters) {
		caughtUp := 0
		for s := range cfgVoters {
			streaming := in.Acks[s].State == contract.SecondaryStreaming
			isPrimary := out.Primary != nil && out.Primary.Server == s
			if streaming || isPrimary {
				caughtUp++
			}
		}
		if caughtUp*2 > len(cfgVoters) {
			out.TempVoters = cfgVoters.Clone()
			logf(in.Logger, in.LogPrefix, "proposing voter change to %d replicas", len(cfgVoters))
		}
	}

	// (c) Commit a voter change.
	if out.TempVoters != nil && out.Primary != nil && in.Acks[out.Primary.Server].State == contract.PrimaryReady {
		out.Voters = out.TempVoters
		out.TempVoters = nil
		logf(in.Logger, in.LogPrefix, "committed voter change")
	}

	// (d) Compute visible_voters.
	voterList := out.Voters.Sorted()
	var tempVoterList []contract.ServerID
	if out.TempVoters != nil {
		tempVoterList = out.TempVoters.Sorted()
	}
	visible := make(map[contract.ServerID]bool, len(out.Replicas))
	for s := range out.Replicas {
		visible[s] = isVisible(in.Connectivity, in.Self, voterList, tempVoterList, s)
	}

	// (e) Drop obsolete replicas.
	for s := range in.Old.Replicas {
		if in.Config.AllReplicas.Has(s) {
			continue
		}
		if out.Voters.Has(s) {
			continue
		}
		if out.TempVoters != nil && out.TempVoters.Has(s) {
			continue
		}
		out.Replicas.Remove(s)
		if out.Primary != nil && out.Primary.Server == s {
			shouldKillPrimary = true
		}
	}

	// (f) Elect primary when absent.
	if out.Primary == nil {
		out.Primary = electPrimary(out, in, visible)
	} else {
		// (g) Manage an existing primary.
		manageExistingPrimary(&out, in, visible, shouldKillPrimary)
	}

	return out
}

type candidate struct {
	server contract.ServerID
	time   uint64
}

func electPrimary(out contract.Contract, in CalculateContractInput, visible map[contract.ServerID]bool) *contract.PrimaryDescriptor {
	var candidates []candidate
	for s := range out.Voters {
		frag, ok := in.Acks[s]
		if !ok || frag.State != contract.SecondaryNeedPrimary || !frag.HasVersion {
			continue
		}
		candidates = append(candidates, candidate{server: s, time: uint64(frag.StateTime)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].time != candidates[j].time {
			return candidates[i].time < candidates[j].time
		}
		return lessServerID(candidates[i].server, candidates[j].server)
	})

	eligible := make([]bool, len(candidates))
	n := len(out.Voters)
	for i, cand := range candidates {
		if !visible[cand.server] {
			continue
		}
		count := 0
		for _, other := range candidates {
			if other.time <= cand.time {
				count++
			}
		}
		eligible[i] = count*2 > n
	}

	designated := in.Config.PrimaryReplica
	if designated != contract.NilServer {
		for i, cand := range candidates {
			if cand.server == designated && eligible[i] {
				logf(in.Logger, in.LogPrefix, "electing designated primary %s", designated)
				return &contract.PrimaryDescriptor{Server: designated}
			}
		}
		if visible[designated] {
			if _, acked := in.Acks[designated]; !acked {
				// designated primary hasn't acked yet: wait for it
				// rather than failing over to someone else.
				logf(in.Logger, in.LogPrefix, "waiting for designated primary %s to catch up", designated)
				return nil
			}
		}
	}

	for i := len(candidates) - 1; i >= 0; i-- {
		if eligible[i] {
			logf(in.Logger, in.LogPrefix, "electing primary %s", candidates[i].server)
			return &contract.PrimaryDescriptor{Server: candidates[i].server}
		}
	}
	return nil
}

func manageExistingPrimary(out *contract.Contract, in CalculateContractInput, visible map[contract.ServerID]bool, shouldKillPrimary bool) {
	primary := out.Primary.Server

	if !visible[primary] {
		shouldKillPrimary = true
	}

	if shouldKillPrimary {
		logf(in.Logger, in.LogPrefix, "killing primary %s", primary)
		out.Primary = nil
		return
	}

	designated := in.Config.PrimaryReplica
	if primary != designated && designated != contract.NilServer {
		handOverInProgress := out.Primary.HandOver != nil

		designatedReady := in.Acks[designated].State == contract.SecondaryStreaming && visible[designated]

		if !handOverInProgress && designatedReady {
			out.Primary.HandOver = &designated
			logf(in.Logger, in.LogPrefix, "starting hand-over to %s", designated)
			return
		}

		if handOverInProgress && *out.Primary.HandOver != designated {
			// A hand-over was in progress toward a stale designation;
			// clear it so a fresh one may start toward designated on a
			// later tick.
			out.Primary.HandOver = nil
			logf(in.Logger, in.LogPrefix, "aborting stale hand-over")
			return
		}

		if handOverInProgress && *out.Primary.HandOver == designated {
			if in.Acks[primary].State == contract.PrimaryReady {
				logf(in.Logger, in.LogPrefix, "primary %s ready to hand over to %s", primary, designated)
				out.Primary = nil
				return
			}
			if !visible[designated] {
				out.Primary.HandOver = nil
				logf(in.Logger, in.LogPrefix, "hand-over target %s no longer visible, aborting", designated)
			}
		}
		return
	}

	// primary already equals designated (or no designation): clear any
	// stale hand-over.
	out.Primary.HandOver = nil
}

func lessServerID(a, b contract.ServerID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
