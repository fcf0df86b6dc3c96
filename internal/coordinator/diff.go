package coordinator

import (
	"github.com/nyxdb/contractcoord/internal/branch"
	"github.com/nyxdb/contractcoord/internal/contract"
	"github.com/nyxdb/contractcoord/internal/region"
)

// OldEntry is a single (id, region, contract) triple describing a
// generation of contracts before this invocation.
type OldEntry struct {
	ID       contract.ID
	Region   region.Region
	Contract contract.Contract
}

// Diff is the output channel of §6: the log layer applies it
// atomically.
type Diff struct {
	RemoveContracts         map[contract.ID]struct{}
	AddContracts            map[contract.ID]AddedContract
	RegisterCurrentBranches []BranchRegistration
}

// AddedContract pairs a freshly minted contract id with its region and
// value.
type AddedContract struct {
	Region   region.Region
	Contract contract.Contract
}

// BranchRegistration is one entry of the branch-registration side
// output of §4.4 step 3. A plain slice is used rather than a
// map[region.Region]branch.ID because region.Region embeds []byte key
// bounds and is therefore not a valid Go map key.
type BranchRegistration struct {
	Region region.Region
	Branch branch.ID
}

func newDiff() Diff {
	return Diff{
		RemoveContracts: make(map[contract.ID]struct{}),
		AddContracts:    make(map[contract.ID]AddedContract),
	}
}

// computeDiff implements §4.4 step 6: an old entry whose region+value
// survives unchanged in newFragments keeps its id (removed from
// further consideration); anything else in oldEntries is removed, and
// whatever remains in newFragments after removing survivors is
// freshly minted.
//
// newFragments is deliberately a flat slice rather than a
// region.Map: §4.4 step 5 forbids merging fragments across
// cpu-shard/user-shard boundaries even when their values are equal,
// which a region.Map would do automatically on construction.
func computeDiff(oldEntries []OldEntry, newFragments []region.Fragment[contract.Contract]) Diff {
	d := newDiff()

	remaining := make([]region.Fragment[contract.Contract], len(newFragments))
	copy(remaining, newFragments)

	for _, old := range oldEntries {
		idx := -1
		for i, frag := range remaining {
			if frag.Region.Equal(old.Region) && frag.Value.Equal(old.Contract) {
				idx = i
				break
			}
		}
		if idx >= 0 {
			remaining = append(remaining[:idx], remaining[idx+1:]...)
			continue
		}
		d.RemoveContracts[old.ID] = struct{}{}
	}

	for _, frag := range remaining {
		d.AddContracts[contract.NewID()] = AddedContract{Region: frag.Region, Contract: frag.Value}
	}

	return d
}
