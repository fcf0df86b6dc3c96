// Package fragment implements break_ack_into_fragments (§4.2): the
// conversion of a single, possibly heterogeneous contract
// acknowledgement into a homogeneous region map of ack fragments,
// projected onto each sub-region's canonical branch.
package fragment

import (
	"github.com/nyxdb/contractcoord/internal/branch"
	"github.com/nyxdb/contractcoord/internal/contract"
	"github.com/nyxdb/contractcoord/internal/region"
)

// BreakIntoFragments tiles target with homogeneous contract.Fragment
// values derived from ack, projecting any versions the ack reports
// onto the branch recorded in currentBranches for each sub-region,
// using globalHistory combined with the ack's own private history
// snippet.
func BreakIntoFragments(
	target region.Region,
	ack contract.Ack,
	currentBranches region.Map[branch.ID],
	globalHistory branch.History,
) region.Map[contract.Fragment] {
	base := contract.Fragment{
		State:     ack.State,
		HasBranch: ack.Branch != branch.Nil,
		BranchID:  ack.Branch,
	}

	if ack.Version == nil {
		return region.Single(target, base)
	}

	combined := branch.Combined{Primary: globalHistory, Secondary: ack.History}

	return region.MapMulti(currentBranches, target, func(sub region.Region, canonicalBranch branch.ID) region.Map[contract.Fragment] {
		return region.MapMulti(*ack.Version, sub, func(subsub region.Region, v branch.Version) region.Map[contract.Fragment] {
			frag := base
			projected, ok := branch.ProjectOntoBranch(combined, v, canonicalBranch)
			if ok {
				frag.HasVersion = true
				frag.StateTime = projected.Time
			}
			return region.Single(subsub, frag)
		})
	})
}
