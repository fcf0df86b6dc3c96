package contract

import (
	"github.com/nyxdb/contractcoord/internal/branch"
	"github.com/nyxdb/contractcoord/internal/region"
)

// AckState enumerates the states a replica can report about its
// relationship to a contract. Only PrimaryReady, PrimaryNeedBranch,
// SecondaryStreaming and SecondaryNeedPrimary are consulted by the
// calculator (§3); the rest exist because replicas report them and
// the wire format must round-trip them.
type AckState int

const (
	Nothing AckState = iota
	PrimaryNeedBranch
	PrimaryInProgress
	PrimaryReady
	SecondaryNeedPrimary
	SecondaryBackfilling
	SecondaryStreaming
)

func (s AckState) String() string {
	switch s {
	case PrimaryNeedBranch:
		return "primary_need_branch"
	case PrimaryInProgress:
		return "primary_in_progress"
	case PrimaryReady:
		return "primary_ready"
	case SecondaryNeedPrimary:
		return "secondary_need_primary"
	case SecondaryBackfilling:
		return "secondary_backfilling"
	case SecondaryStreaming:
		return "secondary_streaming"
	default:
		return "nothing"
	}
}

// Ack is a contract acknowledgement reported by a replica: a state, an
// optional region map of versions describing what data the replica
// holds, an optional branch id (meaningful for primary-side states),
// and a private snippet of branch history sufficient to resolve those
// versions.
type Ack struct {
	State   AckState
	Version *region.Map[branch.Version] // nil means "version unknown"
	Branch  branch.ID                   // Nil unless State is primary-side
	History branch.StaticHistory        // private branch-history snippet
}

// Fragment is the homogeneous projection of an ack over a sub-region:
// state, an optional state timestamp, and an optional branch id. It
// is the output type of the fragmenter (internal/fragment) and the
// calculator's per-server input type.
type Fragment struct {
	State      AckState
	HasVersion bool
	StateTime  branch.Timestamp
	HasBranch  bool
	BranchID   branch.ID
}

// Equal satisfies region.Equaler so Fragment can be stored in a
// region.Map.
func (f Fragment) Equal(o Fragment) bool {
	return f.State == o.State &&
		f.HasVersion == o.HasVersion && f.StateTime == o.StateTime &&
		f.HasBranch == o.HasBranch && f.BranchID == o.BranchID
}
