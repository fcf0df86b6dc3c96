// Package branch models the tree of write lineages a table's data can
// live on, and the machinery for projecting a version reached on one
// branch onto an ancestor or canonical branch.
package branch

import (
	"github.com/google/uuid"
)

// ID identifies a branch. The zero value, Nil, denotes "no branch".
type ID uuid.UUID

// Nil is the distinguished unset branch id.
var Nil ID

// NewID mints a fresh branch identifier.
func NewID() ID { return ID(uuid.New()) }

func (b ID) String() string { return uuid.UUID(b).String() }

// Equal reports whether b and o are the same branch id.
func (b ID) Equal(o ID) bool { return b == o }

// MarshalText/UnmarshalText let ID round-trip through JSON as a
// readable uuid string, including as a StaticHistory map key.
func (b ID) MarshalText() ([]byte, error) { return []byte(uuid.UUID(b).String()), nil }

func (b *ID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*b = ID(u)
	return nil
}

// Timestamp totally orders points along a branch. Per
// original_source/src/clustering/table_contract/coordinator/calculate_contracts.cc,
// timestamps are comparable across the whole history, not just within
// a single branch: a branch's Birth records the parent timestamp at
// the point of divergence, so two timestamps on different branches
// can still be ordered by falling back to the common ancestor.
type Timestamp uint64

// Version pairs a branch with a point reached on it.
type Version struct {
	Branch ID
	Time   Timestamp
}

// Equal reports whether v and o name the same version.
func (v Version) Equal(o Version) bool {
	return v.Branch == o.Branch && v.Time == o.Time
}

// Less orders versions for the candidate sort of §4.3(f): by Time,
// then (ignored here, applied by callers) by server id as a
// secondary tie-break.
func (v Version) Less(o Version) bool {
	return v.Time < o.Time
}

// Birth describes where a branch diverged from its parent.
type Birth struct {
	Parent     ID
	Divergence Timestamp
}

// History is a read-only view over the branch tree sufficient to
// answer "where does version v, reached on some branch, project onto
// branch b". Implementations must not perform I/O: the core treats
// history lookups as in-memory per §9.
type History interface {
	// BirthOf returns the Birth record for b, or ok=false if b is the
	// root of the tree (no parent) or unknown.
	BirthOf(b ID) (Birth, bool)
}

// StaticHistory is an in-memory History backed by a fixed map,
// suitable both for the coordinator's authoritative history and an
// ack's private snippet.
type StaticHistory map[ID]Birth

func (h StaticHistory) BirthOf(b ID) (Birth, bool) {
	births, ok := h[b]
	return births, ok
}

// Combined composes two History readers so the fragmenter can consult
// the authoritative history together with an ack's private snippet
// without mutating either (§9: "model it as a composed reader
// interface, not as a mutation of the authoritative history").
type Combined struct {
	Primary, Secondary History
}

func (c Combined) BirthOf(b ID) (Birth, bool) {
	if c.Primary != nil {
		if birth, ok := c.Primary.BirthOf(b); ok {
			return birth, true
		}
	}
	if c.Secondary != nil {
		return c.Secondary.BirthOf(b)
	}
	return Birth{}, false
}

// ancestorDivergence reports whether b lies on the path from the root
// to target, walking target's ancestry through h. If b is a proper
// ancestor of target, it returns the timestamp at which target's
// lineage diverged from b. When b == target it returns (0, true).
func ancestorDivergence(h History, b, target ID) (Timestamp, bool) {
	if b == target {
		return 0, true // caller special-cases b == target before using this bound
	}
	cur := target
	for {
		birth, ok := h.BirthOf(cur)
		if !ok {
			return 0, false
		}
		if birth.Parent == b {
			return birth.Divergence, true
		}
		if birth.Parent == Nil {
			return 0, false
		}
		cur = birth.Parent
	}
}

// ProjectOntoBranch returns the version on canonical branch b that
// corresponds to v, i.e. "the furthest point on b that v's lineage is
// known to have reached". It implements the branch-history utility
// §4.2 step 3 calls: given a version v and a canonical branch b,
// returns the point under v projected onto b.
//
// ok is false if v's branch is not known to share any ancestry with b
// in h (the conservative "input absence" case of §7: the fragmenter
// must not guess).
func ProjectOntoBranch(h History, v Version, b ID) (Version, bool) {
	if v.Branch == b {
		return v, true
	}
	// v.Branch diverged from some ancestor chain; walk until we either
	// reach b (v is downstream of b: project onto the divergence point)
	// or find that b is downstream of v.Branch (v is upstream: the
	// furthest point b could have inherited is b's own divergence from
	// v.Branch, clamped by v.Time).
	if divergence, ok := ancestorDivergence(h, b, v.Branch); ok {
		// v.Branch descends from b; anything past the fork point is
		// invisible on b, so clamp to whichever of v.Time or the fork
		// point is smaller.
		t := divergence
		if Timestamp(v.Time) < t {
			t = v.Time
		}
		return Version{Branch: b, Time: t}, true
	}
	if divergence, ok := ancestorDivergence(h, v.Branch, b); ok {
		// v.Branch is an ancestor of b. If v's own timestamp lies at
		// or before the point where b's lineage diverged from
		// v.Branch, the write is visible on b up to v.Time; otherwise
		// it is only visible up to the divergence point.
		if v.Time <= divergence {
			return Version{Branch: b, Time: v.Time}, true
		}
		return Version{Branch: b, Time: divergence}, true
	}
	return Version{}, false
}
