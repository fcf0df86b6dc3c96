// Package contract holds the coordinator's data model: server
// identity, contracts, acks, and table configuration (§3 of the
// specification this module implements).
package contract

import (
	"sort"

	"github.com/google/uuid"

	"github.com/nyxdb/contractcoord/internal/branch"
)

// ServerID is an opaque 128-bit replica identifier. NilServer means
// "unset" and is load-bearing wherever a contract or config field may
// legitimately have no server assigned.
type ServerID uuid.UUID

// NilServer is the distinguished unset server id.
var NilServer ServerID

func NewServerID() ServerID { return ServerID(uuid.New()) }

func (s ServerID) String() string { return uuid.UUID(s).String() }

// MarshalText/UnmarshalText let ServerID round-trip through JSON as a
// readable uuid string, including as a map key.
func (s ServerID) MarshalText() ([]byte, error) { return []byte(uuid.UUID(s).String()), nil }

func (s *ServerID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*s = ServerID(u)
	return nil
}

// ServerSet is an unordered set of server ids.
type ServerSet map[ServerID]struct{}

func NewServerSet(ids ...ServerID) ServerSet {
	s := make(ServerSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s ServerSet) Has(id ServerID) bool {
	_, ok := s[id]
	return ok
}

func (s ServerSet) Clone() ServerSet {
	out := make(ServerSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s ServerSet) Add(id ServerID) { s[id] = struct{}{} }

func (s ServerSet) Remove(id ServerID) { delete(s, id) }

// Sorted returns the set's members in a stable (ascending uuid byte
// order) order, for deterministic iteration and logging.
func (s ServerSet) Sorted() []ServerID {
	out := make([]ServerID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := uuid.UUID(out[i]), uuid.UUID(out[j])
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return out
}

// Equal reports set equality.
func (s ServerSet) Equal(o ServerSet) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

// Union returns a new set containing the members of both sets.
func (s ServerSet) Union(o ServerSet) ServerSet {
	out := s.Clone()
	for id := range o {
		out.Add(id)
	}
	return out
}

// PrimaryDescriptor names the server currently acting as primary and,
// optionally, a server a hand-over to a successor is in progress
// toward.
type PrimaryDescriptor struct {
	Server   ServerID
	HandOver *ServerID // nil means no hand-over in progress
}

func (p *PrimaryDescriptor) clone() *PrimaryDescriptor {
	if p == nil {
		return nil
	}
	cp := *p
	if p.HandOver != nil {
		h := *p.HandOver
		cp.HandOver = &h
	}
	return &cp
}

func (p *PrimaryDescriptor) equal(o *PrimaryDescriptor) bool {
	if p == nil || o == nil {
		return p == nil && o == nil
	}
	if p.Server != o.Server {
		return false
	}
	if (p.HandOver == nil) != (o.HandOver == nil) {
		return false
	}
	if p.HandOver != nil && *p.HandOver != *o.HandOver {
		return false
	}
	return true
}

// Contract is a single region's durable instruction to replicas:
// who holds data (Replicas), who votes (Voters, and optionally
// TempVoters while a voter-set change is in flight), who is primary,
// and which branch the region's writes live on.
type Contract struct {
	Replicas   ServerSet
	Voters     ServerSet
	TempVoters ServerSet // nil means absent
	Primary    *PrimaryDescriptor
	Branch     branch.ID
}

// Clone returns a deep copy safe for independent mutation.
func (c Contract) Clone() Contract {
	cp := Contract{
		Replicas: c.Replicas.Clone(),
		Voters:   c.Voters.Clone(),
		Primary:  c.Primary.clone(),
		Branch:   c.Branch,
	}
	if c.TempVoters != nil {
		cp.TempVoters = c.TempVoters.Clone()
	}
	return cp
}

// Equal reports whether c and o are the same contract value. Per §3,
// contract-id stability is defined entirely in terms of this
// comparison.
func (c Contract) Equal(o Contract) bool {
	if !c.Replicas.Equal(o.Replicas) {
		return false
	}
	if !c.Voters.Equal(o.Voters) {
		return false
	}
	if (c.TempVoters == nil) != (o.TempVoters == nil) {
		return false
	}
	if c.TempVoters != nil && !c.TempVoters.Equal(o.TempVoters) {
		return false
	}
	if !c.Primary.equal(o.Primary) {
		return false
	}
	return c.Branch == o.Branch
}

// ID is a fresh opaque identifier minted for each materially
// different contract.
type ID uuid.UUID

// NilID is the distinguished "no such contract" id.
var NilID ID

func NewID() ID { return ID(uuid.New()) }

func (c ID) String() string { return uuid.UUID(c).String() }

func (c ID) MarshalText() ([]byte, error) { return []byte(uuid.UUID(c).String()), nil }

func (c *ID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*c = ID(u)
	return nil
}
