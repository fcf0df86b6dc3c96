package coordstate

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nyxdb/contractcoord/internal/branch"
	"github.com/nyxdb/contractcoord/internal/contract"
	"github.com/nyxdb/contractcoord/internal/coordinator"
	"github.com/nyxdb/contractcoord/internal/region"
	"github.com/nyxdb/contractcoord/pkg/api"
)

func regionToProto(r region.Region) *api.RegionProto {
	return &api.RegionProto{
		HashStart: r.HashStart,
		HashEnd:   r.HashEnd,
		KeyStart:  append([]byte(nil), r.Keys.Start...),
		KeyEnd:    append([]byte(nil), r.Keys.End...),
	}
}

func protoToRegion(p *api.RegionProto) (region.Region, error) {
	if p == nil {
		return region.Region{}, fmt.Errorf("coordstate: region proto is nil")
	}
	return region.Region{
		HashStart: p.HashStart,
		HashEnd:   p.HashEnd,
		Keys:      region.KeyRange{Start: p.KeyStart, End: p.KeyEnd},
	}, nil
}

func versionToProto(v branch.Version) *api.VersionProto {
	b := uuid.UUID(v.Branch)
	return &api.VersionProto{Branch: b[:], Time: uint64(v.Time)}
}

func protoToVersion(p *api.VersionProto) (branch.Version, error) {
	if p == nil {
		return branch.Version{}, fmt.Errorf("coordstate: version proto is nil")
	}
	id, err := bytesToBranchID(p.Branch)
	if err != nil {
		return branch.Version{}, err
	}
	return branch.Version{Branch: id, Time: branch.Timestamp(p.Time)}, nil
}

// DecodeServerID, DecodeContractID and DecodeAck are exported so the
// gRPC adapter can decode wire requests without reaching into this
// package's unexported conversion helpers.
func DecodeServerID(b []byte) (contract.ServerID, error) { return bytesToServerID(b) }

func DecodeContractID(b []byte) (contract.ID, error) { return bytesToContractID(b) }

func DecodeAck(p *api.AckProto) (contract.Ack, error) { return protoToAck(p) }

// EncodeServerID, EncodeContractID and EncodeAck are exported so the
// gRPC client stub can build wire requests without reaching into this
// package's unexported conversion helpers.
func EncodeServerID(s contract.ServerID) []byte { return serverIDBytes(s) }

func EncodeContractID(id contract.ID) []byte { return contractIDBytes(id) }

func EncodeAck(a contract.Ack) *api.AckProto { return ackToProto(a) }

// EncodeDiff exposes diffToProto for the gRPC adapter's diff-inspection
// service.
func EncodeDiff(d coordinator.Diff) *api.DiffProto { return diffToProto(d) }

func bytesToServerID(b []byte) (contract.ServerID, error) {
	if len(b) == 0 {
		return contract.NilServer, nil
	}
	u, err := uuid.FromBytes(b)
	if err != nil {
		return contract.NilServer, fmt.Errorf("coordstate: decode server id: %w", err)
	}
	return contract.ServerID(u), nil
}

func bytesToBranchID(b []byte) (branch.ID, error) {
	if len(b) == 0 {
		return branch.Nil, nil
	}
	u, err := uuid.FromBytes(b)
	if err != nil {
		return branch.Nil, fmt.Errorf("coordstate: decode branch id: %w", err)
	}
	return branch.ID(u), nil
}

func bytesToContractID(b []byte) (contract.ID, error) {
	if len(b) == 0 {
		return contract.NilID, nil
	}
	u, err := uuid.FromBytes(b)
	if err != nil {
		return contract.NilID, fmt.Errorf("coordstate: decode contract id: %w", err)
	}
	return contract.ID(u), nil
}

func serverIDBytes(s contract.ServerID) []byte {
	u := uuid.UUID(s)
	return u[:]
}

func branchIDBytes(b branch.ID) []byte {
	u := uuid.UUID(b)
	return u[:]
}

func contractIDBytes(id contract.ID) []byte {
	u := uuid.UUID(id)
	return u[:]
}

// ackToProto converts a domain ack to its wire form.
func ackToProto(a contract.Ack) *api.AckProto {
	p := &api.AckProto{
		State:      int32(a.State),
		HasVersion: a.Version != nil,
		HasBranch:  a.Branch != branch.Nil,
		Branch:     branchIDBytes(a.Branch),
	}
	if a.Version != nil {
		for _, frag := range a.Version.Fragments() {
			p.VersionFragments = append(p.VersionFragments, &api.VersionFragmentProto{
				Region:  regionToProto(frag.Region),
				Version: versionToProto(frag.Value),
			})
		}
	}
	for id, birth := range a.History {
		p.History = append(p.History, &api.BirthProto{
			Branch:     branchIDBytes(id),
			Parent:     branchIDBytes(birth.Parent),
			Divergence: uint64(birth.Divergence),
		})
	}
	return p
}

// protoToAck is the inverse of ackToProto.
func protoToAck(p *api.AckProto) (contract.Ack, error) {
	if p == nil {
		return contract.Ack{}, fmt.Errorf("coordstate: ack proto is nil")
	}
	a := contract.Ack{State: contract.AckState(p.State)}
	if p.HasVersion {
		var frags []region.Fragment[branch.Version]
		for _, vf := range p.VersionFragments {
			r, err := protoToRegion(vf.Region)
			if err != nil {
				return contract.Ack{}, err
			}
			v, err := protoToVersion(vf.Version)
			if err != nil {
				return contract.Ack{}, err
			}
			frags = append(frags, region.Fragment[branch.Version]{Region: r, Value: v})
		}
		m := region.FromFragments(frags)
		a.Version = &m
	}
	if p.HasBranch {
		id, err := bytesToBranchID(p.Branch)
		if err != nil {
			return contract.Ack{}, err
		}
		a.Branch = id
	}
	if len(p.History) > 0 {
		a.History = make(branch.StaticHistory, len(p.History))
		for _, b := range p.History {
			id, err := bytesToBranchID(b.Branch)
			if err != nil {
				return contract.Ack{}, err
			}
			parent, err := bytesToBranchID(b.Parent)
			if err != nil {
				return contract.Ack{}, err
			}
			a.History[id] = branch.Birth{Parent: parent, Divergence: branch.Timestamp(b.Divergence)}
		}
	}
	return a, nil
}

func serverSetBytes(s contract.ServerSet) [][]byte {
	out := make([][]byte, 0, len(s))
	for _, id := range s.Sorted() {
		out = append(out, serverIDBytes(id))
	}
	return out
}

func bytesToServerSet(bs [][]byte) (contract.ServerSet, error) {
	out := contract.NewServerSet()
	for _, b := range bs {
		id, err := bytesToServerID(b)
		if err != nil {
			return nil, err
		}
		out.Add(id)
	}
	return out, nil
}

func contractToProto(c contract.Contract) *api.ContractProto {
	p := &api.ContractProto{
		Replicas: serverSetBytes(c.Replicas),
		Voters:   serverSetBytes(c.Voters),
		Branch:   branchIDBytes(c.Branch),
	}
	if c.TempVoters != nil {
		p.TempVoters = serverSetBytes(c.TempVoters)
	}
	if c.Primary != nil {
		p.HasPrimary = true
		p.PrimaryServer = serverIDBytes(c.Primary.Server)
		if c.Primary.HandOver != nil {
			p.HasHandOver = true
			p.HandOver = serverIDBytes(*c.Primary.HandOver)
		}
	}
	return p
}

func protoToContract(p *api.ContractProto) (contract.Contract, error) {
	if p == nil {
		return contract.Contract{}, fmt.Errorf("coordstate: contract proto is nil")
	}
	replicas, err := bytesToServerSet(p.Replicas)
	if err != nil {
		return contract.Contract{}, err
	}
	voters, err := bytesToServerSet(p.Voters)
	if err != nil {
		return contract.Contract{}, err
	}
	branchID, err := bytesToBranchID(p.Branch)
	if err != nil {
		return contract.Contract{}, err
	}
	c := contract.Contract{Replicas: replicas, Voters: voters, Branch: branchID}
	if p.TempVoters != nil {
		tv, err := bytesToServerSet(p.TempVoters)
		if err != nil {
			return contract.Contract{}, err
		}
		c.TempVoters = tv
	}
	if p.HasPrimary {
		server, err := bytesToServerID(p.PrimaryServer)
		if err != nil {
			return contract.Contract{}, err
		}
		pd := &contract.PrimaryDescriptor{Server: server}
		if p.HasHandOver {
			h, err := bytesToServerID(p.HandOver)
			if err != nil {
				return contract.Contract{}, err
			}
			pd.HandOver = &h
		}
		c.Primary = pd
	}
	return c, nil
}

// diffToProto converts a calculated diff to its wire form.
func diffToProto(d coordinator.Diff) *api.DiffProto {
	p := &api.DiffProto{}
	for id := range d.RemoveContracts {
		p.RemoveContractIds = append(p.RemoveContractIds, contractIDBytes(id))
	}
	for id, added := range d.AddContracts {
		p.AddContracts = append(p.AddContracts, &api.AddedContractProto{
			ContractId: contractIDBytes(id),
			Region:     regionToProto(added.Region),
			Contract:   contractToProto(added.Contract),
		})
	}
	for _, reg := range d.RegisterCurrentBranches {
		p.RegisterCurrentBranches = append(p.RegisterCurrentBranches, &api.BranchRegistrationProto{
			Region: regionToProto(reg.Region),
			Branch: branchIDBytes(reg.Branch),
		})
	}
	return p
}

// protoToDiff is the inverse of diffToProto.
func protoToDiff(p *api.DiffProto) (coordinator.Diff, error) {
	if p == nil {
		return coordinator.Diff{}, fmt.Errorf("coordstate: diff proto is nil")
	}
	d := coordinator.Diff{
		RemoveContracts: make(map[contract.ID]struct{}),
		AddContracts:    make(map[contract.ID]coordinator.AddedContract),
	}
	for _, b := range p.RemoveContractIds {
		id, err := bytesToContractID(b)
		if err != nil {
			return coordinator.Diff{}, err
		}
		d.RemoveContracts[id] = struct{}{}
	}
	for _, added := range p.AddContracts {
		id, err := bytesToContractID(added.ContractId)
		if err != nil {
			return coordinator.Diff{}, err
		}
		r, err := protoToRegion(added.Region)
		if err != nil {
			return coordinator.Diff{}, err
		}
		c, err := protoToContract(added.Contract)
		if err != nil {
			return coordinator.Diff{}, err
		}
		d.AddContracts[id] = coordinator.AddedContract{Region: r, Contract: c}
	}
	for _, reg := range p.RegisterCurrentBranches {
		r, err := protoToRegion(reg.Region)
		if err != nil {
			return coordinator.Diff{}, err
		}
		b, err := bytesToBranchID(reg.Branch)
		if err != nil {
			return coordinator.Diff{}, err
		}
		d.RegisterCurrentBranches = append(d.RegisterCurrentBranches, coordinator.BranchRegistration{Region: r, Branch: b})
	}
	return d, nil
}
