package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxdb/contractcoord/internal/contract"
)

func allVisibleConnectivity(self contract.ServerID, servers ...contract.ServerID) Connectivity {
	var pairs [][2]contract.ServerID
	for _, s := range servers {
		pairs = append(pairs, [2]contract.ServerID{self, s})
		for _, t := range servers {
			pairs = append(pairs, [2]contract.ServerID{s, t})
		}
	}
	return NewConnectivity(pairs...)
}

// Scenario 1: first primary election.
func TestScenarioFirstPrimaryElection(t *testing.T) {
	a, b, c := contract.NewServerID(), contract.NewServerID(), contract.NewServerID()
	self := contract.NewServerID()
	conn := allVisibleConnectivity(self, a, b, c)

	old := contract.Contract{
		Replicas: contract.NewServerSet(a, b, c),
		Voters:   contract.NewServerSet(a, b, c),
	}
	cfg := contract.Shard{
		AllReplicas:    contract.NewServerSet(a, b, c),
		PrimaryReplica: b,
	}
	acks := map[contract.ServerID]contract.Fragment{
		a: {State: contract.SecondaryNeedPrimary, HasVersion: true, StateTime: 5},
		b: {State: contract.SecondaryNeedPrimary, HasVersion: true, StateTime: 5},
	}

	in := CalculateContractInput{Old: old, Config: cfg, Acks: acks, Connectivity: conn, Self: self}
	out := CalculateContract(in)

	require.NotNil(t, out.Primary)
	assert.Equal(t, b, out.Primary.Server)

	// re-running with identical inputs is deterministic.
	out2 := CalculateContract(in)
	assert.True(t, out.Equal(out2))
}

// Scenario 2: failover on partition.
func TestScenarioFailoverOnPartition(t *testing.T) {
	a, b, c := contract.NewServerID(), contract.NewServerID(), contract.NewServerID()
	self := contract.NewServerID()

	// we see b and c; neither b nor c report seeing a.
	conn := NewConnectivity(
		[2]contract.ServerID{self, b}, [2]contract.ServerID{self, c},
		[2]contract.ServerID{b, c}, [2]contract.ServerID{c, b},
	)

	old := contract.Contract{
		Replicas: contract.NewServerSet(a, b, c),
		Voters:   contract.NewServerSet(a, b, c),
		Primary:  &contract.PrimaryDescriptor{Server: a},
	}
	cfg := contract.Shard{AllReplicas: contract.NewServerSet(a, b, c)}

	in := CalculateContractInput{Old: old, Config: cfg, Connectivity: conn, Self: self}
	out := CalculateContract(in)

	assert.Nil(t, out.Primary)
}

// Scenario 3: voter set expansion, then commit.
func TestScenarioVoterSetExpansion(t *testing.T) {
	a, b, c, d, e := contract.NewServerID(), contract.NewServerID(), contract.NewServerID(), contract.NewServerID(), contract.NewServerID()
	self := contract.NewServerID()
	conn := allVisibleConnectivity(self, a, b, c, d, e)

	old := contract.Contract{
		Replicas: contract.NewServerSet(a, b, c),
		Voters:   contract.NewServerSet(a, b, c),
		Primary:  &contract.PrimaryDescriptor{Server: a},
	}
	cfg := contract.Shard{AllReplicas: contract.NewServerSet(a, b, c, d, e)}
	acks := map[contract.ServerID]contract.Fragment{
		a: {State: contract.PrimaryInProgress},
		d: {State: contract.SecondaryStreaming},
		e: {State: contract.SecondaryStreaming},
	}

	out := CalculateContract(CalculateContractInput{Old: old, Config: cfg, Acks: acks, Connectivity: conn, Self: self})

	require.NotNil(t, out.TempVoters)
	assert.True(t, out.Voters.Equal(contract.NewServerSet(a, b, c)))
	assert.True(t, out.TempVoters.Equal(contract.NewServerSet(a, b, c, d, e)))

	// next tick: primary reports primary_ready -> commit.
	acks2 := map[contract.ServerID]contract.Fragment{
		a: {State: contract.PrimaryReady},
	}
	out2 := CalculateContract(CalculateContractInput{Old: out, Config: cfg, Acks: acks2, Connectivity: conn, Self: self})
	assert.Nil(t, out2.TempVoters)
	assert.True(t, out2.Voters.Equal(contract.NewServerSet(a, b, c, d, e)))
}

// Scenario 4: hand-over.
func TestScenarioHandOver(t *testing.T) {
	a, b, c := contract.NewServerID(), contract.NewServerID(), contract.NewServerID()
	self := contract.NewServerID()
	conn := allVisibleConnectivity(self, a, b, c)

	old := contract.Contract{
		Replicas: contract.NewServerSet(a, b, c),
		Voters:   contract.NewServerSet(a, b, c),
		Primary:  &contract.PrimaryDescriptor{Server: a},
	}
	cfg := contract.Shard{AllReplicas: contract.NewServerSet(a, b, c), PrimaryReplica: b}
	acks := map[contract.ServerID]contract.Fragment{
		b: {State: contract.SecondaryStreaming},
	}

	out := CalculateContract(CalculateContractInput{Old: old, Config: cfg, Acks: acks, Connectivity: conn, Self: self})
	require.NotNil(t, out.Primary)
	require.NotNil(t, out.Primary.HandOver)
	assert.Equal(t, b, *out.Primary.HandOver)

	// next tick: old primary reports primary_ready -> primary cleared.
	acks2 := map[contract.ServerID]contract.Fragment{
		a: {State: contract.PrimaryReady},
		b: {State: contract.SecondaryStreaming},
	}
	out2 := CalculateContract(CalculateContractInput{Old: out, Config: cfg, Acks: acks2, Connectivity: conn, Self: self})
	assert.Nil(t, out2.Primary)

	// subsequent tick: a, b and c report secondary_need_primary; all three
	// are at or below b's version, a majority of the voters, so b is
	// eligible -> elected.
	acks3 := map[contract.ServerID]contract.Fragment{
		a: {State: contract.SecondaryNeedPrimary, HasVersion: true, StateTime: 10},
		b: {State: contract.SecondaryNeedPrimary, HasVersion: true, StateTime: 10},
		c: {State: contract.SecondaryNeedPrimary, HasVersion: true, StateTime: 10},
	}
	out3 := CalculateContract(CalculateContractInput{Old: out2, Config: cfg, Acks: acks3, Connectivity: conn, Self: self})
	require.NotNil(t, out3.Primary)
	assert.Equal(t, b, out3.Primary.Server)
}

// Boundary: empty acks -> no primary elected, no should_kill_primary from
// ack reasons alone.
func TestBoundaryEmptyAcksNoElection(t *testing.T) {
	a, b, c := contract.NewServerID(), contract.NewServerID(), contract.NewServerID()
	self := contract.NewServerID()
	conn := allVisibleConnectivity(self, a, b, c)

	old := contract.Contract{
		Replicas: contract.NewServerSet(a, b, c),
		Voters:   contract.NewServerSet(a, b, c),
	}
	cfg := contract.Shard{AllReplicas: contract.NewServerSet(a, b, c)}

	out := CalculateContract(CalculateContractInput{Old: old, Config: cfg, Connectivity: conn, Self: self})
	assert.Nil(t, out.Primary)
	assert.True(t, out.Replicas.Equal(contract.NewServerSet(a, b, c)))
}

// Boundary: all voters invisible -> no primary elected; existing primary
// marked for removal.
func TestBoundaryAllVotersInvisible(t *testing.T) {
	a, b, c := contract.NewServerID(), contract.NewServerID(), contract.NewServerID()
	self := contract.NewServerID()
	// self can see a, b and c directly, but none of them report seeing
	// anyone (including themselves), so invisibleToMajority's optimism
	// about unreachable judges does not apply here: self's own direct
	// reports rule it out for every judge.
	conn := NewConnectivity(
		[2]contract.ServerID{self, a}, [2]contract.ServerID{self, b}, [2]contract.ServerID{self, c},
	)

	old := contract.Contract{
		Replicas: contract.NewServerSet(a, b, c),
		Voters:   contract.NewServerSet(a, b, c),
		Primary:  &contract.PrimaryDescriptor{Server: a},
	}
	cfg := contract.Shard{AllReplicas: contract.NewServerSet(a, b, c)}
	acks := map[contract.ServerID]contract.Fragment{
		b: {State: contract.SecondaryNeedPrimary, HasVersion: true, StateTime: 1},
	}

	// existing primary is marked for removal since it is invisible.
	out := CalculateContract(CalculateContractInput{Old: old, Config: cfg, Acks: acks, Connectivity: conn, Self: self})
	assert.Nil(t, out.Primary)

	// with no existing primary, invisibility also prevents election.
	old2 := old
	old2.Primary = nil
	out2 := CalculateContract(CalculateContractInput{Old: old2, Config: cfg, Acks: acks, Connectivity: conn, Self: self})
	assert.Nil(t, out2.Primary)
}

// Boundary: a primary demoted out of the voter set, but still present in
// config.AllReplicas (so step (e) does not drop it), is never visible
// and is killed at step (g)'s fallback check, even though it remains
// fully reachable.
func TestBoundaryDemotedPrimaryIsNotVisible(t *testing.T) {
	a, b, c := contract.NewServerID(), contract.NewServerID(), contract.NewServerID()
	self := contract.NewServerID()
	conn := allVisibleConnectivity(self, a, b, c)

	old := contract.Contract{
		Replicas: contract.NewServerSet(a, b, c),
		Voters:   contract.NewServerSet(b, c),
		Primary:  &contract.PrimaryDescriptor{Server: a},
	}
	cfg := contract.Shard{
		AllReplicas:       contract.NewServerSet(a, b, c),
		NonvotingReplicas: contract.NewServerSet(a),
	}

	out := CalculateContract(CalculateContractInput{Old: old, Config: cfg, Connectivity: conn, Self: self})
	assert.Nil(t, out.Primary)
	assert.True(t, out.Replicas.Has(a))
}

// Boundary: config.primary_replica = nil with eligible candidates -> the
// most-up-to-date candidate wins.
func TestBoundaryNoDesignatedPrimaryPicksMostUpToDate(t *testing.T) {
	a, b, c := contract.NewServerID(), contract.NewServerID(), contract.NewServerID()
	self := contract.NewServerID()
	conn := allVisibleConnectivity(self, a, b, c)

	old := contract.Contract{
		Replicas: contract.NewServerSet(a, b, c),
		Voters:   contract.NewServerSet(a, b, c),
	}
	cfg := contract.Shard{AllReplicas: contract.NewServerSet(a, b, c)}
	acks := map[contract.ServerID]contract.Fragment{
		a: {State: contract.SecondaryNeedPrimary, HasVersion: true, StateTime: 5},
		b: {State: contract.SecondaryNeedPrimary, HasVersion: true, StateTime: 50},
	}

	out := CalculateContract(CalculateContractInput{Old: old, Config: cfg, Acks: acks, Connectivity: conn, Self: self})
	require.NotNil(t, out.Primary)
	assert.Equal(t, b, out.Primary.Server)
}
