package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nyxdb/contractcoord/internal/contract"
)

func TestInvisibleToMajorityOptimisticOnUnreachableJudge(t *testing.T) {
	self := contract.NewServerID()
	a := contract.NewServerID()
	b := contract.NewServerID()
	c := contract.NewServerID()

	// we see b and c, but not a; neither b nor c report seeing a.
	conn := NewConnectivity([2]contract.ServerID{self, b}, [2]contract.ServerID{self, c})

	judges := []contract.ServerID{a, b, c}
	assert.True(t, invisibleToMajority(conn, self, judges, a))
}

func TestVisibleWhenMajorityReportsConnection(t *testing.T) {
	self := contract.NewServerID()
	a := contract.NewServerID()
	b := contract.NewServerID()
	c := contract.NewServerID()

	conn := NewConnectivity(
		[2]contract.ServerID{self, a}, [2]contract.ServerID{self, b}, [2]contract.ServerID{self, c},
		[2]contract.ServerID{b, a}, [2]contract.ServerID{c, a},
	)

	judges := []contract.ServerID{a, b, c}
	assert.False(t, invisibleToMajority(conn, self, judges, a))
}

func TestIsVisibleRequiresVoterOrTempVoterMembership(t *testing.T) {
	self := contract.NewServerID()
	a := contract.NewServerID()
	b := contract.NewServerID()
	c := contract.NewServerID()

	// fully connected: a would pass every connectivity check, but it
	// holds neither voter nor temp-voter status.
	conn := allVisibleConnectivity(self, a, b, c)

	voters := []contract.ServerID{b, c}
	assert.False(t, isVisible(conn, self, voters, nil, a))
	assert.True(t, isVisible(conn, self, voters, nil, b))
}

func TestIsVisibleChecksTempVotersWhenPresent(t *testing.T) {
	self := contract.NewServerID()
	a := contract.NewServerID()
	b := contract.NewServerID()
	c := contract.NewServerID()

	conn := NewConnectivity(
		[2]contract.ServerID{self, a}, [2]contract.ServerID{self, b}, [2]contract.ServerID{self, c},
		[2]contract.ServerID{a, a}, [2]contract.ServerID{b, a}, [2]contract.ServerID{c, a},
		[2]contract.ServerID{b, b}, [2]contract.ServerID{c, b},
	)

	voters := []contract.ServerID{a, b, c}
	tempVoters := []contract.ServerID{a}

	// a is in both sets and passes both checks.
	assert.True(t, isVisible(conn, self, voters, tempVoters, a))
	// b is seen by a majority of the voters (b and c report it), but the
	// only temp voter, a, is reachable and does not report it, so b is
	// not visible while the temp-voter set is in effect.
	assert.False(t, isVisible(conn, self, voters, tempVoters, b))
}
