package fragment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxdb/contractcoord/internal/branch"
	"github.com/nyxdb/contractcoord/internal/contract"
	"github.com/nyxdb/contractcoord/internal/fragment"
	"github.com/nyxdb/contractcoord/internal/region"
)

func TestBreakIntoFragmentsNoVersionIsUniform(t *testing.T) {
	target := region.Full()
	ack := contract.Ack{State: contract.SecondaryStreaming}

	branches := region.Single(target, branch.NewID())
	out := fragment.BreakIntoFragments(target, ack, branches, branch.StaticHistory{})

	require.Equal(t, 1, out.Len())
	assert.Equal(t, contract.SecondaryStreaming, out.Fragments()[0].Value.State)
	assert.False(t, out.Fragments()[0].Value.HasVersion)
}

func TestBreakIntoFragmentsProjectsOntoCanonicalBranch(t *testing.T) {
	root := branch.NewID()
	child := branch.NewID()
	history := branch.StaticHistory{child: branch.Birth{Parent: root, Divergence: 7}}

	target := region.Full()
	versionMap := region.Single(target, branch.Version{Branch: child, Time: 100})
	ack := contract.Ack{
		State:   contract.SecondaryStreaming,
		Version: &versionMap,
	}
	canonical := region.Single(target, root)

	out := fragment.BreakIntoFragments(target, ack, canonical, history)

	require.Equal(t, 1, out.Len())
	frag := out.Fragments()[0].Value
	assert.True(t, frag.HasVersion)
	assert.Equal(t, branch.Timestamp(7), frag.StateTime)
}

func TestBreakIntoFragmentsUnrelatedBranchIsConservative(t *testing.T) {
	target := region.Full()
	canonicalBranch := branch.NewID()
	otherBranch := branch.NewID()

	versionMap := region.Single(target, branch.Version{Branch: otherBranch, Time: 5})
	ack := contract.Ack{State: contract.SecondaryStreaming, Version: &versionMap}
	canonical := region.Single(target, canonicalBranch)

	out := fragment.BreakIntoFragments(target, ack, canonical, branch.StaticHistory{})

	require.Equal(t, 1, out.Len())
	assert.False(t, out.Fragments()[0].Value.HasVersion)
}
