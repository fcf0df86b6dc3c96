package branch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxdb/contractcoord/internal/branch"
)

func TestProjectOntoSameBranch(t *testing.T) {
	b := branch.NewID()
	v := branch.Version{Branch: b, Time: 42}
	got, ok := branch.ProjectOntoBranch(branch.StaticHistory{}, v, b)
	require.True(t, ok)
	assert.Equal(t, v, got)
}

func TestProjectDescendantOntoAncestor(t *testing.T) {
	root := branch.NewID()
	child := branch.NewID()
	h := branch.StaticHistory{
		child: branch.Birth{Parent: root, Divergence: 10},
	}

	// a write reached on child at time 50; projected onto root it is
	// visible only up to the point child diverged from root.
	v := branch.Version{Branch: child, Time: 50}
	got, ok := branch.ProjectOntoBranch(h, v, root)
	require.True(t, ok)
	assert.Equal(t, branch.Timestamp(10), got.Time)
	assert.Equal(t, root, got.Branch)
}

func TestProjectAncestorOntoDescendant(t *testing.T) {
	root := branch.NewID()
	child := branch.NewID()
	h := branch.StaticHistory{
		child: branch.Birth{Parent: root, Divergence: 10},
	}

	// a write on root before the divergence point is visible on child.
	v := branch.Version{Branch: root, Time: 5}
	got, ok := branch.ProjectOntoBranch(h, v, child)
	require.True(t, ok)
	assert.Equal(t, branch.Timestamp(5), got.Time)

	// a write on root after the divergence point is only visible up to
	// the divergence point.
	v2 := branch.Version{Branch: root, Time: 20}
	got2, ok := branch.ProjectOntoBranch(h, v2, child)
	require.True(t, ok)
	assert.Equal(t, branch.Timestamp(10), got2.Time)
}

func TestProjectUnrelatedBranchesFails(t *testing.T) {
	a := branch.NewID()
	b := branch.NewID()
	_, ok := branch.ProjectOntoBranch(branch.StaticHistory{}, branch.Version{Branch: a, Time: 1}, b)
	assert.False(t, ok)
}

func TestCombinedHistoryConsultsBoth(t *testing.T) {
	root := branch.NewID()
	child := branch.NewID()
	primary := branch.StaticHistory{}
	secondary := branch.StaticHistory{child: branch.Birth{Parent: root, Divergence: 3}}
	combined := branch.Combined{Primary: primary, Secondary: secondary}

	birth, ok := combined.BirthOf(child)
	require.True(t, ok)
	assert.Equal(t, root, birth.Parent)
}
