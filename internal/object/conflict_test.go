package object_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/git/gittest"
	"go.wbench.dev/core/internal/object"
	"go.wbench.dev/core/internal/silog/silogtest"
	"go.wbench.dev/core/internal/text"
)

func TestConflictTreeRoundTrip(t *testing.T) {
	t.Parallel()

	fixture, err := gittest.LoadFixtureScript([]byte(text.Dedent(`
		git init
		git add a.txt b.txt
		git commit -m 'Initial commit'

		-- a.txt --
		a
		-- b.txt --
		b
	`)))
	require.NoError(t, err)

	ctx := t.Context()
	wt, err := git.Open(ctx, fixture.Dir(), git.OpenOptions{Log: silogtest.New(t)})
	require.NoError(t, err)
	repo := wt.Repository()

	tree, err := repo.PeelToTree(ctx, "HEAD")
	require.NoError(t, err)

	want := object.ConflictTree{
		Ours:           tree,
		Theirs:         tree,
		Base:           tree,
		AutoResolution: tree,
		Files: object.ConflictFileSet{
			AncestorEntries: []string{"a.txt"},
			OurEntries:      []string{"a.txt", "b.txt"},
			TheirEntries:    []string{"b.txt"},
		},
	}

	conflictTree, err := object.WriteConflictTree(ctx, repo, want)
	require.NoError(t, err)

	got, err := object.ReadConflictTree(ctx, repo, conflictTree)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestParseConflictFileSet_unknownKey(t *testing.T) {
	_, err := object.ParseConflictFileSet([]byte(`unexpected_key = ["x"]`))
	assert.Error(t, err)
}
