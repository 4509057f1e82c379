package wbmeta_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/git/gittest"
	"go.wbench.dev/core/internal/silog/silogtest"
	"go.wbench.dev/core/internal/text"
	"go.wbench.dev/core/internal/wbmeta"
)

func openFixture(t *testing.T) *git.Repository {
	t.Helper()
	fixture, err := gittest.LoadFixtureScript([]byte(text.Dedent(`
		git init
		git add init.txt
		git commit -m 'Initial commit'

		-- init.txt --
		hello
	`)))
	require.NoError(t, err)

	wt, err := git.Open(t.Context(), fixture.Dir(), git.OpenOptions{Log: silogtest.New(t)})
	require.NoError(t, err)
	return wt.Repository()
}

func TestWorkspaceMetadataRoundTrip(t *testing.T) {
	t.Parallel()
	repo := openFixture(t)
	store := wbmeta.New(repo, wbmeta.Options{})
	ctx := t.Context()

	_, err := store.LoadWorkspace(ctx)
	assert.ErrorIs(t, err, wbmeta.ErrNotExist)

	want := wbmeta.WorkspaceMetadata{
		Target: "refs/remotes/origin/main",
		Stacks: []string{"feature-a", "feature-b"},
		Extra:  map[string]any{},
	}
	require.NoError(t, store.SaveWorkspace(ctx, want, "init workspace metadata"))

	got, err := store.LoadWorkspace(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBranchMetadataRoundTrip(t *testing.T) {
	t.Parallel()
	repo := openFixture(t)
	store := wbmeta.New(repo, wbmeta.Options{})
	ctx := t.Context()

	want := wbmeta.BranchMetadata{
		Description: "adds the thing",
		ReviewID:    "PR-42",
		Hidden:      false,
		Extra:       map[string]any{},
	}
	require.NoError(t, store.SaveBranch(ctx, "feature-a", want, "record feature-a"))

	got, err := store.LoadBranch(ctx, "feature-a")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	names, err := store.Branches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"feature-a"}, names)

	require.NoError(t, store.DeleteBranch(ctx, "feature-a", "drop feature-a"))
	_, err = store.LoadBranch(ctx, "feature-a")
	assert.ErrorIs(t, err, wbmeta.ErrNotExist)
}

func TestBranchMetadata_unknownKeysRoundTrip(t *testing.T) {
	t.Parallel()
	repo := openFixture(t)
	store := wbmeta.New(repo, wbmeta.Options{})
	ctx := t.Context()

	m := wbmeta.BranchMetadata{
		Description: "adds the thing",
		Extra:       map[string]any{"future_field": "value-from-a-newer-workbench"},
	}
	require.NoError(t, store.SaveBranch(ctx, "feature-a", m, "record feature-a"))

	got, err := store.LoadBranch(ctx, "feature-a")
	require.NoError(t, err)
	assert.Equal(t, "value-from-a-newer-workbench", got.Extra["future_field"])
}
