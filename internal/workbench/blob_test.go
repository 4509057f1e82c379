package workbench

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/git/gittest"
	"go.wbench.dev/core/internal/hunk"
	"go.wbench.dev/core/internal/silog/silogtest"
	"go.wbench.dev/core/internal/text"
)

func openBlobFixture(t *testing.T, script string) *git.Worktree {
	t.Helper()
	fixture, err := gittest.LoadFixtureScript([]byte(text.Dedent(script)))
	require.NoError(t, err)
	t.Cleanup(fixture.Cleanup)

	wt, err := git.Open(t.Context(), fixture.Dir(), git.OpenOptions{Log: silogtest.New(t)})
	require.NoError(t, err)
	return wt
}

func TestReadTreeBlob_missingPathReadsNil(t *testing.T) {
	t.Parallel()
	wt := openBlobFixture(t, `
		git init
		git add a.txt
		git commit -m 'base'
		git branch -M main

		-- a.txt --
		content
	`)
	ctx := t.Context()
	repo := wt.Repository()

	head, err := wt.Head(ctx)
	require.NoError(t, err)
	tree, err := repo.PeelToTree(ctx, head.String())
	require.NoError(t, err)

	data, err := readTreeBlob(ctx, repo, tree, "missing.txt")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestWriteTreeBlob_emptyContentRemovesPath(t *testing.T) {
	t.Parallel()
	wt := openBlobFixture(t, `
		git init
		git add a.txt
		git commit -m 'base'
		git branch -M main

		-- a.txt --
		content
	`)
	ctx := t.Context()
	repo := wt.Repository()

	head, err := wt.Head(ctx)
	require.NoError(t, err)
	tree, err := repo.PeelToTree(ctx, head.String())
	require.NoError(t, err)

	newTree, err := writeTreeBlob(ctx, repo, tree, "a.txt", nil)
	require.NoError(t, err)

	data, err := readTreeBlob(ctx, repo, newTree, "a.txt")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestRestoreUnselected_keepsNonConsumedHunks(t *testing.T) {
	t.Parallel()
	wt := openBlobFixture(t, `
		git init
		git add a.txt
		git commit -m 'base'
		git branch -M main

		-- a.txt --
		one
		two
		three
	`)
	svc := New(wt, Options{Log: silogtest.New(t)})

	headImage := []byte("one\ntwo\nthree\n")
	worktreeImage := []byte("one edited\ntwo\nthree edited\n")

	// Write the content a commit operation would leave at HEAD: only
	// the line-1 edit was selected and committed.
	newHeadImage := []byte("one edited\ntwo\nthree\n")
	writeFileAt(t, wt, "a.txt", string(newHeadImage))

	consumed := []hunk.Header{{OldStart: 1, OldLines: 1, NewStart: 1, NewLines: 1}}
	require.NoError(t, svc.restoreUnselected("a.txt", headImage, worktreeImage, consumed))

	assert.Equal(t, "one edited\ntwo\nthree edited\n", readFileAt(t, wt, "a.txt"))
}

func writeFileAt(t *testing.T, wt *git.Worktree, path, content string) {
	t.Helper()
	require.NoError(t, writeWorktreeFile(wt, path, []byte(content)))
}

func readFileAt(t *testing.T, wt *git.Worktree, path string) string {
	t.Helper()
	data, err := readWorktreeFile(wt, path)
	require.NoError(t, err)
	return string(data)
}
