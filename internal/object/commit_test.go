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

func TestCreateAndReadCommit(t *testing.T) {
	t.Parallel()

	fixture, err := gittest.LoadFixtureScript([]byte(text.Dedent(`
		git init
		git add init.txt
		git commit -m 'Initial commit'

		-- init.txt --
		hello
	`)))
	require.NoError(t, err)

	ctx := t.Context()
	wt, err := git.Open(ctx, fixture.Dir(), git.OpenOptions{Log: silogtest.New(t)})
	require.NoError(t, err)
	repo := wt.Repository()

	head, err := repo.PeelToCommit(ctx, "HEAD")
	require.NoError(t, err)

	tree, err := repo.PeelToTree(ctx, "HEAD")
	require.NoError(t, err)

	id := object.NewChangeID()
	hash, err := object.CreateCommit(ctx, repo, object.CreateCommitRequest{
		Tree:      tree,
		Parents:   []git.Hash{head},
		Message:   "Second commit\n",
		Author:    "Test <test@example.com> 0 +0000",
		Committer: "Test <test@example.com> 0 +0000",
		Headers: object.Headers{
			Version:  object.HeadersVersion,
			ChangeID: id,
		},
	})
	require.NoError(t, err)

	commit, err := object.ReadCommit(ctx, repo, hash)
	require.NoError(t, err)

	assert.Equal(t, tree, commit.Tree)
	assert.Equal(t, []git.Hash{head}, commit.Parents)
	assert.Equal(t, "Second commit", commit.Subject)
	assert.Equal(t, id, commit.Headers.ChangeID)
	assert.False(t, commit.Headers.IsConflicted())

	resolved, err := commit.ResolvedTreeID(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, tree, resolved)
}
