package grapheditor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/git/gittest"
	"go.wbench.dev/core/internal/grapheditor"
	"go.wbench.dev/core/internal/silog/silogtest"
	"go.wbench.dev/core/internal/text"
	"go.wbench.dev/core/internal/wsgraph"
)

func openFixture(t *testing.T, script string) *git.Worktree {
	t.Helper()
	fixture, err := gittest.LoadFixtureScript([]byte(text.Dedent(script)))
	require.NoError(t, err)
	t.Cleanup(fixture.Cleanup)

	wt, err := git.Open(t.Context(), fixture.Dir(), git.OpenOptions{Log: silogtest.New(t)})
	require.NoError(t, err)
	return wt
}

func TestFromGraph_singleStack(t *testing.T) {
	t.Parallel()
	wt := openFixture(t, `
		git init
		git add base.txt
		git commit -m 'base'
		git branch -M main

		git checkout -b feature-a
		git add a1.txt
		git commit -m 'a1'
		git add a2.txt
		git commit -m 'a2'

		-- base.txt --
		base
		-- a1.txt --
		a1
		-- a2.txt --
		a2
	`)
	ctx := t.Context()

	meta := wsgraph.NewStaticMetadata("refs/heads/main", nil)
	g, err := wsgraph.FromHead(ctx, wt, meta, wsgraph.Options{})
	require.NoError(t, err)
	g, err = g.Validated()
	require.NoError(t, err)

	e, err := grapheditor.FromGraph(ctx, wt.Repository(), g)
	require.NoError(t, err)

	tip, err := wt.PeelToCommit(ctx, "refs/heads/feature-a")
	require.NoError(t, err)
	base, err := wt.PeelToCommit(ctx, "refs/heads/main")
	require.NoError(t, err)

	tipSel, ok := e.SelectCommit(tip)
	require.True(t, ok)
	tipStep, ok := e.Step(tipSel)
	require.True(t, ok)
	assert.Equal(t, grapheditor.StepPick, tipStep.Kind)
	assert.Equal(t, tip, tipStep.CommitID)
	require.Len(t, tipStep.Parents, 1)

	baseSel, ok := e.SelectCommit(base)
	require.True(t, ok)
	assert.Equal(t, baseSel, tipStep.Parents[0])

	mainSel, ok := e.SelectReference("refs/heads/main")
	require.True(t, ok)
	mainStep, ok := e.Step(mainSel)
	require.True(t, ok)
	assert.Equal(t, grapheditor.StepReference, mainStep.Kind)
	require.Len(t, mainStep.Parents, 1)
	assert.Equal(t, baseSel, mainStep.Parents[0])

	featSel, ok := e.SelectReference("refs/heads/feature-a")
	require.True(t, ok)
	featStep, ok := e.Step(featSel)
	require.True(t, ok)
	require.Len(t, featStep.Parents, 1)
	assert.Equal(t, tipSel, featStep.Parents[0])

	_, hasWorkspace := e.Workspace()
	assert.False(t, hasWorkspace)
}

func TestFromGraph_workspaceMerge(t *testing.T) {
	t.Parallel()
	wt := openFixture(t, `
		git init
		git add base.txt
		git commit -m 'base'
		git branch -M main

		git checkout -b feature-a
		git add a1.txt
		git commit -m 'a1'

		git checkout main
		git checkout -b feature-b
		git add b1.txt
		git commit -m 'b1'

		git checkout -b workspace
		git merge feature-a --no-edit -m 'workspace merge'

		-- base.txt --
		base
		-- a1.txt --
		a1
		-- b1.txt --
		b1
	`)
	ctx := t.Context()

	meta := wsgraph.NewStaticMetadata("refs/heads/main", map[string]string{
		"feature-a": "main",
		"feature-b": "main",
	})
	g, err := wsgraph.FromHead(ctx, wt, meta, wsgraph.Options{})
	require.NoError(t, err)
	g, err = g.Validated()
	require.NoError(t, err)

	e, err := grapheditor.FromGraph(ctx, wt.Repository(), g)
	require.NoError(t, err)

	wsSel, ok := e.Workspace()
	require.True(t, ok)

	wsStep, ok := e.Step(wsSel)
	require.True(t, ok)
	assert.Equal(t, grapheditor.StepMerge, wsStep.Kind)
	assert.True(t, wsStep.Workspace)
	assert.False(t, wsStep.Conflictable)
	require.GreaterOrEqual(t, len(wsStep.Parents), 2)
	for _, p := range wsStep.Parents {
		parentStep, ok := e.Step(p)
		require.True(t, ok)
		assert.Equal(t, grapheditor.StepReference, parentStep.Kind)
	}
}

func TestReplace_invalidatesRebaseCache(t *testing.T) {
	t.Parallel()
	wt := openFixture(t, `
		git init
		git add base.txt
		git commit -m 'base'
		git branch -M main

		-- base.txt --
		base
	`)
	ctx := t.Context()

	meta := wsgraph.NewStaticMetadata("refs/heads/main", nil)
	g, err := wsgraph.FromHead(ctx, wt, meta, wsgraph.Options{})
	require.NoError(t, err)

	e, err := grapheditor.FromGraph(ctx, wt.Repository(), g)
	require.NoError(t, err)

	require.NoError(t, e.Rebase(ctx))

	mainSel, ok := e.SelectReference("refs/heads/main")
	require.True(t, ok)
	step, ok := e.Step(mainSel)
	require.True(t, ok)
	require.NoError(t, e.Replace(mainSel, step))

	// Replace invalidates the cache; Rebase must be safe to call again.
	require.NoError(t, e.Rebase(ctx))
}
