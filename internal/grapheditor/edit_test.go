package grapheditor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.wbench.dev/core/internal/grapheditor"
	"go.wbench.dev/core/internal/hunk"
	"go.wbench.dev/core/internal/wsgraph"
)

func TestInsertBlank_before(t *testing.T) {
	t.Parallel()
	wt := openFixture(t, `
		git init
		git add base.txt
		git commit -m 'base'
		git branch -M main

		git checkout -b feature
		git add a.txt
		git commit -m 'add a'

		-- base.txt --
		base
		-- a.txt --
		a
	`)
	ctx := t.Context()

	meta := wsgraph.NewStaticMetadata("refs/heads/main", nil)
	g, err := wsgraph.FromHead(ctx, wt, meta, wsgraph.Options{})
	require.NoError(t, err)

	e, err := grapheditor.FromGraph(ctx, wt.Repository(), g)
	require.NoError(t, err)

	tip, err := wt.PeelToCommit(ctx, "refs/heads/feature")
	require.NoError(t, err)
	tipSel, ok := e.SelectCommit(tip)
	require.True(t, ok)
	tipStep, ok := e.Step(tipSel)
	require.True(t, ok)
	origParent := tipStep.Parents[0]

	blankSel, err := e.InsertBlank(tipSel, grapheditor.Before)
	require.NoError(t, err)

	blankStep, ok := e.Step(blankSel)
	require.True(t, ok)
	assert.Equal(t, grapheditor.StepPick, blankStep.Kind)
	assert.Empty(t, blankStep.CommitID)
	require.Len(t, blankStep.Parents, 1)
	assert.Equal(t, origParent, blankStep.Parents[0])

	tipStep, ok = e.Step(tipSel)
	require.True(t, ok)
	require.Len(t, tipStep.Parents, 1)
	assert.Equal(t, blankSel, tipStep.Parents[0])

	require.NoError(t, e.Rebase(ctx))
}

func TestInsertBlank_after(t *testing.T) {
	t.Parallel()
	wt := openFixture(t, `
		git init
		git add base.txt
		git commit -m 'base'
		git branch -M main

		git checkout -b feature
		git add a.txt
		git commit -m 'add a'

		-- base.txt --
		base
		-- a.txt --
		a
	`)
	ctx := t.Context()

	meta := wsgraph.NewStaticMetadata("refs/heads/main", nil)
	g, err := wsgraph.FromHead(ctx, wt, meta, wsgraph.Options{})
	require.NoError(t, err)

	e, err := grapheditor.FromGraph(ctx, wt.Repository(), g)
	require.NoError(t, err)

	tip, err := wt.PeelToCommit(ctx, "refs/heads/feature")
	require.NoError(t, err)
	tipSel, ok := e.SelectCommit(tip)
	require.True(t, ok)

	featureRefSel, ok := e.SelectReference("refs/heads/feature")
	require.True(t, ok)
	featureRefStep, ok := e.Step(featureRefSel)
	require.True(t, ok)
	require.Equal(t, tipSel, featureRefStep.Parents[0])

	blankSel, err := e.InsertBlank(tipSel, grapheditor.After)
	require.NoError(t, err)

	blankStep, ok := e.Step(blankSel)
	require.True(t, ok)
	require.Len(t, blankStep.Parents, 1)
	assert.Equal(t, tipSel, blankStep.Parents[0])

	// The reference must now point past tip at the new blank step.
	featureRefStep, ok = e.Step(featureRefSel)
	require.True(t, ok)
	assert.Equal(t, blankSel, featureRefStep.Parents[0])

	require.NoError(t, e.Rebase(ctx))
}

func TestUncommit_removesWholeFileChange(t *testing.T) {
	t.Parallel()
	wt := openFixture(t, `
		git init
		git add base.txt
		git commit -m 'base'
		git branch -M main

		git checkout -b feature
		git add a.txt
		git add b.txt
		git commit -m 'add a and b'

		-- base.txt --
		base
		-- a.txt --
		a content
		-- b.txt --
		b content
	`)
	ctx := t.Context()

	meta := wsgraph.NewStaticMetadata("refs/heads/main", nil)
	g, err := wsgraph.FromHead(ctx, wt, meta, wsgraph.Options{})
	require.NoError(t, err)

	e, err := grapheditor.FromGraph(ctx, wt.Repository(), g)
	require.NoError(t, err)

	tip, err := wt.PeelToCommit(ctx, "refs/heads/feature")
	require.NoError(t, err)
	tipSel, ok := e.SelectCommit(tip)
	require.True(t, ok)

	// Removing the whole a.txt change: commit keeps only b.txt.
	require.NoError(t, e.Uncommit(ctx, tipSel, []hunk.DiffSpec{{Path: "a.txt"}}))

	require.NoError(t, e.Rebase(ctx))
}

func TestMoveChangesBetweenCommits_wholeFile(t *testing.T) {
	t.Parallel()
	wt := openFixture(t, `
		git init
		git add base.txt
		git commit -m 'base'
		git branch -M main

		git checkout -b feature
		git add a.txt
		git commit -m 'commit 1'
		git add b.txt
		git commit -m 'commit 2'

		-- base.txt --
		base
		-- a.txt --
		a content
		-- b.txt --
		b content
	`)
	ctx := t.Context()

	meta := wsgraph.NewStaticMetadata("refs/heads/main", nil)
	g, err := wsgraph.FromHead(ctx, wt, meta, wsgraph.Options{})
	require.NoError(t, err)

	e, err := grapheditor.FromGraph(ctx, wt.Repository(), g)
	require.NoError(t, err)

	commit2, err := wt.PeelToCommit(ctx, "refs/heads/feature")
	require.NoError(t, err)
	commit2Sel, ok := e.SelectCommit(commit2)
	require.True(t, ok)

	commit1, err := wt.PeelToCommit(ctx, "refs/heads/feature~1")
	require.NoError(t, err)
	commit1Sel, ok := e.SelectCommit(commit1)
	require.True(t, ok)

	// Move b.txt's whole-file addition from commit2 back to commit1.
	require.NoError(t, e.MoveChangesBetweenCommits(ctx, commit2Sel, commit1Sel, []hunk.DiffSpec{{Path: "b.txt"}}))

	require.NoError(t, e.Rebase(ctx))
}

func TestReword_changesMessageNotTree(t *testing.T) {
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

	mainSel, ok := e.SelectReference("refs/heads/main")
	require.True(t, ok)
	mainStep, ok := e.Step(mainSel)
	require.True(t, ok)
	baseSel := mainStep.Parents[0]

	require.NoError(t, e.Reword(baseSel, "a better message"))

	baseStep, ok := e.Step(baseSel)
	require.True(t, ok)
	assert.Equal(t, "a better message", baseStep.Message)

	require.NoError(t, e.Rebase(ctx))

	edits, err := e.Materialize(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, edits)
}
