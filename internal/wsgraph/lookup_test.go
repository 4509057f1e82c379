package wsgraph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.wbench.dev/core/internal/wsgraph"
)

func TestFindSegment_fuzzyMatchesShortName(t *testing.T) {
	t.Parallel()
	wt := openFixture(t, `
		git init
		git add base.txt
		git commit -m 'base'
		git branch -M main

		git checkout -b feature-login
		git add a.txt
		git commit -m 'a'

		-- base.txt --
		base
		-- a.txt --
		a
	`)
	ctx := t.Context()

	meta := wsgraph.NewStaticMetadata("refs/heads/main", nil)
	g, err := wsgraph.FromHead(ctx, wt, meta, wsgraph.Options{})
	require.NoError(t, err)

	seg, ok := g.FindSegment("ftlogin")
	require.True(t, ok)
	assert.Equal(t, "refs/heads/feature-login", seg.RefName)
}

func TestFindSegment_emptyQueryFails(t *testing.T) {
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

	_, ok := g.FindSegment("")
	assert.False(t, ok)
}

func TestFindSegment_noMatchFails(t *testing.T) {
	t.Parallel()
	wt := openFixture(t, `
		git init
		git add base.txt
		git commit -m 'base'
		git branch -M main

		git checkout -b feature
		git add a.txt
		git commit -m 'a'

		-- base.txt --
		base
		-- a.txt --
		a
	`)
	ctx := t.Context()

	meta := wsgraph.NewStaticMetadata("refs/heads/main", nil)
	g, err := wsgraph.FromHead(ctx, wt, meta, wsgraph.Options{})
	require.NoError(t, err)

	_, ok := g.FindSegment("zzzzz-no-match-qqqqq")
	assert.False(t, ok)
}
