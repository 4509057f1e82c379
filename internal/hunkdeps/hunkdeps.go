// Package hunkdeps computes, for every hunk in the worktree, the set of
// committed changes it logically depends on: the locks that drive the
// UI's conflict warnings and the absorb engine's target selection.
package hunkdeps

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"iter"
	"slices"

	"go.abhg.dev/container/ring"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/hunk"
)

// BlobSource is the narrow slice of *git.Repository this package reads
// from: per-file change detection between two trees, and blob lookup by
// path within a tree. Narrowed so tests can substitute an in-memory
// fake instead of a live repository.
type BlobSource interface {
	DiffTree(ctx context.Context, treeish1, treeish2 string) iter.Seq2[git.FileStatus, error]
	HashAt(ctx context.Context, treeish, path string) (git.Hash, error)
	ReadObject(ctx context.Context, typ git.Type, hash git.Hash, dst io.Writer) error
}

// Stack is one applied stack's non-merge commits, ordered tip to base
// (newest first). The oldest commit's parent is assumed to be the
// merge base passed to [Calculate].
type Stack struct {
	ID        string
	CommitIDs []git.Hash
}

// HunkLock records that a worktree hunk depends on a prior commit: the
// commit's own change overlaps, in merge-base coordinates, the range
// the worktree hunk touches.
type HunkLock struct {
	Path     string
	Hunk     hunk.Header
	CommitID git.Hash
	StackID  string
}

// FileDependencies is one worktree hunk and the locks discovered for it.
type FileDependencies struct {
	Path  string
	Hunk  hunk.Header
	Locks []HunkLock
}

// CalculationError records a failure to compute dependencies for one
// file, without aborting the rest of the calculation.
type CalculationError struct {
	Path   string
	Detail string
}

func (e CalculationError) Error() string { return fmt.Sprintf("%s: %s", e.Path, e.Detail) }

// Dependencies is the full result of [Calculate]: per-hunk locks, plus
// any per-file errors encountered along the way. A partial result is
// always returned even when some files failed.
type Dependencies struct {
	Diffs  []FileDependencies
	Errors []CalculationError
}

// Calculate reports, for every hunk in worktreeDiffs, the commits
// across every stack whose own change overlaps that hunk once both are
// expressed in the coordinate system of the target merge base. Merge
// commits must already be excluded from each stack's CommitIDs; this
// only walks first-parent-style linear history.
func Calculate(ctx context.Context, src BlobSource, target git.Hash, stacks []Stack, worktreeDiffs []hunk.DiffSpec) *Dependencies {
	deps := &Dependencies{}

	paths := make(map[string]*pathState)

	var work ring.Q[Stack]
	for _, st := range stacks {
		work.Push(st)
	}
	for !work.Empty() {
		walkStack(ctx, src, target, work.Pop(), paths, deps)
	}

	for _, d := range worktreeDiffs {
		ps := paths[d.Path]
		for _, h := range d.Hunks {
			fd := FileDependencies{Path: d.Path, Hunk: h}
			if ps != nil {
				seen := make(map[[2]string]bool)
				worktreeRange := mapToBase(ps, len(ps.layers)-1, h.OldRange())
				for _, tr := range ps.touched {
					if !worktreeRange.Intersects(tr.mapped) {
						continue
					}
					key := [2]string{tr.stackID, tr.commitID.String()}
					if seen[key] {
						continue
					}
					seen[key] = true
					fd.Locks = append(fd.Locks, HunkLock{
						Path:     d.Path,
						Hunk:     h,
						CommitID: tr.commitID,
						StackID:  tr.stackID,
					})
				}
			}
			slices.SortFunc(fd.Locks, func(a, b HunkLock) int {
				if c := cmp.Compare(a.StackID, b.StackID); c != 0 {
					return c
				}
				return cmp.Compare(a.CommitID, b.CommitID)
			})
			deps.Diffs = append(deps.Diffs, fd)
		}
	}

	slices.SortFunc(deps.Diffs, func(a, b FileDependencies) int {
		if c := cmp.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Hunk.OldStart, b.Hunk.OldStart); c != 0 {
			return c
		}
		return cmp.Compare(a.Hunk.NewStart, b.Hunk.NewStart)
	})

	return deps
}
