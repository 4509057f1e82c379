package workbench

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/grapheditor"
	"go.wbench.dev/core/internal/hunk"
	"go.wbench.dev/core/internal/hunkdeps"
	"go.wbench.dev/core/internal/wbmeta"
	"go.wbench.dev/core/internal/wsgraph"
)

// AbsorbScope narrows which uncommitted changes Absorb considers.
type AbsorbScope struct {
	// Path restricts the scope to a single file's uncommitted change.
	// Empty considers every uncommitted change (subject to Stack below).
	Path string

	// Stack restricts the scope to one stack, by its topmost branch's
	// full ref name. Empty considers every applied stack as an
	// absorption target.
	Stack string
}

// AbsorbPlan reports, for one file's uncommitted change, which existing
// commit Absorb would fold it into (or did fold it into, once returned
// alongside the edits from a completed run).
type AbsorbPlan struct {
	Path    string
	Target  git.Hash
	StackID string
	Hunks   []hunk.Header
}

// absorbRank orders a commit within its stack: lower pos is closer to
// the stack's tip.
type absorbRank struct {
	stackIdx int
	pos      int
}

func (a absorbRank) before(b absorbRank) bool {
	if a.pos != b.pos {
		return a.pos < b.pos
	}
	return a.stackIdx < b.stackIdx
}

// Absorb moves every in-scope uncommitted change into the topmost
// commit (on the leftmost stack among ties) that it logically depends
// on, one target per whole file. Files whose change doesn't overlap
// any tracked commit are left uncommitted and excluded from the plan.
func (s *Service) Absorb(ctx context.Context, scope AbsorbScope) ([]AbsorbPlan, []grapheditor.RefEdit, error) {
	var plans []AbsorbPlan

	edits, err := s.withEditor(ctx, "Absorb", func(ctx context.Context, e *grapheditor.Editor, g *wsgraph.Graph) error {
		repo := s.wt.Repository()

		meta, err := s.loadMetaSource(ctx)
		if err != nil {
			return err
		}
		ws := g.ToWorkspace(meta)

		rank := make(map[git.Hash]absorbRank)
		var stacks []hunkdeps.Stack
		for stackIdx, stack := range ws.Stacks {
			if scope.Stack != "" && !stackHasRef(g, stack, scope.Stack) {
				continue
			}
			ids := stackTipToBase(g, stack)
			for pos, id := range ids {
				if _, ok := rank[id]; !ok {
					rank[id] = absorbRank{stackIdx: stackIdx, pos: pos}
				}
			}
			stacks = append(stacks, hunkdeps.Stack{
				ID:        fmt.Sprintf("stack-%d", stackIdx),
				CommitIDs: ids,
			})
		}

		var target git.Hash
		if targetRef, ok := g.Target(); ok {
			target, _ = repo.PeelToCommit(ctx, targetRef)
		}

		headHash, err := s.wt.Head(ctx)
		if err != nil {
			return fmt.Errorf("absorb: resolve HEAD: %w", err)
		}
		headTree, err := repo.PeelToTree(ctx, headHash.String())
		if err != nil {
			return fmt.Errorf("absorb: resolve HEAD tree: %w", err)
		}

		paths, err := s.absorbScopePaths(ctx, scope)
		if err != nil {
			return err
		}

		var diffs []hunk.DiffSpec
		images := make(map[string][2][]byte, len(paths))
		for _, path := range paths {
			headImage, err := readTreeBlob(ctx, repo, headTree, path)
			if err != nil {
				return err
			}
			worktreeImage, err := readWorktreeFile(s.wt, path)
			if err != nil {
				return err
			}
			images[path] = [2][]byte{headImage, worktreeImage}
			diffs = append(diffs, hunk.DiffSpec{
				Path:  path,
				Hunks: hunk.DiffLines(headImage, worktreeImage),
			})
		}

		deps := hunkdeps.Calculate(ctx, repo, target, stacks, diffs)

		// Absorb decides one target per whole file: every hunk
		// belonging to a path, across however many [hunkdeps.FileDependencies]
		// entries it was split into, votes on the same winning commit.
		type fileLocks struct {
			locks []hunkdeps.HunkLock
			hunks []hunk.Header
		}
		byPath := make(map[string]*fileLocks)
		var order []string
		for _, fd := range deps.Diffs {
			fl, ok := byPath[fd.Path]
			if !ok {
				fl = &fileLocks{}
				byPath[fd.Path] = fl
				order = append(order, fd.Path)
			}
			fl.locks = append(fl.locks, fd.Locks...)
			fl.hunks = append(fl.hunks, fd.Hunk)
		}

		pushState := newAbsorbPushState(s.meta, g)

		for _, path := range order {
			fl := byPath[path]
			if len(fl.locks) == 0 {
				continue
			}

			var best hunkdeps.HunkLock
			var bestRank absorbRank
			found := false
			for _, lock := range fl.locks {
				r, ok := rank[lock.CommitID]
				if !ok {
					continue
				}
				eligible, err := pushState.eligible(ctx, repo, lock.CommitID)
				if err != nil {
					return err
				}
				if !eligible {
					continue
				}
				if !found || r.before(bestRank) {
					best, bestRank, found = lock, r, true
				}
			}
			if !found {
				continue
			}

			targetSel, ok := e.SelectCommit(best.CommitID)
			if !ok {
				continue
			}
			targetStep, _ := e.Step(targetSel)
			targetTree := targetStep.OrigTree
			if targetStep.OverrideTree != "" {
				targetTree = targetStep.OverrideTree
			}

			imgs := images[path]
			newTree, err := writeTreeBlob(ctx, repo, targetTree, path, imgs[1])
			if err != nil {
				return err
			}
			targetStep.OverrideTree = newTree
			if err := e.Replace(targetSel, targetStep); err != nil {
				return err
			}

			// No worktree write here: syncWorktree's post-materialize
			// reset already leaves this file matching the new HEAD,
			// which now carries the content just folded in.

			plans = append(plans, AbsorbPlan{
				Path:    path,
				Target:  best.CommitID,
				StackID: best.StackID,
				Hunks:   fl.hunks,
			})
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return plans, edits, nil
}

// absorbScopePaths lists the uncommitted files Absorb should consider:
// either the single requested path, or the union of paths that differ
// between the worktree and the index and between the index and HEAD.
func (s *Service) absorbScopePaths(ctx context.Context, scope AbsorbScope) ([]string, error) {
	if scope.Path != "" {
		return []string{scope.Path}, nil
	}

	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for fs, err := range s.wt.DiffWork(ctx) {
		if err != nil {
			return nil, fmt.Errorf("absorb: diff worktree: %w", err)
		}
		add(fs.Path)
	}

	staged, err := s.wt.DiffIndex(ctx, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("absorb: diff index: %w", err)
	}
	for _, fs := range staged {
		add(fs.Path)
	}

	sort.Strings(paths)
	return paths, nil
}

// stackTipToBase lists every non-merge commit in stack ordered tip to
// base, newest first, across the whole stack — the order
// [hunkdeps.Stack] expects. [wsgraph.Graph.CommitIDs] concatenates
// segments base-first instead (its own commits tip-first within each
// segment), which is the wrong direction once more than one segment is
// involved. Merge commits are dropped here rather than relied upon to
// be absent from segments: [wsgraph.FlagMerge] isolates a merge commit
// into its own segment, but that segment's one commit still needs
// filtering out before it reaches [hunkdeps.Calculate], which requires
// its inputs already exclude merge commits.
func stackTipToBase(g *wsgraph.Graph, stack wsgraph.Stack) []git.Hash {
	var ids []git.Hash
	for i := len(stack.Segments) - 1; i >= 0; i-- {
		seg, ok := g.Segment(stack.Segments[i])
		if !ok {
			continue
		}
		for _, c := range seg.Commits {
			if c.Flags.Has(wsgraph.FlagMerge) {
				continue
			}
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// absorbPushState answers, per candidate absorption target, whether
// that commit is already pushed to its branch's remote-tracking ref
// and that branch has not opted into force-push — in which case
// Absorb must skip it rather than fold a change into history the
// branch would need a rejected force-push to republish.
type absorbPushState struct {
	meta *wbmeta.Store

	segByCommit    map[git.Hash]wsgraph.Segment
	remoteRef      map[string]string   // branch short name -> resolved remote ref, memoized ("" once resolved means none found)
	remoteRefDone  map[string]bool     // branch short name -> remoteRef lookup already performed
	remoteTip      map[string]git.Hash // remote ref name -> peeled commit, memoized
	allowForcePush map[string]bool     // branch short name -> recorded setting, memoized
}

func newAbsorbPushState(meta *wbmeta.Store, g *wsgraph.Graph) *absorbPushState {
	segByCommit := make(map[git.Hash]wsgraph.Segment)
	for _, seg := range g.Segments() {
		for _, c := range seg.Commits {
			if _, ok := segByCommit[c.ID]; !ok {
				segByCommit[c.ID] = seg
			}
		}
	}
	return &absorbPushState{
		meta:           meta,
		segByCommit:    segByCommit,
		remoteRef:      make(map[string]string),
		remoteRefDone:  make(map[string]bool),
		remoteTip:      make(map[string]git.Hash),
		allowForcePush: make(map[string]bool),
	}
}

// remoteRefFor resolves the remote-tracking ref for a local branch short
// name by the "refs/remotes/<remote>/<name>" convention, picking the
// first match across configured remotes. Returns "" if none exists.
func (p *absorbPushState) remoteRefFor(ctx context.Context, repo *git.Repository, shortName string) (string, error) {
	if p.remoteRefDone[shortName] {
		return p.remoteRef[shortName], nil
	}
	p.remoteRefDone[shortName] = true

	refs, err := repo.ListRefs(ctx, "refs/remotes/")
	if err != nil {
		return "", fmt.Errorf("list remote-tracking refs: %w", err)
	}
	for _, ref := range refs {
		rest := strings.TrimPrefix(ref.Name, "refs/remotes/")
		if _, name, ok := strings.Cut(rest, "/"); ok && name == shortName {
			p.remoteRef[shortName] = ref.Name
			return ref.Name, nil
		}
	}
	return "", nil
}

// eligible reports whether commit may be an Absorb target.
func (p *absorbPushState) eligible(ctx context.Context, repo *git.Repository, commit git.Hash) (bool, error) {
	seg, ok := p.segByCommit[commit]
	if !ok || seg.Kind != wsgraph.KindBranch || !strings.HasPrefix(seg.RefName, "refs/heads/") {
		return true, nil // not a local branch tip: nothing to have pushed to
	}

	remoteRef := seg.RemoteTrackingRefName
	if remoteRef == "" {
		// build.go only pairs a local segment with a remote-tracking one
		// when their tips diverged; a branch pushed exactly up to its
		// local tip shares that tip's commit and never grows a sibling
		// segment at all. Resolve the remote ref directly by naming
		// convention instead of relying on that pairing.
		ref, err := p.remoteRefFor(ctx, repo, strings.TrimPrefix(seg.RefName, "refs/heads/"))
		if err != nil {
			return false, err
		}
		remoteRef = ref
	}
	if remoteRef == "" {
		return true, nil // no remote tracking ref: nothing to have pushed to
	}

	remoteTip, ok := p.remoteTip[remoteRef]
	if !ok {
		hash, err := repo.PeelToCommit(ctx, remoteRef)
		if err != nil {
			return true, nil // remote ref vanished or never fetched; nothing recorded as pushed
		}
		remoteTip = hash
		p.remoteTip[remoteRef] = hash
	}

	if !repo.IsAncestor(ctx, commit, remoteTip) {
		return true, nil // not yet pushed
	}

	name := strings.TrimPrefix(seg.RefName, "refs/heads/")
	allow, ok := p.allowForcePush[name]
	if !ok {
		bm, err := p.meta.LoadBranch(ctx, name)
		if err != nil && !errors.Is(err, wbmeta.ErrNotExist) {
			return false, fmt.Errorf("load branch metadata for %s: %w", name, err)
		}
		allow = bm.AllowForcePush
		p.allowForcePush[name] = allow
	}
	return allow, nil
}

// stackHasRef reports whether stack contains the branch segment named
// by fullRef.
func stackHasRef(g *wsgraph.Graph, stack wsgraph.Stack, fullRef string) bool {
	for _, segID := range stack.Segments {
		seg, ok := g.Segment(segID)
		if ok && seg.RefName == fullRef {
			return true
		}
	}
	return false
}
