package grapheditor

import (
	"context"
	"errors"
	"fmt"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/object"
	"go.wbench.dev/core/internal/wberrors"
)

// rebaseResult is the outcome of replaying one step's diff onto its
// (already rebased) parent, entirely in terms of tree objects. No commit
// object exists yet; Materialize turns a rebaseResult into a real commit.
type rebaseResult struct {
	// ResolvedTree is the tree later steps should treat as this step's
	// content when continuing the chain: the merge's best-effort result
	// even when the step is conflicted.
	ResolvedTree git.Hash

	// Conflicted reports whether replaying this step's diff produced
	// conflicts.
	Conflicted bool

	// Conflict holds the five-subtree layout to write as this step's
	// tree when materializing a conflicted commit. Only meaningful when
	// Conflicted is true.
	Conflict object.ConflictTree
}

// Rebase replays every step's diff against its (possibly rewritten)
// parent's resulting tree, entirely via in-memory tree merges: no ref is
// read or written, and no index or working tree is touched. Results are
// cached on the Editor and consumed by Materialize.
//
// Cherry-picking a commit here means three-way-merging the diff between
// its own original parent tree and its own tree onto its new parent's
// resolved tree (git merge-tree --write-tree), which is exactly what
// "replay this commit's changes onto a different base" means without
// ever checking anything out.
func (e *Editor) Rebase(ctx context.Context) error {
	e.rebased = make(map[Selector]rebaseResult, len(e.steps))

	for i := range e.steps {
		sel := Selector{id: i + 1}
		if _, err := e.resolve(ctx, sel, nil); err != nil {
			return err
		}
	}
	return nil
}

// resolve computes and memoizes sel's rebaseResult, recursing into its
// parents first. stack detects cycles introduced by a bad edit.
func (e *Editor) resolve(ctx context.Context, sel Selector, stack []Selector) (rebaseResult, error) {
	if sel.IsZero() {
		return rebaseResult{}, nil
	}
	if res, ok := e.rebased[sel]; ok {
		return res, nil
	}
	for _, s := range stack {
		if s == sel {
			return rebaseResult{}, &wberrors.GraphInvariantError{
				Invariant: "acyclic",
				Detail:    "step graph contains a cycle",
			}
		}
	}
	stack = append(stack, sel)

	step, ok := e.Step(sel)
	if !ok {
		return rebaseResult{}, fmt.Errorf("resolve: invalid selector")
	}

	var res rebaseResult
	var err error
	switch step.Kind {
	case StepNone:
		res, err = e.resolveNone(ctx, step, stack)
	case StepPick:
		res, err = e.resolvePick(ctx, sel, step, stack)
	case StepSquashIntoPreceding:
		// Rebased the same way a pick is: its diff replays onto its
		// parent's resolved tree. Materialize folds the result into
		// the parent's commit instead of creating a new one.
		res, err = e.resolvePick(ctx, sel, step, stack)
	case StepReference:
		if len(step.Parents) != 1 {
			return rebaseResult{}, &wberrors.GraphInvariantError{
				Invariant: "reference-arity",
				Detail:    fmt.Sprintf("reference %q must have exactly one parent", step.RefName),
			}
		}
		res, err = e.resolve(ctx, step.Parents[0], stack)
	case StepMerge:
		res, err = e.resolveMerge(ctx, sel, step, stack)
	default:
		return rebaseResult{}, fmt.Errorf("resolve: unknown step kind %v", step.Kind)
	}
	if err != nil {
		return rebaseResult{}, err
	}

	e.rebased[sel] = res
	return res, nil
}

// resolveNone passes a tombstoned step's single parent straight through.
func (e *Editor) resolveNone(ctx context.Context, step Step, stack []Selector) (rebaseResult, error) {
	if len(step.Parents) == 0 {
		return rebaseResult{}, nil
	}
	if len(step.Parents) != 1 {
		return rebaseResult{}, &wberrors.GraphInvariantError{
			Invariant: "none-arity",
			Detail:    "tombstoned step must have at most one parent",
		}
	}
	return e.resolve(ctx, step.Parents[0], stack)
}

func (e *Editor) resolvePick(ctx context.Context, sel Selector, step Step, stack []Selector) (rebaseResult, error) {
	var parent rebaseResult
	if len(step.Parents) > 1 {
		return rebaseResult{}, &wberrors.GraphInvariantError{
			Invariant: "pick-arity",
			Detail:    "pick step must have at most one parent",
		}
	}
	if len(step.Parents) == 1 {
		r, err := e.resolve(ctx, step.Parents[0], stack)
		if err != nil {
			return rebaseResult{}, err
		}
		parent = r
	}

	if step.OverrideTree != "" {
		return rebaseResult{ResolvedTree: step.OverrideTree}, nil
	}

	if step.CommitID == "" {
		// Blank commit: carries the parent's tree forward unchanged.
		return rebaseResult{ResolvedTree: parent.ResolvedTree}, nil
	}

	if parent.ResolvedTree == "" {
		// No parent to replay onto: this is (becoming) a root commit,
		// so its content is simply its own original tree.
		return rebaseResult{ResolvedTree: step.OrigTree}, nil
	}

	tree, err := e.repo.MergeTree(ctx, git.MergeTreeRequest{
		Branch1:   parent.ResolvedTree.String(),
		Branch2:   step.OrigTree.String(),
		MergeBase: nonEmpty(step.OrigParentTree, emptyTreeHash),
	})
	if err == nil {
		return rebaseResult{ResolvedTree: tree}, nil
	}

	var conflictErr *git.MergeTreeConflictError
	if !asConflictError(err, &conflictErr) {
		return rebaseResult{}, fmt.Errorf("replay %s: %w", step.CommitID.Short(), err)
	}

	if !step.Conflictable {
		var paths []string
		for p := range conflictErr.Filenames() {
			paths = append(paths, p)
		}
		return rebaseResult{}, &wberrors.ConflictError{
			CommitID: step.CommitID.String(),
			Paths:    paths,
		}
	}

	ct, err := buildConflictTree(conflictErr, parent.ResolvedTree, step.OrigTree, step.OrigParentTree, tree)
	if err != nil {
		return rebaseResult{}, err
	}

	return rebaseResult{
		ResolvedTree: tree,
		Conflicted:   true,
		Conflict:     ct,
	}, nil
}

func (e *Editor) resolveMerge(ctx context.Context, sel Selector, step Step, stack []Selector) (rebaseResult, error) {
	if len(step.Parents) < 2 {
		return rebaseResult{}, &wberrors.GraphInvariantError{
			Invariant: "merge-arity",
			Detail:    "merge step must have at least two parents",
		}
	}

	results := make([]rebaseResult, len(step.Parents))
	for i, p := range step.Parents {
		r, err := e.resolve(ctx, p, stack)
		if err != nil {
			return rebaseResult{}, err
		}
		results[i] = r
	}

	// Fold the parent trees together pairwise: each fold's merge base is
	// the real common ancestor of the two original commits being
	// combined at that step, not an arbitrary side, so a genuine
	// divergent edit on both sides still surfaces as a conflict.
	tree := results[0].ResolvedTree
	for i := 1; i < len(step.Parents); i++ {
		r := results[i]
		ours := tree
		base := e.mergeBaseFor(ctx, step.Parents[i-1], step.Parents[i])

		merged, err := e.repo.MergeTree(ctx, git.MergeTreeRequest{
			Branch1:   ours.String(),
			Branch2:   r.ResolvedTree.String(),
			MergeBase: base.String(),
		})
		var conflictErr *git.MergeTreeConflictError
		if err != nil && !asConflictError(err, &conflictErr) {
			return rebaseResult{}, fmt.Errorf("merge step: %w", err)
		}
		tree = merged

		if conflictErr != nil {
			if !step.Conflictable {
				var paths []string
				for p := range conflictErr.Filenames() {
					paths = append(paths, p)
				}
				return rebaseResult{}, &wberrors.ConflictError{
					CommitID: fmt.Sprintf("merge step %d", sel.id),
					Paths:    paths,
				}
			}
			ct, err := buildConflictTree(conflictErr, ours, r.ResolvedTree, base, merged)
			if err != nil {
				return rebaseResult{}, err
			}
			return rebaseResult{ResolvedTree: merged, Conflicted: true, Conflict: ct}, nil
		}
	}

	return rebaseResult{ResolvedTree: tree}, nil
}

// mergeBaseFor returns the tree to use as the merge base when folding b's
// resolved tree onto a's: the real merge-base commit of a's and b's
// original commits when both can be traced to one, or the empty tree as
// a conservative fallback (treating the fold as if neither side shared
// any history, so every differing path is surfaced rather than silently
// picked) when one side has no single original commit to trace to (e.g.
// it is itself a nested merge or a blank commit).
func (e *Editor) mergeBaseFor(ctx context.Context, a, b Selector) git.Hash {
	ac, aok := e.originalCommitFor(a)
	bc, bok := e.originalCommitFor(b)
	if !aok || !bok {
		return emptyTreeHash
	}
	base, err := e.repo.MergeBase(ctx, ac.String(), bc.String())
	if err != nil {
		return emptyTreeHash
	}
	return base
}

// originalCommitFor traces sel through StepReference and StepNone
// pass-throughs to the real commit it ultimately replays, if any.
func (e *Editor) originalCommitFor(sel Selector) (git.Hash, bool) {
	for {
		step, ok := e.Step(sel)
		if !ok {
			return "", false
		}
		switch step.Kind {
		case StepReference, StepNone:
			if len(step.Parents) != 1 {
				return "", false
			}
			sel = step.Parents[0]
			continue
		case StepPick, StepSquashIntoPreceding:
			if step.CommitID == "" {
				return "", false
			}
			return step.CommitID, true
		default:
			return "", false
		}
	}
}

// Conflicted reports whether sel's most recent Rebase replay produced a
// conflict, and whether a result exists for it at all (false, false if
// Rebase hasn't run since sel was last changed).
func (e *Editor) Conflicted(sel Selector) (conflicted, ok bool) {
	res, ok := e.rebased[sel]
	if !ok {
		return false, false
	}
	return res.Conflicted, true
}

// emptyTreeHash is the well-known hash of the empty tree, used as a merge
// base when a commit has no real parent to diff against.
const emptyTreeHash = git.Hash("4b825dc642cb6eb9a060e54bf8d69288fbee4904")

func nonEmpty(h git.Hash, fallback git.Hash) string {
	if h == "" {
		return fallback.String()
	}
	return h.String()
}

// asConflictError reports whether err wraps or joins a
// *git.MergeTreeConflictError, populating target if so.
func asConflictError(err error, target **git.MergeTreeConflictError) bool {
	for _, e := range flattenJoined(err) {
		var ce *git.MergeTreeConflictError
		if errors.As(e, &ce) {
			*target = ce
			return true
		}
	}
	return false
}

// flattenJoined unwraps an errors.Join tree (or a plain error) into its
// leaves.
func flattenJoined(err error) []error {
	type joined interface{ Unwrap() []error }
	if j, ok := err.(joined); ok {
		var out []error
		for _, e := range j.Unwrap() {
			out = append(out, flattenJoined(e)...)
		}
		return out
	}
	if err == nil {
		return nil
	}
	return []error{err}
}

// buildConflictTree assembles the five-subtree conflict layout from a
// merge-tree conflict result.
func buildConflictTree(conflictErr *git.MergeTreeConflictError, ours, theirs, base git.Hash, autoResolution git.Hash) (object.ConflictTree, error) {
	var files object.ConflictFileSet
	seenAncestor := make(map[string]bool)
	seenOurs := make(map[string]bool)
	seenTheirs := make(map[string]bool)
	for _, f := range conflictErr.Files {
		switch f.Stage {
		case git.ConflictStageBase:
			if !seenAncestor[f.Path] {
				seenAncestor[f.Path] = true
				files.AncestorEntries = append(files.AncestorEntries, f.Path)
			}
		case git.ConflictStageOurs:
			if !seenOurs[f.Path] {
				seenOurs[f.Path] = true
				files.OurEntries = append(files.OurEntries, f.Path)
			}
		case git.ConflictStageTheirs:
			if !seenTheirs[f.Path] {
				seenTheirs[f.Path] = true
				files.TheirEntries = append(files.TheirEntries, f.Path)
			}
		}
	}

	return object.ConflictTree{
		Ours:           ours,
		Theirs:         theirs,
		Base:           base,
		AutoResolution: autoResolution,
		Files:          files,
	}, nil
}
