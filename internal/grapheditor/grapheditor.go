// Package grapheditor lifts a read-only [wsgraph.Graph] into a mutable DAG
// of steps: every reachable commit becomes a pick, every branch tip a
// reference, so that higher-level operations (pick, squash, blank
// insertion, reorder, move-changes, uncommit) can be expressed as local
// edits and then executed as a batch of cherry-picks with stable
// post-rewrite identity.
package grapheditor

import (
	"context"
	"fmt"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/object"
	"go.wbench.dev/core/internal/wsgraph"
)

// StepKind classifies a [Step] the same way [wsgraph.SegmentKind]
// classifies a segment: one Kind field, with only the fields relevant to
// that Kind populated.
type StepKind int

const (
	// StepNone is a tombstoned step: it produces no object, and any
	// step whose parent selector resolves to it instead resolves
	// through to its own (single) parent.
	StepNone StepKind = iota
	// StepPick replays an existing commit's diff onto its rebased
	// parent, or — when CommitID is empty — carries the parent's tree
	// forward unchanged (a blank commit).
	StepPick
	// StepReference marks that a named ref should be updated to point
	// at its parent step's resulting commit.
	StepReference
	// StepSquashIntoPreceding folds this step's diff and message into
	// its parent step's resulting commit instead of producing a commit
	// of its own.
	StepSquashIntoPreceding
	// StepMerge produces a commit whose parents are all of its step
	// parents, combined by pairwise tree merges, carrying no diff of
	// its own. Used for the synthetic workspace commit and for any
	// preexisting octopus merge reproduced from the graph.
	StepMerge
)

func (k StepKind) String() string {
	switch k {
	case StepNone:
		return "None"
	case StepPick:
		return "Pick"
	case StepReference:
		return "Reference"
	case StepSquashIntoPreceding:
		return "SquashIntoPreceding"
	case StepMerge:
		return "Merge"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// Selector addresses a [Step] in an [Editor]. It stays valid, and keeps
// referring to the same logical step, through any number of rebase or
// materialize rounds; only the step's content, not its identity, changes
// underneath it. The zero Selector denotes "no step" (a root parent).
type Selector struct{ id int }

// IsZero reports whether sel refers to no step.
func (sel Selector) IsZero() bool { return sel.id == 0 }

// Step is one node of the editor's step DAG.
type Step struct {
	Kind StepKind

	// CommitID is the source commit this step replays. Set for
	// StepPick (when non-blank) and StepSquashIntoPreceding; empty
	// otherwise.
	CommitID git.Hash

	// OrigParentTree is the tree of CommitID's original first parent,
	// used as the three-way merge base when replaying CommitID's diff
	// onto this step's rebased parent tree. Populated automatically
	// for steps constructed from an existing commit.
	OrigParentTree git.Hash

	// OrigTree is CommitID's own original tree. Populated automatically
	// for steps constructed from an existing commit; used both as the
	// "theirs" side of the three-way replay and as the result when the
	// step has no parent to replay onto.
	OrigTree git.Hash

	// OverrideTree, when non-empty, fixes this step's resulting tree
	// directly, bypassing cherry-pick replay entirely. Edit operations
	// that compute a tree ahead of time (uncommit, move-changes) set
	// this instead of relying on replay.
	OverrideTree git.Hash

	// Message overrides the resulting commit's message. Empty keeps
	// CommitID's original message, or — if CommitID is also empty —
	// defaults to "blank commit".
	Message string

	// ChangeID is the resulting commit's change-id. Steps built from an
	// existing commit start with that commit's change-id; a zero
	// ChangeID gets a freshly generated one when the step is
	// materialized.
	ChangeID object.ChangeID

	// Conflictable reports whether this step may legally produce a
	// conflict-tree commit when its replay conflicts. The
	// workspace-pick step must always be false.
	Conflictable bool

	// Workspace marks the single permitted workspace-pick step.
	Workspace bool

	// RefName is the reference this step updates, set only for
	// StepReference.
	RefName string

	// Parents lists this step's parent selectors in edge order.
	// StepPick, StepSquashIntoPreceding and StepReference carry exactly
	// one (possibly zero) parent; StepMerge carries two or more.
	Parents []Selector
}

// Editor holds a mutable step DAG over a repository's objects. Nothing is
// written to the repository until [Editor.Materialize] or
// [Editor.MaterializeWithoutCheckout] runs.
type Editor struct {
	repo *git.Repository

	steps []Step // indexed by Selector.id - 1

	byCommit map[git.Hash]Selector
	byRef    map[string]Selector

	workspace Selector // zero if no workspace-pick step was found

	rebased map[Selector]rebaseResult

	// lastCommits records, for every producing step, the commit hash
	// written by the most recent successful materialize call. Consulted
	// by ResolvedCommit so callers can recover the commit hash of a step
	// that never received its own reference.
	lastCommits map[Selector]git.Hash
}

// ResolvedCommit returns the commit hash sel was last materialized to,
// if Materialize or MaterializeWithoutCheckout has run since sel was
// last replaced.
func (e *Editor) ResolvedCommit(sel Selector) (git.Hash, bool) {
	h, ok := e.lastCommits[sel]
	return h, ok
}

// FromGraph builds an [Editor] reproducing every commit of g as a
// [StepPick] and every outgoing branch reference as a [StepReference].
// repo is used only to read commit objects; nothing is written.
//
// Graph.to_editor(repo) in the original design is realised here as a
// free function rather than a method on [wsgraph.Graph], since a method
// returning *Editor would require wsgraph to import grapheditor while
// grapheditor already imports wsgraph for its input type.
func FromGraph(ctx context.Context, repo *git.Repository, g *wsgraph.Graph) (*Editor, error) {
	e := &Editor{
		repo:     repo,
		byCommit: make(map[git.Hash]Selector),
		byRef:    make(map[string]Selector),
	}

	// segSel[segID][idx] is the pick selector for Segments()[segID].Commits[idx].
	segSel := make(map[int][]Selector)

	for _, seg := range g.Segments() {
		sels := make([]Selector, len(seg.Commits))
		for i, gc := range seg.Commits {
			sel, err := e.addPickFromCommit(ctx, gc.ID)
			if err != nil {
				return nil, fmt.Errorf("add pick for %s: %w", gc.ID.Short(), err)
			}
			sels[i] = sel
		}
		segSel[seg.ID] = sels
	}

	// Link intra-segment parents (tip to base within one chain).
	for _, seg := range g.Segments() {
		sels := segSel[seg.ID]
		for i := 0; i+1 < len(sels); i++ {
			e.addParent(sels[i], sels[i+1])
		}
	}

	// Link cross-segment parents from the graph's edges.
	for _, edge := range g.Edges() {
		srcSels, ok := segSel[edge.SrcSegment]
		if !ok || edge.SrcCommitIndex >= len(srcSels) {
			continue
		}
		dstSels, ok := segSel[edge.DstSegment]
		if !ok || edge.DstCommitIndex >= len(dstSels) {
			continue
		}
		e.addParent(srcSels[edge.SrcCommitIndex], dstSels[edge.DstCommitIndex])
	}

	// A step that ended up with more than one parent is a merge point:
	// a preexisting octopus merge, or the synthetic workspace commit.
	for i := range e.steps {
		if len(e.steps[i].Parents) > 1 {
			e.steps[i].Kind = StepMerge
		}
	}

	// Reference steps, one per named branch segment, parented on that
	// segment's tip pick. tipRef records, for every tip pick that gained
	// a reference, the reference's own selector: the workspace merge
	// below needs to parent on references rather than bare picks.
	tipRef := make(map[Selector]Selector)
	for _, seg := range g.Segments() {
		if seg.RefName == "" {
			continue
		}
		sels := segSel[seg.ID]
		if len(sels) == 0 {
			continue
		}
		refSel := e.addStep(Step{Kind: StepReference, RefName: seg.RefName, Parents: []Selector{sels[0]}})
		e.byRef[seg.RefName] = refSel
		tipRef[sels[0]] = refSel
	}

	if hs := g.HeadSegment(); hs >= 0 {
		if sels := segSel[hs]; len(sels) > 0 {
			headSel := sels[0]
			if e.steps[headSel.id-1].Kind == StepMerge {
				e.workspace = headSel
				e.steps[headSel.id-1].Workspace = true
				e.steps[headSel.id-1].Conflictable = false

				// Every contributing stack feeds the workspace through
				// its branch reference, never directly through the
				// stack's tip commit.
				parents := e.steps[headSel.id-1].Parents
				for i, p := range parents {
					if refSel, ok := tipRef[p]; ok {
						parents[i] = refSel
					}
				}
			}
		}
	}

	return e, nil
}

// addPickFromCommit reads hash's commit object and registers a StepPick
// replaying it, recording its original parent tree as the replay base.
func (e *Editor) addPickFromCommit(ctx context.Context, hash git.Hash) (Selector, error) {
	if sel, ok := e.byCommit[hash]; ok {
		return sel, nil
	}

	c, err := object.ReadCommit(ctx, e.repo, hash)
	if err != nil {
		return Selector{}, fmt.Errorf("read commit %s: %w", hash.Short(), err)
	}

	var origParentTree git.Hash
	if len(c.Parents) > 0 {
		parent, err := object.ReadCommit(ctx, e.repo, c.Parents[0])
		if err != nil {
			return Selector{}, fmt.Errorf("read parent commit %s: %w", c.Parents[0].Short(), err)
		}
		origParentTree = parent.Tree
	}

	sel := e.addStep(Step{
		Kind:           StepPick,
		CommitID:       hash,
		OrigParentTree: origParentTree,
		OrigTree:       c.Tree,
		ChangeID:       c.Headers.ChangeID,
		Conflictable:   true,
	})
	e.byCommit[hash] = sel
	return sel, nil
}

// addStep appends step and returns its freshly allocated selector.
func (e *Editor) addStep(step Step) Selector {
	e.steps = append(e.steps, step)
	return Selector{id: len(e.steps)}
}

// addParent appends a parent edge from child to parent, in edge order,
// unless the edge already exists (a commit reachable by more than one
// path within the same walk should not be double-parented).
func (e *Editor) addParent(child, parent Selector) {
	step := &e.steps[child.id-1]
	for _, p := range step.Parents {
		if p == parent {
			return
		}
	}
	step.Parents = append(step.Parents, parent)
}

// SelectCommit returns the selector of the step currently picking hash,
// if any.
func (e *Editor) SelectCommit(hash git.Hash) (Selector, bool) {
	sel, ok := e.byCommit[hash]
	return sel, ok
}

// SelectReference returns the selector of the step producing fullName,
// if any.
func (e *Editor) SelectReference(fullName string) (Selector, bool) {
	sel, ok := e.byRef[fullName]
	return sel, ok
}

// Workspace returns the selector of the synthetic workspace-pick step
// detected at construction, if HEAD resolved to one.
func (e *Editor) Workspace() (Selector, bool) {
	return e.workspace, !e.workspace.IsZero()
}

// Step returns the step currently stored under sel.
func (e *Editor) Step(sel Selector) (Step, bool) {
	if sel.IsZero() || sel.id > len(e.steps) {
		return Step{}, false
	}
	return e.steps[sel.id-1], true
}

// Replace swaps the step under sel, preserving its position (and hence
// its parents' and children's edges) in the DAG.
func (e *Editor) Replace(sel Selector, step Step) error {
	if sel.IsZero() || sel.id > len(e.steps) {
		return fmt.Errorf("replace: invalid selector")
	}
	e.steps[sel.id-1] = step
	e.rebased = nil // any cached rebase is now stale
	delete(e.lastCommits, sel)
	return nil
}
