package workbench

import (
	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/grapheditor"
	"go.wbench.dev/core/internal/wsgraph"
)

// childSelector finds the step whose sole producing parent is the step
// for parent, by scanning every commit the graph still knows about.
// [grapheditor.Editor] has no query for "who points at me", so callers
// that need to relink around a step (squash, reorder) go through g
// instead. When parent is itself a branch's tip, its only "child" is
// that branch's [grapheditor.StepReference] step, which owns no
// [wsgraph.GraphCommit] entry to scan — refChild covers that case.
func childSelector(e *grapheditor.Editor, g *wsgraph.Graph, parent git.Hash) (grapheditor.Selector, bool) {
	parentSel, ok := e.SelectCommit(parent)
	if !ok {
		return grapheditor.Selector{}, false
	}

	for _, seg := range g.Segments() {
		for _, gc := range seg.Commits {
			sel, ok := e.SelectCommit(gc.ID)
			if !ok || gc.ID == parent {
				continue
			}
			step, ok := e.Step(sel)
			if !ok {
				continue
			}
			for _, p := range step.Parents {
				if p == parentSel {
					return sel, true
				}
			}
		}
	}

	if refSel, ok := refChild(e, g, parent); ok {
		return refSel, true
	}
	return grapheditor.Selector{}, false
}

// refChild finds the branch-reference step pointing at parent, for the
// case where parent is a branch's own tip commit rather than another
// commit's parent.
func refChild(e *grapheditor.Editor, g *wsgraph.Graph, parent git.Hash) (grapheditor.Selector, bool) {
	for _, seg := range g.Segments() {
		if seg.RefName == "" || len(seg.Commits) == 0 {
			continue
		}
		if seg.Commits[0].ID != parent {
			continue
		}
		return e.SelectReference(seg.RefName)
	}
	return grapheditor.Selector{}, false
}
