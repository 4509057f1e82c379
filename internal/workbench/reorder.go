package workbench

import (
	"context"
	"fmt"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/grapheditor"
	"go.wbench.dev/core/internal/wsgraph"
)

// ReorderRequest describes a desired new commit order within one
// contiguous run of a stack.
type ReorderRequest struct {
	// Order lists the run's commits, tip first, in the order they
	// should end up in. It must be a permutation of the commits
	// currently occupying that run; which end of the run each hash
	// starts at doesn't matter, only the commits' membership does.
	Order []git.Hash
}

// Reorder repositions the commits named in req.Order to match, keeping
// whatever sits above and below the run attached to its new ends.
func (s *Service) Reorder(ctx context.Context, req ReorderRequest) ([]grapheditor.RefEdit, error) {
	if len(req.Order) < 2 {
		return nil, fmt.Errorf("reorder: need at least two commits")
	}

	return s.withEditor(ctx, "ReorderCommits", func(ctx context.Context, e *grapheditor.Editor, g *wsgraph.Graph) error {
		sels := make([]grapheditor.Selector, len(req.Order))
		inRun := make(map[grapheditor.Selector]bool, len(req.Order))
		for i, h := range req.Order {
			sel, ok := e.SelectCommit(h)
			if !ok {
				return fmt.Errorf("reorder: commit %s not found", h.Short())
			}
			sels[i] = sel
			inRun[sel] = true
		}

		// Find the run's current top and bottom by structure, not by
		// req.Order's own order: the bottom is whichever member's
		// parent lies outside the run, the top is whichever member's
		// child (if any) lies outside it.
		topIdx, bottomIdx := -1, -1
		for i, sel := range sels {
			step, ok := e.Step(sel)
			if !ok || len(step.Parents) != 1 {
				return fmt.Errorf("reorder: %s has no single parent", req.Order[i].Short())
			}
			if !inRun[step.Parents[0]] {
				bottomIdx = i
			}
			if child, hasChild := childSelector(e, g, req.Order[i]); !hasChild || !inRun[child] {
				topIdx = i
			}
		}
		if topIdx < 0 || bottomIdx < 0 {
			return fmt.Errorf("reorder: selected commits are not a contiguous run")
		}

		bottomStep, _ := e.Step(sels[bottomIdx])
		base := bottomStep.Parents[0]

		if child, ok := childSelector(e, g, req.Order[topIdx]); ok {
			childStep, _ := e.Step(child)
			childStep.Parents = []grapheditor.Selector{sels[0]}
			if err := e.Replace(child, childStep); err != nil {
				return err
			}
		}

		for i, sel := range sels {
			step, _ := e.Step(sel)
			if i+1 < len(sels) {
				step.Parents = []grapheditor.Selector{sels[i+1]}
			} else {
				step.Parents = []grapheditor.Selector{base}
			}
			if err := e.Replace(sel, step); err != nil {
				return err
			}
		}

		return nil
	})
}
