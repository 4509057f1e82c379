package workbench

import (
	"context"
	"fmt"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/grapheditor"
	"go.wbench.dev/core/internal/wsgraph"
)

// Squash folds descendant into ancestor, an earlier commit in the same
// stack. Any commits that originally sat between them are kept, moved
// to sit directly above the squashed result instead of being skipped.
func (s *Service) Squash(ctx context.Context, ancestor, descendant git.Hash, message string) ([]grapheditor.RefEdit, error) {
	if ancestor == "" || descendant == "" {
		return nil, fmt.Errorf("squash: both commits are required")
	}

	return s.withEditor(ctx, "SquashCommit", func(ctx context.Context, e *grapheditor.Editor, g *wsgraph.Graph) error {
		ancestorSel, ok := e.SelectCommit(ancestor)
		if !ok {
			return fmt.Errorf("squash: commit %s not found", ancestor.Short())
		}
		descSel, ok := e.SelectCommit(descendant)
		if !ok {
			return fmt.Errorf("squash: commit %s not found", descendant.Short())
		}

		descStep, ok := e.Step(descSel)
		if !ok || len(descStep.Parents) != 1 {
			return fmt.Errorf("squash: %s has no single parent to fold into", descendant.Short())
		}

		// Walk from descendant's parent down to ancestor, collecting
		// whatever sits strictly between them, tip to base.
		var between []grapheditor.Selector
		cur := descStep.Parents[0]
		for cur != ancestorSel {
			step, ok := e.Step(cur)
			if !ok {
				return fmt.Errorf("squash: %s is not an ancestor of %s", ancestor.Short(), descendant.Short())
			}
			if len(step.Parents) != 1 {
				return fmt.Errorf("squash: %s is not a linear ancestor of %s", ancestor.Short(), descendant.Short())
			}
			between = append(between, cur)
			cur = step.Parents[0]
		}

		if len(between) > 0 {
			if child, ok := childSelector(e, g, descendant); ok {
				childStep, _ := e.Step(child)
				childStep.Parents = []grapheditor.Selector{between[0]}
				if err := e.Replace(child, childStep); err != nil {
					return err
				}
			}

			last := between[len(between)-1]
			lastStep, _ := e.Step(last)
			lastStep.Parents = []grapheditor.Selector{descSel}
			if err := e.Replace(last, lastStep); err != nil {
				return err
			}

			descStep, _ = e.Step(descSel)
			descStep.Parents = []grapheditor.Selector{ancestorSel}
			if err := e.Replace(descSel, descStep); err != nil {
				return err
			}
		}

		step, _ := e.Step(descSel)
		step.Kind = grapheditor.StepSquashIntoPreceding
		if message != "" {
			step.Message = message
		}
		return e.Replace(descSel, step)
	})
}
