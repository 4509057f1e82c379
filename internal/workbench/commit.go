package workbench

import (
	"context"
	"fmt"

	"go.wbench.dev/core/internal/grapheditor"
	"go.wbench.dev/core/internal/hunk"
	"go.wbench.dev/core/internal/wsgraph"
)

// CommitRequest describes a new commit to create on top of a branch's
// current tip from a selection of uncommitted changes.
type CommitRequest struct {
	// Branch is the full ref name (e.g. "refs/heads/feature") whose
	// tip the new commit is appended to.
	Branch string

	// Changes selects, file by file, which uncommitted hunks the new
	// commit should carry. A DiffSpec with no hunks takes the file's
	// entire uncommitted change.
	Changes []hunk.DiffSpec

	// Message is the new commit's message.
	Message string
}

// Commit builds a new tree by layering req.Changes onto req.Branch's
// current tip tree and appends it as that tip's sole child: the
// branch's reference (and anything already stacked above it) rebases
// onto the result.
func (s *Service) Commit(ctx context.Context, req CommitRequest) ([]grapheditor.RefEdit, error) {
	if req.Branch == "" {
		return nil, fmt.Errorf("commit: no branch specified")
	}
	if len(req.Changes) == 0 {
		return nil, fmt.Errorf("commit: no changes selected")
	}

	// partial records, for every file whose selection didn't take the
	// whole uncommitted change, the images needed to restore what was
	// left behind once the new commit has replaced HEAD.
	type partial struct {
		head, worktree []byte
		hunks          []hunk.Header
	}
	leftover := make(map[string]partial)

	edits, err := s.withEditor(ctx, "CreateCommit", func(ctx context.Context, e *grapheditor.Editor, _ *wsgraph.Graph) error {
		refSel, ok := e.SelectReference(req.Branch)
		if !ok {
			return fmt.Errorf("commit: branch %q not found in workspace", req.Branch)
		}
		refStep, ok := e.Step(refSel)
		if !ok || len(refStep.Parents) != 1 {
			return fmt.Errorf("commit: branch %q has no tip commit", req.Branch)
		}
		headSel := refStep.Parents[0]

		headStep, ok := e.Step(headSel)
		if !ok {
			return fmt.Errorf("commit: branch %q has no tip commit", req.Branch)
		}
		tree := headStep.OrigTree
		if headStep.OverrideTree != "" {
			tree = headStep.OverrideTree
		}

		repo := s.wt.Repository()
		for _, d := range req.Changes {
			before, err := readTreeBlob(ctx, repo, tree, d.Path)
			if err != nil {
				return err
			}
			after, err := readWorktreeFile(s.wt, d.Path)
			if err != nil {
				return err
			}

			content := after
			if !d.WholeFile() {
				content, err = hunk.ApplyHunks(before, after, d.Hunks)
				if err != nil {
					return fmt.Errorf("commit %s: %w", d.Path, err)
				}
				leftover[d.Path] = partial{head: before, worktree: after, hunks: d.Hunks}
			}

			tree, err = writeTreeBlob(ctx, repo, tree, d.Path, content)
			if err != nil {
				return err
			}
		}

		newSel, err := e.InsertBlank(headSel, grapheditor.After)
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		step, _ := e.Step(newSel)
		step.OverrideTree = tree
		step.Message = req.Message
		return e.Replace(newSel, step)
	})
	if err != nil {
		return nil, err
	}

	for path, p := range leftover {
		if err := s.restoreUnselected(path, p.head, p.worktree, p.hunks); err != nil {
			return edits, err
		}
	}

	return edits, nil
}
