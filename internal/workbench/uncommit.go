package workbench

import (
	"context"
	"fmt"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/grapheditor"
	"go.wbench.dev/core/internal/hunk"
	"go.wbench.dev/core/internal/object"
	"go.wbench.dev/core/internal/wsgraph"
)

// UncommitRequest describes which changes to strip back out of a
// commit into the worktree.
type UncommitRequest struct {
	// Commit is the commit to remove changes from.
	Commit git.Hash

	// Changes selects, file by file, which of Commit's hunks to
	// remove. A DiffSpec with no hunks removes that file's entire
	// change.
	Changes []hunk.DiffSpec
}

// Uncommit removes req.Changes from req.Commit's resulting tree and
// restores them to the worktree as uncommitted changes.
//
// Assigning the restored hunks to a particular stack, the way the
// interactive workbench surfaces this operation, isn't modeled here:
// branch metadata has nowhere to record a hunk-to-stack assignment, so
// the restored content always lands as plain uncommitted change in the
// worktree instead.
func (s *Service) Uncommit(ctx context.Context, req UncommitRequest) ([]grapheditor.RefEdit, error) {
	if req.Commit == "" {
		return nil, fmt.Errorf("uncommit: no commit specified")
	}
	if len(req.Changes) == 0 {
		return nil, fmt.Errorf("uncommit: no changes selected")
	}

	repo := s.wt.Repository()
	commit, err := object.ReadCommit(ctx, repo, req.Commit)
	if err != nil {
		return nil, fmt.Errorf("uncommit: read commit: %w", err)
	}
	var parentTree git.Hash
	if len(commit.Parents) > 0 {
		parent, err := object.ReadCommit(ctx, repo, commit.Parents[0])
		if err != nil {
			return nil, fmt.Errorf("uncommit: read parent commit: %w", err)
		}
		parentTree = parent.Tree
	}

	// Computed from the commit's own original trees, independent of
	// whatever the editor does to it below: restored after
	// withEditor's worktree reset lands, since that reset wipes the
	// very content this operation means to surface as uncommitted.
	restore := make(map[string][]byte, len(req.Changes))
	for _, d := range req.Changes {
		oldPath := d.PreviousPath
		if oldPath == "" {
			oldPath = d.Path
		}

		before, err := readTreeBlob(ctx, repo, parentTree, oldPath)
		if err != nil {
			return nil, err
		}
		after, err := readTreeBlob(ctx, repo, commit.Tree, d.Path)
		if err != nil {
			return nil, err
		}

		content := after
		if !d.WholeFile() {
			content, err = hunk.ApplyHunks(before, after, d.Hunks)
			if err != nil {
				return nil, fmt.Errorf("uncommit %s: %w", d.Path, err)
			}
		}
		restore[d.Path] = content
	}

	edits, err := s.withEditor(ctx, "UncommitChanges", func(ctx context.Context, e *grapheditor.Editor, _ *wsgraph.Graph) error {
		sel, ok := e.SelectCommit(req.Commit)
		if !ok {
			return fmt.Errorf("uncommit: commit %s not found", req.Commit.Short())
		}
		return e.Uncommit(ctx, sel, req.Changes)
	})
	if err != nil {
		return nil, err
	}

	for path, content := range restore {
		if err := writeWorktreeFile(s.wt, path, content); err != nil {
			return edits, err
		}
	}

	return edits, nil
}
