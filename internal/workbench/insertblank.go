package workbench

import (
	"context"
	"fmt"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/grapheditor"
	"go.wbench.dev/core/internal/wsgraph"
)

// InsertBlankRequest describes where to insert a commit carrying no
// diff of its own.
type InsertBlankRequest struct {
	// RelativeTo is the commit the blank is inserted next to.
	RelativeTo git.Hash

	// Side chooses whether the blank becomes RelativeTo's parent
	// (Before) or its child (After).
	Side grapheditor.Side

	// Message is the blank commit's message. Empty defaults to "blank
	// commit".
	Message string
}

// InsertBlank inserts a commit carrying no diff of its own immediately
// before or after an existing commit, and reports the resulting
// commit's hash.
func (s *Service) InsertBlank(ctx context.Context, req InsertBlankRequest) (git.Hash, []grapheditor.RefEdit, error) {
	var editor *grapheditor.Editor
	var inserted grapheditor.Selector

	edits, err := s.withEditor(ctx, "InsertBlankCommit", func(ctx context.Context, e *grapheditor.Editor, _ *wsgraph.Graph) error {
		editor = e

		relSel, ok := e.SelectCommit(req.RelativeTo)
		if !ok {
			return fmt.Errorf("insert blank: commit %s not found", req.RelativeTo.Short())
		}

		sel, err := e.InsertBlank(relSel, req.Side)
		if err != nil {
			return fmt.Errorf("insert blank: %w", err)
		}
		inserted = sel

		if req.Message == "" {
			return nil
		}
		step, _ := e.Step(sel)
		step.Message = req.Message
		return e.Replace(sel, step)
	})
	if err != nil {
		return "", nil, err
	}

	hash, _ := editor.ResolvedCommit(inserted)
	return hash, edits, nil
}
