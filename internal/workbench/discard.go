package workbench

import (
	"context"
	"fmt"

	"go.wbench.dev/core/internal/hunk"
)

// Discard removes the selected uncommitted hunks from the worktree,
// restoring just those lines to their content at HEAD while leaving
// every other uncommitted change to the same files untouched.
func (s *Service) Discard(ctx context.Context, changes []hunk.DiffSpec) error {
	if len(changes) == 0 {
		return fmt.Errorf("discard: no changes selected")
	}

	return s.withWrite(ctx, "DiscardChanges", nil, func(ctx context.Context) error {
		repo := s.wt.Repository()
		headHash, err := s.wt.Head(ctx)
		if err != nil {
			return fmt.Errorf("discard: resolve HEAD: %w", err)
		}
		headTree, err := repo.PeelToTree(ctx, headHash.String())
		if err != nil {
			return fmt.Errorf("discard: resolve HEAD tree: %w", err)
		}

		for _, d := range changes {
			headImage, err := readTreeBlob(ctx, repo, headTree, d.Path)
			if err != nil {
				return err
			}
			worktreeImage, err := readWorktreeFile(s.wt, d.Path)
			if err != nil {
				return err
			}

			remaining := headImage
			if !d.WholeFile() {
				existing := hunk.DiffLines(headImage, worktreeImage)
				subs := discardSubtractions(d.Hunks)

				var remainingHeaders []hunk.Header
				for _, h := range existing {
					remainingHeaders = append(remainingHeaders, hunk.SubtractHunks(h, subs)...)
				}

				remaining, err = hunk.ApplyHunks(headImage, worktreeImage, remainingHeaders)
				if err != nil {
					return fmt.Errorf("discard %s: %w", d.Path, err)
				}
			}

			if err := writeWorktreeFile(s.wt, d.Path, remaining); err != nil {
				return err
			}
		}

		return nil
	})
}

// discardSubtractions converts a selection's hunks into the new-side
// carve-outs hunk.SubtractHunks expects, one per selected hunk.
func discardSubtractions(selected []hunk.Header) []hunk.Subtraction {
	subs := make([]hunk.Subtraction, len(selected))
	for i, h := range selected {
		subs[i] = hunk.Subtraction{Side: hunk.NewSide, Range: h.NewRange()}
	}
	return subs
}
