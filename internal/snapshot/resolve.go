package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/grapheditor"
)

// Resolve computes the edits needed to restore the workspace state
// captured by snap, without applying them. It assumes HEAD has not
// moved further since snap was taken; restoring over a HEAD that has
// since diverged would require cherry-picking the snapshot's worktree
// tree the way [grapheditor.Editor.Rebase] replays a pick, which this
// package does not attempt.
func (s *Store) Resolve(ctx context.Context, snap Snapshot) (Resolution, error) {
	repo := s.wt.Repository()

	top, err := s.readTopEntries(ctx, repo, snap.Tree)
	if err != nil {
		return Resolution{}, err
	}

	var res Resolution

	if headTree, ok := top[treeHead]; ok {
		head, err := s.readHead(ctx, repo, headTree)
		if err != nil {
			return Resolution{}, err
		}
		res.Head = &head
	}

	if wsTree, ok := top[treeWorkspace]; ok {
		edits, err := s.readWorkspaceRefs(ctx, repo, wsTree)
		if err != nil {
			return Resolution{}, err
		}
		res.RefEdits = edits
	}

	if metaTree, ok := top[treeMetadata]; ok {
		oldCommit, err := repo.PeelToCommit(ctx, s.metaRef)
		if err != nil && !errors.Is(err, git.ErrNotExist) {
			return Resolution{}, fmt.Errorf("resolve %s: %w", s.metaRef, err)
		}
		res.Metadata = &MetadataEdit{Ref: s.metaRef, Tree: metaTree, OldCommit: oldCommit}
	}

	return res, nil
}

// Apply restores the worktree and index to snap's captured state
// (leaving HEAD at the commit res.Head names), then
// applies res's reference and metadata edits. Conflict-marked files, if
// any were recorded, arrive back exactly as they were via the worktree
// tree itself; no separate step is needed to re-stage them.
func (s *Store) Apply(ctx context.Context, snap Snapshot, res Resolution) error {
	repo := s.wt.Repository()

	top, err := s.readTopEntries(ctx, repo, snap.Tree)
	if err != nil {
		return err
	}

	if worktreeTree, ok := top[treeWorktree]; ok {
		if err := s.restoreWorktree(ctx, worktreeTree, res.Head); err != nil {
			return err
		}
	}

	for _, edit := range res.RefEdits {
		if err := repo.SetRef(ctx, git.SetRefRequest{Ref: edit.Ref, Hash: edit.NewHash, OldHash: edit.OldHash}); err != nil {
			return fmt.Errorf("restore %s: %w", edit.Ref, err)
		}
	}

	if res.Metadata != nil {
		if err := s.applyMetadata(ctx, repo, *res.Metadata); err != nil {
			return err
		}
	}

	if res.Head != nil && res.Head.Branch != "" {
		if err := s.wt.Checkout(ctx, res.Head.Branch); err != nil {
			return fmt.Errorf("checkout %s: %w", res.Head.Branch, err)
		}
	}

	return nil
}

// restoreWorktree commits worktreeTree on top of head's commit (so the
// commit's own identity is meaningful for 'git reset --hard' to target)
// and hard-resets onto it, restoring both the index and the working
// directory in one step. It then soft-resets back to head's commit so
// that HEAD, and the branch it is on, do not stay on the synthetic commit.
func (s *Store) restoreWorktree(ctx context.Context, worktreeTree git.Hash, head *HeadEdit) error {
	repo := s.wt.Repository()

	var parents []git.Hash
	if head != nil && head.Hash != "" {
		parents = []git.Hash{head.Hash}
	}

	synthetic, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      worktreeTree,
		Message:   "workbench: snapshot restore",
		Parents:   parents,
		Author:    &s.sig,
		Committer: &s.sig,
	})
	if err != nil {
		return fmt.Errorf("commit restored worktree: %w", err)
	}

	if err := s.wt.Reset(ctx, synthetic.String(), git.ResetOptions{Mode: git.ResetHard, Quiet: true}); err != nil {
		return fmt.Errorf("reset to restored worktree: %w", err)
	}
	if len(parents) > 0 {
		if err := s.wt.Reset(ctx, parents[0].String(), git.ResetOptions{Mode: git.ResetSoft, Quiet: true}); err != nil {
			return fmt.Errorf("reset to snapshot HEAD: %w", err)
		}
	}
	return nil
}

func (s *Store) applyMetadata(ctx context.Context, repo *git.Repository, edit MetadataEdit) error {
	var parents []git.Hash
	if edit.OldCommit != "" {
		parents = []git.Hash{edit.OldCommit}
	}

	newCommit, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      edit.Tree,
		Message:   "workbench: restore metadata from snapshot",
		Parents:   parents,
		Author:    &s.sig,
		Committer: &s.sig,
	})
	if err != nil {
		return fmt.Errorf("commit restored metadata: %w", err)
	}

	return repo.SetRef(ctx, git.SetRefRequest{Ref: edit.Ref, Hash: newCommit, OldHash: edit.OldCommit})
}

// readTopEntries lists the snapshot's root tree, one level deep.
func (s *Store) readTopEntries(ctx context.Context, repo *git.Repository, tree git.Hash) (map[string]git.Hash, error) {
	entries, err := repo.ListTree(ctx, tree, git.ListTreeOptions{})
	if err != nil {
		return nil, fmt.Errorf("list snapshot tree: %w", err)
	}

	top := make(map[string]git.Hash)
	for ent, err := range entries {
		if err != nil {
			return nil, fmt.Errorf("list snapshot tree: %w", err)
		}
		top[ent.Name] = ent.Hash
	}
	return top, nil
}

func (s *Store) readHead(ctx context.Context, repo *git.Repository, headTree git.Hash) (HeadEdit, error) {
	hash, err := repo.HashAt(ctx, headTree.String(), headBlobName)
	if err != nil {
		return HeadEdit{}, fmt.Errorf("resolve %s entry: %w", headBlobName, err)
	}

	var buf bytes.Buffer
	if err := repo.ReadObject(ctx, git.BlobType, hash, &buf); err != nil {
		return HeadEdit{}, fmt.Errorf("read %s blob: %w", headBlobName, err)
	}
	content := buf.String()

	if branch, ok := strings.CutPrefix(content, "ref: refs/heads/"); ok {
		commit, err := repo.PeelToCommit(ctx, "refs/heads/"+branch)
		if err != nil {
			return HeadEdit{}, fmt.Errorf("resolve %s: %w", branch, err)
		}
		return HeadEdit{Branch: branch, Hash: commit}, nil
	}

	return HeadEdit{Hash: git.Hash(content)}, nil
}

func (s *Store) readWorkspaceRefs(ctx context.Context, repo *git.Repository, wsTree git.Hash) ([]grapheditor.RefEdit, error) {
	entries, err := repo.ListTree(ctx, wsTree, git.ListTreeOptions{Recurse: true})
	if err != nil {
		return nil, fmt.Errorf("list workspace references: %w", err)
	}

	var edits []grapheditor.RefEdit
	for ent, err := range entries {
		if err != nil {
			return nil, fmt.Errorf("list workspace references: %w", err)
		}
		if ent.Type != git.BlobType {
			continue
		}

		var buf bytes.Buffer
		if err := repo.ReadObject(ctx, git.BlobType, ent.Hash, &buf); err != nil {
			return nil, fmt.Errorf("read ref blob for %s: %w", ent.Name, err)
		}
		newHash := git.Hash(buf.String())

		refName := ent.Name
		oldHash, err := repo.PeelToCommit(ctx, refName)
		if err != nil && !errors.Is(err, git.ErrNotExist) {
			return nil, fmt.Errorf("resolve %s: %w", refName, err)
		}

		edits = append(edits, grapheditor.RefEdit{Ref: refName, NewHash: newHash, OldHash: oldHash})
	}
	return edits, nil
}
