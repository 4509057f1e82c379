package workbench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/hunk"
)

// readTreeBlob reads the blob at path in tree, returning nil content
// (not an error) when the path doesn't exist in that tree. An empty
// tree hash likewise reads as "file doesn't exist".
func readTreeBlob(ctx context.Context, repo *git.Repository, tree git.Hash, path string) ([]byte, error) {
	if tree == "" {
		return nil, nil
	}

	hash, err := repo.HashAt(ctx, tree.String(), path)
	if err != nil {
		if errors.Is(err, git.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve %s:%s: %w", tree.Short(), path, err)
	}

	var buf bytes.Buffer
	if err := repo.ReadObject(ctx, git.BlobType, hash, &buf); err != nil {
		return nil, fmt.Errorf("read %s:%s: %w", tree.Short(), path, err)
	}
	return buf.Bytes(), nil
}

// writeTreeBlob writes content as path's blob in tree, returning the
// resulting tree hash. Empty content removes the path instead.
func writeTreeBlob(ctx context.Context, repo *git.Repository, tree git.Hash, path string, content []byte) (git.Hash, error) {
	if len(content) == 0 {
		return repo.UpdateTree(ctx, git.UpdateTreeRequest{
			Tree:    tree,
			Deletes: singleString(path),
		})
	}

	hash, err := repo.WriteObject(ctx, git.BlobType, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("write blob for %s: %w", path, err)
	}

	return repo.UpdateTree(ctx, git.UpdateTreeRequest{
		Tree: tree,
		Writes: singleBlob(git.BlobInfo{
			Mode: git.RegularMode,
			Hash: hash,
			Path: path,
		}),
	})
}

// readWorktreeFile reads path relative to wt's root, returning nil
// content (not an error) when the file doesn't exist.
func readWorktreeFile(wt *git.Worktree, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(wt.RootDir(), path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// writeWorktreeFile writes content to path relative to wt's root,
// creating any missing parent directories.
func writeWorktreeFile(wt *git.Worktree, path string, content []byte) error {
	full := filepath.Join(wt.RootDir(), path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parent directories for %s: %w", path, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// restoreUnselected reapplies, onto the worktree's post-operation
// content at path, every hunk of the file's original uncommitted
// change that consumed didn't cover. An operation that hard-resets the
// worktree to a rewritten HEAD (every [Service.withEditor] call does)
// would otherwise silently drop the part of a partially-selected
// file's change that was never meant to move.
func (s *Service) restoreUnselected(path string, headImage, worktreeImage []byte, consumed []hunk.Header) error {
	existing := hunk.DiffLines(headImage, worktreeImage)
	subs := discardSubtractions(consumed)

	var remaining []hunk.Header
	for _, h := range existing {
		remaining = append(remaining, hunk.SubtractHunks(h, subs)...)
	}
	if len(remaining) == 0 {
		return nil
	}

	newHeadImage, err := readWorktreeFile(s.wt, path)
	if err != nil {
		return err
	}
	restored, err := hunk.ApplyHunks(newHeadImage, worktreeImage, remaining)
	if err != nil {
		return fmt.Errorf("restore unselected changes to %s: %w", path, err)
	}
	return writeWorktreeFile(s.wt, path, restored)
}

func singleBlob(b git.BlobInfo) iter.Seq[git.BlobInfo] {
	return func(yield func(git.BlobInfo) bool) { yield(b) }
}

func singleString(s string) iter.Seq[string] {
	return func(yield func(string) bool) { yield(s) }
}
