package hunkdeps

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.wbench.dev/core/internal/git"
)

// walkStack diffs st's commits oldest to newest against their parents
// (the previous commit in the stack, or target for the oldest one),
// recording each touched file's mapped range and extending that file's
// translation chain for commits further upstack.
func walkStack(ctx context.Context, src BlobSource, target git.Hash, st Stack, paths map[string]*pathState, deps *Dependencies) {
	parent := target
	for i := len(st.CommitIDs) - 1; i >= 0; i-- {
		commit := st.CommitIDs[i]

		var statuses []git.FileStatus
		for fs, err := range src.DiffTree(ctx, parent.String(), commit.String()) {
			if err != nil {
				deps.Errors = append(deps.Errors, CalculationError{
					Path:   "",
					Detail: fmt.Sprintf("diff %s..%s: %v", parent.Short(), commit.Short(), err),
				})
				break
			}
			statuses = append(statuses, fs)
		}

		for _, fs := range statuses {
			if fs.Status == string(git.FileUnmerged) {
				continue
			}

			oldContent, err := blobAt(ctx, src, parent, fs.Path)
			if err != nil {
				deps.Errors = append(deps.Errors, CalculationError{Path: fs.Path, Detail: err.Error()})
				continue
			}
			newContent, err := blobAt(ctx, src, commit, fs.Path)
			if err != nil {
				deps.Errors = append(deps.Errors, CalculationError{Path: fs.Path, Detail: err.Error()})
				continue
			}

			fileHunks := diffLines(oldContent, newContent)
			if len(fileHunks) == 0 {
				continue
			}

			ps, ok := paths[fs.Path]
			if !ok {
				ps = &pathState{}
				paths[fs.Path] = ps
			}

			base := len(ps.layers) - 1
			for _, h := range fileHunks {
				ps.touched = append(ps.touched, touchedRange{
					commitID: commit,
					stackID:  st.ID,
					mapped:   mapToBase(ps, base, h.OldRange()),
				})
			}
			ps.layers = append(ps.layers, fileHunks)
		}

		parent = commit
	}
}

// blobAt reads path's content as of treeish, returning nil if the path
// doesn't exist there (added or deleted files diff against nothing).
func blobAt(ctx context.Context, src BlobSource, treeish git.Hash, path string) ([]byte, error) {
	hash, err := src.HashAt(ctx, treeish.String(), path)
	if err != nil {
		if errors.Is(err, git.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve %s:%s: %w", treeish.Short(), path, err)
	}

	var buf bytes.Buffer
	if err := src.ReadObject(ctx, git.BlobType, hash, &buf); err != nil {
		return nil, fmt.Errorf("read blob %s: %w", hash.Short(), err)
	}
	return buf.Bytes(), nil
}
