package grapheditor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/hunk"
	"go.wbench.dev/core/internal/object"
)

// Side selects which side of a reference point a newly inserted step
// attaches to.
type Side int

const (
	// Before inserts the new step as the existing step's parent,
	// pushing the new step's result underneath it in history.
	Before Side = iota
	// After inserts the new step as the existing step's child, making
	// it the new tip of that chain.
	After
)

// InsertBlank inserts a step carrying no diff of its own (its resolved
// tree is simply whatever its parent resolves to) immediately before or
// after relativeTo, and returns a selector for it.
func (e *Editor) InsertBlank(relativeTo Selector, side Side) (Selector, error) {
	step, ok := e.Step(relativeTo)
	if !ok {
		return Selector{}, fmt.Errorf("insert blank: invalid selector")
	}

	blank := Step{Kind: StepPick, Conflictable: true, ChangeID: object.NewChangeID()}

	switch side {
	case Before:
		// blank takes relativeTo's old parents; relativeTo now points
		// only at blank.
		blank.Parents = step.Parents
		blankSel := e.addStep(blank)
		step.Parents = []Selector{blankSel}
		if err := e.Replace(relativeTo, step); err != nil {
			return Selector{}, err
		}
		return blankSel, nil

	case After:
		// blank takes relativeTo as its sole parent; anything that
		// pointed at relativeTo as a parent must now point at blank
		// instead.
		blank.Parents = []Selector{relativeTo}
		blankSel := e.addStep(blank)
		for i := range e.steps {
			for j, p := range e.steps[i].Parents {
				if p == relativeTo && Selector{id: i + 1} != blankSel {
					e.steps[i].Parents[j] = blankSel
				}
			}
		}
		e.rebased = nil
		return blankSel, nil

	default:
		return Selector{}, fmt.Errorf("insert blank: unknown side %d", side)
	}
}

// Uncommit removes the selected changes from commit's resulting tree,
// leaving the rest of its diff intact. A [hunk.DiffSpec] with no hunks
// (WholeFile true) removes that file's entire change; an empty changes
// list leaves the commit's tree as it is.
func (e *Editor) Uncommit(ctx context.Context, commit Selector, changes []hunk.DiffSpec) error {
	step, ok := e.Step(commit)
	if !ok {
		return fmt.Errorf("uncommit: invalid selector")
	}

	tree, err := e.currentTree(commit)
	if err != nil {
		return err
	}

	for _, d := range changes {
		oldImage, newImage, err := e.readBeforeAfter(ctx, step, d)
		if err != nil {
			return err
		}

		var content []byte
		if d.WholeFile() {
			content = oldImage
		} else {
			content, err = removeHunks(oldImage, newImage, d.Hunks)
			if err != nil {
				return fmt.Errorf("uncommit %s: %w", d.Path, err)
			}
		}

		tree, err = e.writeFile(ctx, tree, d.Path, content)
		if err != nil {
			return err
		}
	}

	step.OverrideTree = tree
	return e.Replace(commit, step)
}

// Reword replaces commit's message without touching its tree.
func (e *Editor) Reword(commit Selector, message string) error {
	step, ok := e.Step(commit)
	if !ok {
		return fmt.Errorf("reword: invalid selector")
	}
	step.Message = message
	return e.Replace(commit, step)
}

// MoveChangesBetweenCommits moves the selected changes out of src's
// resulting diff and into dst's, in place, assuming dst's current
// content for every affected file already matches src's pre-change
// image (the common case for adjacent steps in the same chain). changes
// with no hunks move that file's entire diff.
func (e *Editor) MoveChangesBetweenCommits(ctx context.Context, src, dst Selector, changes []hunk.DiffSpec) error {
	srcStep, ok := e.Step(src)
	if !ok {
		return fmt.Errorf("move changes: invalid source selector")
	}
	if _, ok := e.Step(dst); !ok {
		return fmt.Errorf("move changes: invalid destination selector")
	}

	srcTree, err := e.currentTree(src)
	if err != nil {
		return err
	}
	dstTree, err := e.currentTree(dst)
	if err != nil {
		return err
	}

	for _, d := range changes {
		oldImage, newImage, err := e.readBeforeAfter(ctx, srcStep, d)
		if err != nil {
			return err
		}

		var srcContent, dstContent []byte
		if d.WholeFile() {
			srcContent, dstContent = oldImage, newImage
		} else {
			srcContent, err = removeHunks(oldImage, newImage, d.Hunks)
			if err != nil {
				return fmt.Errorf("move changes %s: %w", d.Path, err)
			}
			dstContent, err = hunk.ApplyHunks(oldImage, newImage, d.Hunks)
			if err != nil {
				return fmt.Errorf("move changes %s: %w", d.Path, err)
			}
		}

		srcTree, err = e.writeFile(ctx, srcTree, d.Path, srcContent)
		if err != nil {
			return err
		}
		dstTree, err = e.writeFile(ctx, dstTree, d.Path, dstContent)
		if err != nil {
			return err
		}
	}

	srcStepUpdated, _ := e.Step(src)
	srcStepUpdated.OverrideTree = srcTree
	if err := e.Replace(src, srcStepUpdated); err != nil {
		return err
	}

	dstStepUpdated, _ := e.Step(dst)
	dstStepUpdated.OverrideTree = dstTree
	return e.Replace(dst, dstStepUpdated)
}

// currentTree reports the tree a step's edits should be layered onto:
// its own override if one has already been set by a prior edit, or its
// original tree otherwise.
func (e *Editor) currentTree(sel Selector) (git.Hash, error) {
	step, ok := e.Step(sel)
	if !ok {
		return "", fmt.Errorf("currentTree: invalid selector")
	}
	if step.OverrideTree != "" {
		return step.OverrideTree, nil
	}
	return step.OrigTree, nil
}

// readBeforeAfter returns d's pre- and post-change file content as it
// appeared in step's own original commit.
func (e *Editor) readBeforeAfter(ctx context.Context, step Step, d hunk.DiffSpec) (before, after []byte, err error) {
	oldPath := d.PreviousPath
	if oldPath == "" {
		oldPath = d.Path
	}

	before, err = e.readBlob(ctx, step.OrigParentTree, oldPath)
	if err != nil {
		return nil, nil, err
	}
	after, err = e.readBlob(ctx, step.OrigTree, d.Path)
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// readBlob reads the blob at path in treeish, returning nil content
// (not an error) when the path doesn't exist in that tree.
func (e *Editor) readBlob(ctx context.Context, treeish git.Hash, path string) ([]byte, error) {
	if treeish == "" {
		return nil, nil
	}

	hash, err := e.repo.HashAt(ctx, treeish.String(), path)
	if err != nil {
		if errors.Is(err, git.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve %s:%s: %w", treeish.Short(), path, err)
	}

	var buf bytes.Buffer
	if err := e.repo.ReadObject(ctx, git.BlobType, hash, &buf); err != nil {
		return nil, fmt.Errorf("read %s:%s: %w", treeish.Short(), path, err)
	}
	return buf.Bytes(), nil
}

// writeFile writes content as path's blob in tree, returning the
// resulting tree hash. Empty content removes the path instead, matching
// how Uncommit/MoveChangesBetweenCommits represent a fully-removed file.
func (e *Editor) writeFile(ctx context.Context, tree git.Hash, path string, content []byte) (git.Hash, error) {
	if len(content) == 0 {
		return e.repo.UpdateTree(ctx, git.UpdateTreeRequest{
			Tree:    tree,
			Deletes: singleString(path),
		})
	}

	hash, err := e.repo.WriteObject(ctx, git.BlobType, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("write blob for %s: %w", path, err)
	}

	return e.repo.UpdateTree(ctx, git.UpdateTreeRequest{
		Tree: tree,
		Writes: singleBlob(git.BlobInfo{
			Mode: git.RegularMode,
			Hash: hash,
			Path: path,
		}),
	})
}

// removeHunks reverts only the hunks selected out of newImage back to
// their content in oldImage, leaving every other part of newImage (any
// diff not selected for removal) untouched.
func removeHunks(oldImage, newImage []byte, hunks []hunk.Header) ([]byte, error) {
	reversed := make([]hunk.Header, len(hunks))
	for i, h := range hunks {
		reversed[i] = hunk.Header{
			OldStart: h.NewStart, OldLines: h.NewLines,
			NewStart: h.OldStart, NewLines: h.OldLines,
		}
	}
	return hunk.ApplyHunks(newImage, oldImage, reversed)
}

func singleBlob(b git.BlobInfo) iter.Seq[git.BlobInfo] {
	return func(yield func(git.BlobInfo) bool) { yield(b) }
}

func singleString(s string) iter.Seq[string] {
	return func(yield func(string) bool) { yield(s) }
}
