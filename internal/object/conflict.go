package object

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/BurntSushi/toml"
	"go.wbench.dev/core/internal/git"
)

// Conflict tree subtree names, as laid out by a conflicted cherry-pick.
const (
	ConflictSideOurs   = ".conflict-side-0"
	ConflictSideTheirs = ".conflict-side-1"
	ConflictBase       = ".conflict-base-0"
	AutoResolution     = ".auto-resolution"
	ConflictFiles      = ".conflict-files"
)

// ConflictTree is the synthetic tree layout written for a commit whose
// cherry-pick produced conflicts: five well-known subtrees in place of
// the ordinary merged worktree.
type ConflictTree struct {
	// Ours is the "ours" side: the commit being picked onto.
	Ours git.Hash

	// Theirs is the "theirs" side: the commit being picked.
	Theirs git.Hash

	// Base is the merge base of Ours and Theirs.
	Base git.Hash

	// AutoResolution is the best-effort auto-merged result. Downstream
	// diff/apply operations must prefer this tree over Ours/Theirs/Base
	// whenever it is present, except when specifically inspecting the
	// conflict itself.
	AutoResolution git.Hash

	// Files describes which paths are in conflict, and their
	// ancestor/ours/theirs presence.
	Files ConflictFileSet
}

// ConflictFileSet is the ".conflict-files" descriptor: three ordered
// sets of repository-relative paths, serialised as TOML.
type ConflictFileSet struct {
	AncestorEntries []string `toml:"ancestor_entries"`
	OurEntries      []string `toml:"our_entries"`
	TheirEntries    []string `toml:"their_entries"`
}

// MarshalTOML renders the conflict-files descriptor.
func (s ConflictFileSet) MarshalTOML() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("encode conflict-files: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseConflictFileSet parses a ".conflict-files" TOML document.
// Unknown top-level keys are rejected, per the external interface
// contract for this blob.
func ParseConflictFileSet(data []byte) (ConflictFileSet, error) {
	var s ConflictFileSet
	meta, err := toml.Decode(string(data), &s)
	if err != nil {
		return ConflictFileSet{}, fmt.Errorf("decode conflict-files: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ConflictFileSet{}, fmt.Errorf("conflict-files: unknown keys: %v", undecoded)
	}
	return s, nil
}

// WriteConflictTree writes the five-subtree conflict layout as a single
// Git tree object and returns its hash.
func WriteConflictTree(ctx context.Context, repo *git.Repository, ct ConflictTree) (git.Hash, error) {
	filesBlob, err := ct.Files.MarshalTOML()
	if err != nil {
		return git.ZeroHash, err
	}
	filesHash, err := repo.WriteObject(ctx, git.BlobType, bytes.NewReader(filesBlob))
	if err != nil {
		return git.ZeroHash, fmt.Errorf("write conflict-files blob: %w", err)
	}

	entries := []git.TreeEntry{
		{Mode: git.DirMode, Type: git.TreeType, Hash: ct.Ours, Name: ConflictSideOurs},
		{Mode: git.DirMode, Type: git.TreeType, Hash: ct.Theirs, Name: ConflictSideTheirs},
		{Mode: git.DirMode, Type: git.TreeType, Hash: ct.Base, Name: ConflictBase},
		{Mode: git.DirMode, Type: git.TreeType, Hash: ct.AutoResolution, Name: AutoResolution},
		{Mode: git.RegularMode, Type: git.BlobType, Hash: filesHash, Name: ConflictFiles},
	}
	slices.SortFunc(entries, func(a, b git.TreeEntry) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})

	tree, err := repo.MakeTree(ctx, slices.Values(entries))
	if err != nil {
		return git.ZeroHash, fmt.Errorf("make conflict tree: %w", err)
	}
	return tree, nil
}

// ReadConflictTree reads the conflict layout back out of tree.
func ReadConflictTree(ctx context.Context, repo *git.Repository, tree git.Hash) (ConflictTree, error) {
	entries, err := repo.ListTree(ctx, tree, git.ListTreeOptions{})
	if err != nil {
		return ConflictTree{}, fmt.Errorf("list conflict tree: %w", err)
	}

	var ct ConflictTree
	var filesHash git.Hash
	for ent, err := range entries {
		if err != nil {
			return ConflictTree{}, fmt.Errorf("read conflict tree: %w", err)
		}

		switch ent.Name {
		case ConflictSideOurs:
			ct.Ours = ent.Hash
		case ConflictSideTheirs:
			ct.Theirs = ent.Hash
		case ConflictBase:
			ct.Base = ent.Hash
		case AutoResolution:
			ct.AutoResolution = ent.Hash
		case ConflictFiles:
			filesHash = ent.Hash
		}
	}

	if filesHash != "" {
		var buf bytes.Buffer
		if err := repo.ReadObject(ctx, git.BlobType, filesHash, &buf); err != nil {
			return ConflictTree{}, fmt.Errorf("read conflict-files: %w", err)
		}
		files, err := ParseConflictFileSet(buf.Bytes())
		if err != nil {
			return ConflictTree{}, err
		}
		ct.Files = files
	}

	return ct, nil
}
