// Package wbmeta is the opaque key/value metadata store backing
// workspace-level records (target ref, stack list) and per-branch records
// (description, review id, hidden flag). State lives entirely inside the
// Git object database, as a chain of commits on a dedicated ref, so that
// metadata is never lost independently of the repository it describes and
// composes naturally with internal/snapshot's tree-of-trees oplog.
//
// Per-branch metadata is encoded as TOML so that fields this version of
// workbench doesn't know about still round-trip untouched through a
// read-modify-write cycle, the same discipline internal/object uses for
// the conflict-files descriptor.
package wbmeta

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"go.wbench.dev/core/internal/git"
)

// DefaultRef is the reference this store uses when none is specified.
const DefaultRef = "refs/workbench/metadata"

const (
	_workspaceKey  = "workspace.toml"
	_branchDir     = "branches"
	_branchKeyFile = ".toml"
)

// WorkspaceMetadata is the workspace-level record: the shared upstream
// target and the stacks currently applied to the workspace.
type WorkspaceMetadata struct {
	Target string
	Stacks []string

	// Extra preserves top-level keys this version of workbench doesn't
	// know about, so a read-modify-write cycle never drops fields
	// written by a newer version of the store.
	Extra map[string]any
}

// BranchMetadata is the per-branch record.
type BranchMetadata struct {
	Description string
	ReviewID    string
	Hidden      bool

	// Base names the branch this one is stacked on, as recorded by the
	// user (e.g. via a "stack onto" operation) rather than derived from
	// the graph. The workspace graph consults this to decide where one
	// stack ends and the next begins when two stacks share history.
	Base string

	// AllowForcePush permits Absorb (and any other history-rewriting
	// operation) to target a commit already reachable from this
	// branch's remote-tracking ref. False by default: a commit already
	// pushed is left alone rather than silently requiring a force-push
	// the branch hasn't opted into.
	AllowForcePush bool

	// Extra preserves unknown top-level keys; see [WorkspaceMetadata.Extra].
	Extra map[string]any
}

// ErrNotExist is returned when a requested metadata record does not exist.
var ErrNotExist = errors.New("metadata: does not exist")

// Store reads and writes workbench metadata in a repository.
type Store struct {
	repo *git.Repository
	ref  string
	sig  git.Signature
}

// Options configures a [Store].
type Options struct {
	// Ref is the reference metadata commits are chained onto.
	// Defaults to [DefaultRef].
	Ref string

	// Author identifies the committer of metadata-store commits.
	// Defaults to a fixed workbench identity so that the metadata
	// ref's reflog stays machine-parseable regardless of user identity.
	Author git.Signature
}

// New builds a metadata store backed by repo.
func New(repo *git.Repository, opts Options) *Store {
	if opts.Ref == "" {
		opts.Ref = DefaultRef
	}
	if opts.Author == (git.Signature{}) {
		opts.Author = git.Signature{Name: "workbench", Email: "workbench@localhost"}
	}

	return &Store{repo: repo, ref: opts.Ref, sig: opts.Author}
}

// LoadWorkspace reads the workspace-level record.
// Returns [ErrNotExist] if the store has never been initialized.
func (s *Store) LoadWorkspace(ctx context.Context) (WorkspaceMetadata, error) {
	raw, ok, err := s.readBlob(ctx, _workspaceKey)
	if err != nil {
		return WorkspaceMetadata{}, err
	}
	if !ok {
		return WorkspaceMetadata{}, ErrNotExist
	}

	doc, meta, err := decodeDocument(raw)
	if err != nil {
		return WorkspaceMetadata{}, fmt.Errorf("decode workspace metadata: %w", err)
	}

	m := WorkspaceMetadata{Extra: map[string]any{}}
	for key, prim := range doc {
		switch key {
		case "target":
			err = meta.PrimitiveDecode(prim, &m.Target)
		case "stacks":
			err = meta.PrimitiveDecode(prim, &m.Stacks)
		default:
			var v any
			err = meta.PrimitiveDecode(prim, &v)
			m.Extra[key] = v
		}
		if err != nil {
			return WorkspaceMetadata{}, fmt.Errorf("decode workspace metadata %q: %w", key, err)
		}
	}
	return m, nil
}

// SaveWorkspace writes the workspace-level record, committing the change
// to the metadata ref with the given message.
func (s *Store) SaveWorkspace(ctx context.Context, m WorkspaceMetadata, message string) error {
	doc := map[string]any{
		"target": m.Target,
		"stacks": m.Stacks,
	}
	for k, v := range m.Extra {
		doc[k] = v
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("encode workspace metadata: %w", err)
	}
	return s.writeBlob(ctx, _workspaceKey, buf.Bytes(), message)
}

// LoadBranch reads the per-branch record for name.
// Returns [ErrNotExist] if no metadata has been recorded for the branch.
func (s *Store) LoadBranch(ctx context.Context, name string) (BranchMetadata, error) {
	raw, ok, err := s.readBlob(ctx, branchKey(name))
	if err != nil {
		return BranchMetadata{}, err
	}
	if !ok {
		return BranchMetadata{}, ErrNotExist
	}

	doc, meta, err := decodeDocument(raw)
	if err != nil {
		return BranchMetadata{}, fmt.Errorf("decode branch metadata for %s: %w", name, err)
	}

	m := BranchMetadata{Extra: map[string]any{}}
	for key, prim := range doc {
		switch key {
		case "description":
			err = meta.PrimitiveDecode(prim, &m.Description)
		case "review_id":
			err = meta.PrimitiveDecode(prim, &m.ReviewID)
		case "hidden":
			err = meta.PrimitiveDecode(prim, &m.Hidden)
		case "base":
			err = meta.PrimitiveDecode(prim, &m.Base)
		case "allow_force_push":
			err = meta.PrimitiveDecode(prim, &m.AllowForcePush)
		default:
			var v any
			err = meta.PrimitiveDecode(prim, &v)
			m.Extra[key] = v
		}
		if err != nil {
			return BranchMetadata{}, fmt.Errorf("decode branch metadata %q for %s: %w", key, name, err)
		}
	}
	return m, nil
}

// SaveBranch writes the per-branch record for name.
func (s *Store) SaveBranch(ctx context.Context, name string, m BranchMetadata, message string) error {
	doc := map[string]any{
		"description":      m.Description,
		"review_id":        m.ReviewID,
		"hidden":           m.Hidden,
		"base":             m.Base,
		"allow_force_push": m.AllowForcePush,
	}
	for k, v := range m.Extra {
		doc[k] = v
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("encode branch metadata for %s: %w", name, err)
	}
	return s.writeBlob(ctx, branchKey(name), buf.Bytes(), message)
}

// decodeDocument decodes a TOML document into a map of primitives so that
// known and unknown top-level keys can be distinguished and handled
// separately.
func decodeDocument(raw []byte) (map[string]toml.Primitive, toml.MetaData, error) {
	var doc map[string]toml.Primitive
	meta, err := toml.Decode(string(raw), &doc)
	if err != nil {
		return nil, toml.MetaData{}, err
	}
	return doc, meta, nil
}

// DeleteBranch removes the per-branch record for name, if any.
func (s *Store) DeleteBranch(ctx context.Context, name string, message string) error {
	return s.deleteBlob(ctx, branchKey(name), message)
}

// Branches lists the names of all branches with recorded metadata.
func (s *Store) Branches(ctx context.Context) ([]string, error) {
	tree, ok, err := s.treeHash(ctx)
	if err != nil || !ok {
		return nil, err
	}

	entries, err := s.repo.ListTree(ctx, tree, git.ListTreeOptions{Recurse: true})
	if err != nil {
		return nil, fmt.Errorf("list tree: %w", err)
	}

	var names []string
	for ent, err := range entries {
		if err != nil {
			return nil, fmt.Errorf("list tree: %w", err)
		}
		if ent.Type != git.BlobType {
			continue
		}
		if rest, ok := strings.CutPrefix(ent.Name, _branchDir+"/"); ok {
			names = append(names, strings.TrimSuffix(rest, _branchKeyFile))
		}
	}
	return names, nil
}

func branchKey(name string) string {
	return path.Join(_branchDir, name+_branchKeyFile)
}

func (s *Store) treeHash(ctx context.Context) (git.Hash, bool, error) {
	tree, err := s.repo.PeelToTree(ctx, s.ref)
	if err != nil {
		if errors.Is(err, git.ErrNotExist) {
			return git.ZeroHash, false, nil
		}
		return git.ZeroHash, false, fmt.Errorf("peel %s: %w", s.ref, err)
	}
	return tree, true, nil
}

func (s *Store) readBlob(ctx context.Context, key string) ([]byte, bool, error) {
	hash, err := s.repo.HashAt(ctx, s.ref, key)
	if err != nil {
		return nil, false, nil
	}

	var buf bytes.Buffer
	if err := s.repo.ReadObject(ctx, git.BlobType, hash, &buf); err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return buf.Bytes(), true, nil
}

// writeBlob commits a single key's new value onto the metadata ref,
// retrying a handful of times if a concurrent writer raced it.
func (s *Store) writeBlob(ctx context.Context, key string, data []byte, message string) error {
	blobHash, err := s.repo.WriteObject(ctx, git.BlobType, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write blob: %w", err)
	}

	var lastErr error
	for range 5 {
		prevCommit, prevTree, err := s.headState(ctx)
		if err != nil {
			return err
		}

		newTree, err := s.repo.UpdateTree(ctx, git.UpdateTreeRequest{
			Tree: prevTree,
			Writes: func(yield func(git.BlobInfo) bool) {
				yield(git.BlobInfo{Mode: git.RegularMode, Hash: blobHash, Path: key})
			},
		})
		if err != nil {
			return fmt.Errorf("update tree: %w", err)
		}
		if newTree == prevTree {
			return nil
		}

		if err := s.commitAndAdvance(ctx, prevCommit, newTree, message); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("update %s: %w", s.ref, lastErr)
}

func (s *Store) deleteBlob(ctx context.Context, key string, message string) error {
	var lastErr error
	for range 5 {
		prevCommit, prevTree, err := s.headState(ctx)
		if err != nil {
			return err
		}
		if prevTree == git.ZeroHash {
			return nil // nothing to delete
		}

		newTree, err := s.repo.UpdateTree(ctx, git.UpdateTreeRequest{
			Tree: prevTree,
			Deletes: func(yield func(string) bool) {
				yield(key)
			},
		})
		if err != nil {
			return fmt.Errorf("update tree: %w", err)
		}
		if newTree == prevTree {
			return nil
		}

		if err := s.commitAndAdvance(ctx, prevCommit, newTree, message); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("update %s: %w", s.ref, lastErr)
}

func (s *Store) headState(ctx context.Context) (commit, tree git.Hash, err error) {
	commit, err = s.repo.PeelToCommit(ctx, s.ref)
	if err != nil {
		if !errors.Is(err, git.ErrNotExist) {
			return "", "", fmt.Errorf("peel %s: %w", s.ref, err)
		}
		return "", "", nil
	}

	tree, err = s.repo.PeelToTree(ctx, commit.String())
	if err != nil {
		return "", "", fmt.Errorf("tree for %s: %w", commit, err)
	}
	return commit, tree, nil
}

func (s *Store) commitAndAdvance(ctx context.Context, prevCommit, newTree git.Hash, message string) error {
	req := git.CommitTreeRequest{
		Tree:      newTree,
		Message:   message,
		Author:    &s.sig,
		Committer: &s.sig,
	}
	if prevCommit != "" {
		req.Parents = []git.Hash{prevCommit}
	}

	newCommit, err := s.repo.CommitTree(ctx, req)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return s.repo.SetRef(ctx, git.SetRefRequest{
		Ref:     s.ref,
		Hash:    newCommit,
		OldHash: prevCommit,
	})
}
