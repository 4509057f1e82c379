// Package snapshot captures and restores point-in-time workspace state
// as a single Git tree object: the worktree, the index (when it
// diverges from the worktree), any in-progress conflict markers, every
// workspace reference, HEAD, and workbench metadata. Snapshots are
// commits chained onto a dedicated ref, the same way internal/wbmeta
// chains metadata commits, so recovery never depends on anything
// outside the object database.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/rs/zerolog"
	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/grapheditor"
	"go.wbench.dev/core/internal/object"
	"go.wbench.dev/core/internal/wbmeta"
)

// DefaultRef is the reference snapshot commits are chained onto. It is
// never exposed to the user as a branch.
const DefaultRef = "refs/workbench/stash"

// subtree/blob names within a snapshot commit's root tree.
const (
	treeWorktree  = "worktree"
	treeIndex     = "index"
	treeConflicts = "conflicts"
	treeWorkspace = "workspace_references"
	treeHead      = "head_references"
	treeMetadata  = "metadata"

	headBlobName = "HEAD"
)

// Snapshot is one point-in-time capture of workspace state.
type Snapshot struct {
	// Commit is the snapshot commit, chained onto the previous
	// snapshot (if any) as its sole parent.
	Commit git.Hash

	// Tree is Commit's tree: the root of the layout described above.
	Tree git.Hash

	// Reason names the operation the snapshot guards (e.g.
	// "CreateCommit", "Absorb"), recorded as the commit's message.
	Reason string
}

// HeadEdit restores HEAD to the branch or detached commit recorded in a
// snapshot.
type HeadEdit struct {
	// Branch is the branch HEAD was on when the snapshot was taken.
	// Empty if HEAD was detached.
	Branch string

	// Hash is the commit HEAD resolves to: for a detached HEAD, the
	// commit recorded at snapshot time; for a branch, the commit that
	// branch points at when the snapshot is resolved.
	Hash git.Hash
}

// MetadataEdit restores the workbench metadata ref to the tree recorded
// in a snapshot, as a new commit chained onto the ref's current value
// rather than a raw overwrite, preserving the metadata ref's own
// append-only history.
type MetadataEdit struct {
	// Ref is the metadata reference to update.
	Ref string

	// Tree is the tree to restore.
	Tree git.Hash

	// OldCommit is the metadata ref's value observed while resolving
	// the snapshot, used both as the new commit's parent and as the
	// compare-and-swap guard when applying the edit.
	OldCommit git.Hash
}

// Resolution is what resolving a snapshot produces: the edits needed to
// restore workspace state, not yet applied.
type Resolution struct {
	// RefEdits restores every workspace reference captured by the
	// snapshot to its recorded target.
	RefEdits []grapheditor.RefEdit

	// Head restores HEAD, if the snapshot recorded one.
	Head *HeadEdit

	// Metadata restores workbench metadata, if the snapshot recorded
	// any.
	Metadata *MetadataEdit
}

// Store creates and resolves snapshots against one repository's stash
// chain.
type Store struct {
	wt      *git.Worktree
	ref     string
	metaRef string
	sig     git.Signature
	log     *zerolog.Logger
}

// Options configures a [Store].
type Options struct {
	// Ref is the reference snapshot commits are chained onto. Defaults
	// to [DefaultRef].
	Ref string

	// MetadataRef is the reference workbench metadata lives on.
	// Defaults to [wbmeta.DefaultRef].
	MetadataRef string

	// Author identifies the committer of snapshot commits. Defaults to
	// a fixed workbench identity so the stash ref's reflog stays
	// machine-parseable regardless of user identity.
	Author git.Signature

	// Log receives diagnostics from the ref-chaining storage backend
	// (retries on a compare-and-swap race). Defaults to a discarding
	// logger.
	Log *zerolog.Logger
}

// New builds a snapshot store backed by wt.
func New(wt *git.Worktree, opts Options) *Store {
	if opts.Ref == "" {
		opts.Ref = DefaultRef
	}
	if opts.MetadataRef == "" {
		opts.MetadataRef = wbmeta.DefaultRef
	}
	if opts.Author == (git.Signature{}) {
		opts.Author = git.Signature{Name: "workbench", Email: "workbench@localhost"}
	}
	log := opts.Log
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Store{wt: wt, ref: opts.Ref, metaRef: opts.MetadataRef, sig: opts.Author, log: log}
}

// Create captures the current worktree, index, any in-progress
// conflict, every ref named in refs, HEAD, and workbench metadata,
// committing the result onto the stash chain. refs should name every
// reference the calling operation considers part of the current
// workspace; Create itself has no notion of workspace membership.
func (s *Store) Create(ctx context.Context, reason string, refs []string) (Snapshot, error) {
	repo := s.wt.Repository()

	headHash, err := s.wt.Head(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("resolve HEAD: %w", err)
	}
	headTree, err := repo.PeelToTree(ctx, headHash.String())
	if err != nil {
		return Snapshot{}, fmt.Errorf("resolve HEAD tree: %w", err)
	}

	worktreeTree, err := s.captureWorktree(ctx, reason, headTree)
	if err != nil {
		return Snapshot{}, err
	}

	var entries []git.BlobInfo

	entries = append(entries, git.BlobInfo{Mode: git.DirMode, Hash: worktreeTree, Path: treeWorktree})

	indexTree, err := s.wt.WriteIndexTree(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("write index tree: %w", err)
	}
	if indexTree != worktreeTree {
		entries = append(entries, git.BlobInfo{Mode: git.DirMode, Hash: indexTree, Path: treeIndex})
	}

	conflictTree, err := s.captureConflicts(ctx, repo)
	if err != nil {
		return Snapshot{}, err
	}
	if conflictTree != "" {
		entries = append(entries, git.BlobInfo{Mode: git.DirMode, Hash: conflictTree, Path: treeConflicts})
	}

	headBlobTree, err := s.captureHead(ctx, repo, headHash)
	if err != nil {
		return Snapshot{}, err
	}
	entries = append(entries, git.BlobInfo{Mode: git.DirMode, Hash: headBlobTree, Path: treeHead})

	workspaceTree, err := s.captureWorkspace(ctx, repo, refs)
	if err != nil {
		return Snapshot{}, err
	}
	if workspaceTree != "" {
		entries = append(entries, git.BlobInfo{Mode: git.DirMode, Hash: workspaceTree, Path: treeWorkspace})
	}

	metaTree, err := repo.PeelToTree(ctx, s.metaRef)
	if err != nil && !errors.Is(err, git.ErrNotExist) {
		return Snapshot{}, fmt.Errorf("resolve metadata tree: %w", err)
	}
	if metaTree != "" {
		entries = append(entries, git.BlobInfo{Mode: git.DirMode, Hash: metaTree, Path: treeMetadata})
	}

	rootTree, err := git.MakeTreeRecursive(ctx, repo, slicesValues(entries))
	if err != nil {
		return Snapshot{}, fmt.Errorf("build snapshot tree: %w", err)
	}

	newCommit, err := s.chainCommit(ctx, repo, rootTree, reason)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{Commit: newCommit, Tree: rootTree, Reason: reason}, nil
}

// chainCommit commits tree onto the stash ref's current tip and advances
// the ref, retrying if a concurrent writer's update raced it.
func (s *Store) chainCommit(ctx context.Context, repo *git.Repository, tree git.Hash, message string) (git.Hash, error) {
	var lastErr error
	for attempt := range 5 {
		prevCommit, err := repo.PeelToCommit(ctx, s.ref)
		if err != nil && !errors.Is(err, git.ErrNotExist) {
			return "", fmt.Errorf("resolve %s: %w", s.ref, err)
		}

		var parents []git.Hash
		if prevCommit != "" {
			parents = []git.Hash{prevCommit}
		}

		newCommit, err := repo.CommitTree(ctx, git.CommitTreeRequest{
			Tree:      tree,
			Message:   message,
			Parents:   parents,
			Author:    &s.sig,
			Committer: &s.sig,
		})
		if err != nil {
			return "", fmt.Errorf("commit snapshot: %w", err)
		}

		if err := repo.SetRef(ctx, git.SetRefRequest{Ref: s.ref, Hash: newCommit, OldHash: prevCommit}); err != nil {
			lastErr = err
			s.log.Warn().Err(err).Int("attempt", attempt).Str("ref", s.ref).Msg("could not update snapshot ref: retrying")
			continue
		}
		return newCommit, nil
	}

	return "", fmt.Errorf("update %s: %w", s.ref, lastErr)
}

// Top returns the most recently created snapshot, if any.
func (s *Store) Top(ctx context.Context) (Snapshot, bool, error) {
	repo := s.wt.Repository()

	commit, err := repo.PeelToCommit(ctx, s.ref)
	if err != nil {
		if errors.Is(err, git.ErrNotExist) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("resolve %s: %w", s.ref, err)
	}

	c, err := object.ReadCommit(ctx, repo, commit)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read snapshot commit: %w", err)
	}

	return Snapshot{Commit: commit, Tree: c.Tree, Reason: c.Subject}, true, nil
}

// captureWorktree returns the tree hash representing the current
// worktree+index state, via 'stash create'. If there is nothing to
// stash, the worktree matches HEAD exactly, so headTree is returned
// unchanged.
func (s *Store) captureWorktree(ctx context.Context, reason string, headTree git.Hash) (git.Hash, error) {
	stashHash, err := s.wt.StashCreate(ctx, reason)
	if err != nil {
		if errors.Is(err, git.ErrNoChanges) {
			return headTree, nil
		}
		return "", fmt.Errorf("stash create: %w", err)
	}

	repo := s.wt.Repository()
	c, err := object.ReadCommit(ctx, repo, stashHash)
	if err != nil {
		return "", fmt.Errorf("read stash commit: %w", err)
	}
	return c.Tree, nil
}

// captureConflicts records every unmerged path in the index as a
// conflict-files descriptor. Stage information (ancestor/ours/theirs)
// is not distinguished here the way internal/object's commit-level
// ConflictTree does for a cherry-pick's five-subtree layout: the
// worktree-level index only exposes "this path is unmerged", not which
// stage(s) are present, through the plumbing this package has access
// to, so every unmerged path is recorded in all three of
// [object.ConflictFileSet]'s lists. A caller reconstructing the exact
// conflict markers relies on the worktree tree captured above, which
// still contains Git's own conflict-marked file content; this blob
// exists only so the *set* of conflicted paths survives the round
// trip even if the worktree is later overwritten.
func (s *Store) captureConflicts(ctx context.Context, repo *git.Repository) (git.Hash, error) {
	var paths []string
	for p, err := range s.wt.ListFilesPaths(ctx, &git.ListFilesOptions{Unmerged: true}) {
		if err != nil {
			return "", fmt.Errorf("list unmerged files: %w", err)
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		return "", nil
	}
	sort.Strings(paths)

	files := object.ConflictFileSet{
		AncestorEntries: paths,
		OurEntries:      paths,
		TheirEntries:    paths,
	}
	blob, err := files.MarshalTOML()
	if err != nil {
		return "", fmt.Errorf("encode conflict-files: %w", err)
	}
	blobHash, err := repo.WriteObject(ctx, git.BlobType, bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("write conflict-files blob: %w", err)
	}

	return repo.MakeTree(ctx, singleEntry(git.TreeEntry{
		Mode: git.RegularMode,
		Type: git.BlobType,
		Hash: blobHash,
		Name: object.ConflictFiles,
	}))
}

// captureHead records whether HEAD is attached to a branch or
// detached, and the commit it resolves to, as a single blob so Resolve
// can tell the two cases apart without re-deriving them.
func (s *Store) captureHead(ctx context.Context, repo *git.Repository, headHash git.Hash) (git.Hash, error) {
	content := headHash.String()
	if branch, err := s.wt.CurrentBranch(ctx); err == nil {
		content = "ref: refs/heads/" + branch
	} else if !errors.Is(err, git.ErrDetachedHead) {
		return "", fmt.Errorf("resolve current branch: %w", err)
	}

	blobHash, err := repo.WriteObject(ctx, git.BlobType, bytes.NewReader([]byte(content)))
	if err != nil {
		return "", fmt.Errorf("write HEAD blob: %w", err)
	}

	return repo.MakeTree(ctx, singleEntry(git.TreeEntry{
		Mode: git.RegularMode,
		Type: git.BlobType,
		Hash: blobHash,
		Name: headBlobName,
	}))
}

// captureWorkspace resolves every ref in refs to its current commit and
// builds a tree mapping ref name to a blob holding that commit's hash,
// preserving the ref's own slash-separated structure (refs/heads/foo
// becomes a nested tree path) via [git.MakeTreeRecursive].
func (s *Store) captureWorkspace(ctx context.Context, repo *git.Repository, refs []string) (git.Hash, error) {
	if len(refs) == 0 {
		return "", nil
	}

	var blobs []git.BlobInfo
	for _, name := range refs {
		hash, err := repo.PeelToCommit(ctx, name)
		if err != nil {
			if errors.Is(err, git.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("resolve %s: %w", name, err)
		}

		blobHash, err := repo.WriteObject(ctx, git.BlobType, bytes.NewReader([]byte(hash.String())))
		if err != nil {
			return "", fmt.Errorf("write ref blob for %s: %w", name, err)
		}
		blobs = append(blobs, git.BlobInfo{Mode: git.RegularMode, Hash: blobHash, Path: name})
	}
	if len(blobs) == 0 {
		return "", nil
	}

	return git.MakeTreeRecursive(ctx, repo, slicesValues(blobs))
}

func slicesValues(s []git.BlobInfo) iter.Seq[git.BlobInfo] {
	return func(yield func(git.BlobInfo) bool) {
		for _, b := range s {
			if !yield(b) {
				return
			}
		}
	}
}

func singleEntry(e git.TreeEntry) iter.Seq[git.TreeEntry] {
	return func(yield func(git.TreeEntry) bool) { yield(e) }
}
