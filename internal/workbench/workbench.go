// Package workbench implements the operations that turn a selection of
// hunks into new commits (Commit), strip them back out of the worktree
// (Discard), move uncommitted changes into the commits they depend on
// (Absorb), and reshape a stack's existing commits (Squash, Reorder,
// InsertBlank, Uncommit). Every operation acquires the repository's
// exclusive write permission, records a recovery snapshot before it
// touches anything, and rolls back from that snapshot if it fails
// partway through.
package workbench

import (
	"context"
	"errors"
	"fmt"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/grapheditor"
	"go.wbench.dev/core/internal/silog"
	"go.wbench.dev/core/internal/snapshot"
	"go.wbench.dev/core/internal/wbmeta"
	"go.wbench.dev/core/internal/wbperm"
	"go.wbench.dev/core/internal/wsgraph"
)

// Service orchestrates commit, discard, absorb and stack-reshaping
// edits against one worktree.
type Service struct {
	wt    *git.Worktree
	meta  *wbmeta.Store
	snaps *snapshot.Store
	perm  *wbperm.Permission
	log   *silog.Logger
}

// Options configures a [Service]. Every field defaults to a value wired
// against wt's own repository when left zero.
type Options struct {
	Meta      *wbmeta.Store
	Snapshots *snapshot.Store
	Perm      *wbperm.Permission
	Log       *silog.Logger
}

// New builds a Service operating on wt.
func New(wt *git.Worktree, opts Options) *Service {
	if opts.Meta == nil {
		opts.Meta = wbmeta.New(wt.Repository(), wbmeta.Options{})
	}
	if opts.Snapshots == nil {
		opts.Snapshots = snapshot.New(wt, snapshot.Options{})
	}
	if opts.Perm == nil {
		opts.Perm = wbperm.New()
	}
	if opts.Log == nil {
		opts.Log = silog.Nop()
	}
	return &Service{
		wt:    wt,
		meta:  opts.Meta,
		snaps: opts.Snapshots,
		perm:  opts.Perm,
		log:   opts.Log,
	}
}

// metaSource adapts loaded workbench metadata to [wsgraph.MetadataSource].
type metaSource struct {
	target string
	bases  map[string]string
}

func (m metaSource) Target() string { return m.target }

func (m metaSource) Base(branch string) (string, bool) {
	b, ok := m.bases[branch]
	return b, ok
}

// loadMetaSource reads the current workspace target and every tracked
// branch's recorded stacking base, for graph construction.
func (s *Service) loadMetaSource(ctx context.Context) (wsgraph.MetadataSource, error) {
	ws, err := s.meta.LoadWorkspace(ctx)
	if err != nil && !errors.Is(err, wbmeta.ErrNotExist) {
		return nil, fmt.Errorf("load workspace metadata: %w", err)
	}

	names, err := s.meta.Branches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tracked branches: %w", err)
	}

	bases := make(map[string]string, len(names))
	for _, name := range names {
		bm, err := s.meta.LoadBranch(ctx, name)
		if err != nil {
			continue
		}
		if bm.Base != "" {
			bases[name] = bm.Base
		}
	}

	return metaSource{target: ws.Target, bases: bases}, nil
}

// buildEditor builds a [grapheditor.Editor] reproducing the workspace
// currently reachable from HEAD.
func (s *Service) buildEditor(ctx context.Context) (*grapheditor.Editor, *wsgraph.Graph, error) {
	meta, err := s.loadMetaSource(ctx)
	if err != nil {
		return nil, nil, err
	}

	g, err := wsgraph.FromHead(ctx, s.wt, meta, wsgraph.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("build graph: %w", err)
	}
	g, err = g.Validated()
	if err != nil {
		return nil, nil, fmt.Errorf("validate graph: %w", err)
	}

	e, err := grapheditor.FromGraph(ctx, s.wt.Repository(), g)
	if err != nil {
		return nil, nil, fmt.Errorf("build editor: %w", err)
	}
	return e, g, nil
}

// Graph builds a read-only snapshot of the workspace currently
// reachable from HEAD, for introspection (status reporting, branch
// listings) that doesn't need to mutate anything.
func (s *Service) Graph(ctx context.Context) (*wsgraph.Graph, error) {
	_, g, err := s.buildEditor(ctx)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Oplog lists the recovery snapshots recorded by past operations on this
// worktree, most recent first. A non-positive limit lists every
// snapshot still on the chain.
func (s *Service) Oplog(ctx context.Context, limit int) ([]snapshot.Entry, error) {
	entries, err := s.snaps.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return entries, nil
}

// refNames lists every named branch segment in g, for the caller's
// snapshot to cover.
func refNames(g *wsgraph.Graph) []string {
	var refs []string
	for _, seg := range g.Segments() {
		if seg.RefName != "" {
			refs = append(refs, seg.RefName)
		}
	}
	return refs
}

// syncWorktree resets the worktree and index to HEAD. Materialize only
// ever writes commit objects and refs, never the worktree or index, so
// every editor-based operation must call this once it's done.
func (s *Service) syncWorktree(ctx context.Context) error {
	if err := s.wt.Reset(ctx, "HEAD", git.ResetOptions{Mode: git.ResetHard, Quiet: true}); err != nil {
		return fmt.Errorf("sync worktree: %w", err)
	}
	return nil
}

// withWrite acquires the repository's exclusive write permission,
// snapshots the refs named in refs under reason, runs fn, and restores
// the snapshot if fn fails.
func (s *Service) withWrite(ctx context.Context, reason string, refs []string, fn func(ctx context.Context) error) error {
	w, err := s.perm.AcquireWrite(ctx)
	if err != nil {
		return fmt.Errorf("acquire write permission: %w", err)
	}
	defer w.Release()

	snap, err := s.snaps.Create(ctx, reason, refs)
	if err != nil {
		return fmt.Errorf("snapshot before %s: %w", reason, err)
	}

	if opErr := fn(ctx); opErr != nil {
		res, resolveErr := s.snaps.Resolve(ctx, snap)
		if resolveErr != nil {
			s.log.Errorf("could not resolve snapshot to roll back failed %s: %v", reason, resolveErr)
			return opErr
		}
		if applyErr := s.snaps.Apply(ctx, snap, res); applyErr != nil {
			s.log.Errorf("rollback after failed %s also failed: %v", reason, applyErr)
		}
		return opErr
	}

	return nil
}

// withEditor builds an editor over the current workspace, runs fn
// against it, then rebases, materializes, and syncs the worktree to
// the result, all under [Service.withWrite] so a failure at any stage
// restores the pre-operation state.
func (s *Service) withEditor(
	ctx context.Context,
	reason string,
	fn func(ctx context.Context, e *grapheditor.Editor, g *wsgraph.Graph) error,
) ([]grapheditor.RefEdit, error) {
	e, g, err := s.buildEditor(ctx)
	if err != nil {
		return nil, err
	}

	var edits []grapheditor.RefEdit
	err = s.withWrite(ctx, reason, refNames(g), func(ctx context.Context) error {
		if err := fn(ctx, e, g); err != nil {
			return err
		}
		if err := e.Rebase(ctx); err != nil {
			return fmt.Errorf("rebase: %w", err)
		}
		edits, err = e.Materialize(ctx)
		if err != nil {
			return fmt.Errorf("materialize: %w", err)
		}
		return s.syncWorktree(ctx)
	})
	if err != nil {
		return nil, err
	}
	return edits, nil
}
