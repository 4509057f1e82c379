package wsgraph

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/object"
)

// Options configures graph construction.
type Options struct {
	// CollectTags includes tags as additional segment tips.
	CollectTags bool

	// TraversalLimit bounds how many commits a single segment walk may
	// visit before it is cut off and flagged [FlagEarlyEnd]. Zero means
	// unlimited.
	TraversalLimit uint32

	// ExtraTargetCommitID, if set, is walked as an additional integrated
	// tip alongside the configured target, e.g. to account for a target
	// ref that hasn't been fetched since the workspace was last updated.
	ExtraTargetCommitID *git.Hash
}

// hardLimit bounds total commits visited across the whole graph,
// independent of any one segment's soft TraversalLimit, so a
// pathologically large history can't make FromHead run unbounded.
const hardLimit = 200_000

type tip struct {
	kind    SegmentKind
	refName string
	hash    git.Hash
	base    CommitFlag
}

// FromHead builds the segment graph reachable from wt's HEAD, plus every
// local branch, remote-tracking branch (and, if requested, tag) in repo,
// classifying each commit against the target recorded in meta.
func FromHead(ctx context.Context, wt *git.Worktree, meta MetadataSource, opts Options) (*Graph, error) {
	repo := wt.Repository()

	b := &builder{
		ctx:     ctx,
		repo:    repo,
		meta:    meta,
		opts:    opts,
		owner:   make(map[git.Hash]int),
		index:   make(map[git.Hash]int),
		flags:   make(map[git.Hash]CommitFlag),
		commits: make(map[git.Hash]*object.Commit),
	}

	tips, err := b.collectTips(wt)
	if err != nil {
		return nil, fmt.Errorf("collect tips: %w", err)
	}

	for _, t := range tips {
		if _, seen := b.owner[t.hash]; seen {
			continue
		}
		if _, err := b.buildSegment(t); err != nil {
			return nil, fmt.Errorf("build segment for %s: %w", t.refName, err)
		}
	}

	// Apply accumulated flags (a commit may gain flags after its owning
	// segment was built, e.g. a branch tip later found integrated into
	// target) back onto every segment's commit records.
	for si := range b.segments {
		seg := &b.segments[si]
		for ci := range seg.Commits {
			seg.Commits[ci].Flags = b.flags[seg.Commits[ci].ID]
		}
	}

	b.assignGenerations()

	headSegment := -1
	if headHash, err := wt.Head(ctx); err == nil {
		if id, ok := b.owner[headHash]; ok {
			headSegment = id
		}
	}

	return &Graph{
		segments:    b.segments,
		edges:       b.edges,
		headSegment: headSegment,
		target:      meta.Target(),
	}, nil
}

type builder struct {
	ctx  context.Context
	repo *git.Repository
	meta MetadataSource
	opts Options

	segments []Segment
	edges    []Edge

	owner   map[git.Hash]int // commit -> segment id that owns it
	index   map[git.Hash]int // commit -> index within its owning segment
	flags   map[git.Hash]CommitFlag
	commits map[git.Hash]*object.Commit

	visited int // hard-limit counter across the whole graph
}

// collectTips enumerates every segment entry point: the configured
// target, every local branch, every remote-tracking branch, and
// (if requested) every tag. Local branches are ordered by committer
// time of their tip, descending, then by name, so that segment ids are
// stable and the most recently active branches build (and so claim
// contested commits) first.
func (b *builder) collectTips(wt *git.Worktree) ([]tip, error) {
	var tips []tip

	if target := b.meta.Target(); target != "" {
		if hash, err := b.repo.PeelToCommit(b.ctx, target); err == nil {
			tips = append(tips, tip{kind: KindBranch, refName: target, hash: hash, base: FlagIntegrated | FlagEntrypoint})
		}
	}
	if b.opts.ExtraTargetCommitID != nil {
		tips = append(tips, tip{kind: KindAnonymous, hash: *b.opts.ExtraTargetCommitID, base: FlagIntegrated | FlagEntrypoint})
	}

	branches, err := b.repo.LocalBranches(b.ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list local branches: %w", err)
	}

	type localTip struct {
		name string
		hash git.Hash
		time int64
	}
	locals := make([]localTip, 0, len(branches))
	for _, br := range branches {
		hash, err := b.repo.PeelToCommit(b.ctx, "refs/heads/"+br.Name)
		if err != nil {
			continue // branch disappeared between listing and resolving
		}
		commit, err := b.readCommit(hash)
		if err != nil {
			return nil, err
		}
		locals = append(locals, localTip{name: br.Name, hash: hash, time: commit.CommitterTime().Unix()})
	}
	slices.SortFunc(locals, func(a, b localTip) int {
		if c := cmp.Compare(b.time, a.time); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})
	for _, lt := range locals {
		tips = append(tips, tip{
			kind:    KindBranch,
			refName: "refs/heads/" + lt.name,
			hash:    lt.hash,
			base:    FlagLocal | FlagEntrypoint,
		})
	}

	patterns := []string{"refs/remotes/*"}
	if b.opts.CollectTags {
		patterns = append(patterns, "refs/tags/*")
	}
	refs, err := b.repo.ListRefs(b.ctx, patterns...)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	slices.SortFunc(refs, func(a, c git.Ref) int { return cmp.Compare(a.Name, c.Name) })
	for _, ref := range refs {
		if strings.HasSuffix(ref.Name, "/HEAD") {
			continue // symbolic remote HEAD pointer, not a real tip
		}
		commitHash, err := b.repo.PeelToCommit(b.ctx, ref.Name)
		if err != nil {
			continue // not a commit-ish (e.g. an annotated tag object we can't peel)
		}
		flag := FlagRemote
		if strings.HasPrefix(ref.Name, "refs/tags/") {
			flag = FlagLocal
		}
		tips = append(tips, tip{kind: KindBranch, refName: ref.Name, hash: commitHash, base: flag | FlagEntrypoint})
	}

	if _, err := wt.CurrentBranch(b.ctx); err != nil {
		// Detached HEAD: make sure the checked-out commit is still a tip
		// even though no ref names it directly. A checked-out branch is
		// already covered by the local-branches pass above.
		if headHash, herr := wt.Head(b.ctx); herr == nil {
			tips = append(tips, tip{kind: KindAnonymous, hash: headHash, base: FlagLocal | FlagEntrypoint})
		}
	}

	return tips, nil
}

func (b *builder) readCommit(hash git.Hash) (*object.Commit, error) {
	if c, ok := b.commits[hash]; ok {
		return c, nil
	}
	c, err := object.ReadCommit(b.ctx, b.repo, hash)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash.Short(), err)
	}
	b.commits[hash] = c
	return c, nil
}

// buildSegment walks t's first-parent chain, creating a new segment for
// the run of commits not already owned by another segment, recursing
// into additional parents (merge commits) as sibling segments linked by
// an [Edge]. It returns the id of the segment t.hash belongs to, which
// may be a pre-existing segment if t.hash was already visited.
func (b *builder) buildSegment(t tip) (int, error) {
	if id, ok := b.owner[t.hash]; ok {
		b.addFlag(t.hash, t.base)
		return id, nil
	}

	segID := len(b.segments)
	seg := Segment{
		ID:               segID,
		Kind:             t.kind,
		RefName:          t.refName,
		SiblingSegmentID: -1,
	}
	b.segments = append(b.segments, seg) // placeholder; filled below

	current := t.hash
	var prevIndexInThisSeg = -1
	for {
		if _, owned := b.owner[current]; owned && current != t.hash {
			dstSeg := b.owner[current]
			dstIdx := b.index[current]
			b.edges = append(b.edges, Edge{
				SrcSegment:     segID,
				DstSegment:     dstSeg,
				SrcCommitIndex: prevIndexInThisSeg,
				DstCommitIndex: dstIdx,
			})
			break
		}

		b.visited++
		if b.visited > hardLimit {
			if prevIndexInThisSeg >= 0 {
				b.addFlag(b.segments[segID].Commits[prevIndexInThisSeg].ID, FlagHardLimit)
			}
			break
		}

		idx := len(b.segments[segID].Commits)
		if b.opts.TraversalLimit > 0 && uint32(idx) >= b.opts.TraversalLimit {
			if prevIndexInThisSeg >= 0 {
				b.addFlag(b.segments[segID].Commits[prevIndexInThisSeg].ID, FlagEarlyEnd)
			}
			break
		}

		commit, err := b.readCommit(current)
		if err != nil {
			return -1, err
		}

		// A merge commit always starts its own segment, so it never ends
		// up appended to the run this call is building; reached mid-walk,
		// it's handed off exactly like any other non-first parent below.
		if len(commit.Parents) > 1 && prevIndexInThisSeg >= 0 {
			dstID, err := b.buildSegment(tip{kind: KindAnonymous, hash: current, base: t.base &^ FlagEntrypoint})
			if err != nil {
				return -1, err
			}
			dstIdx := b.index[current]
			b.edges = append(b.edges, Edge{
				SrcSegment:     segID,
				DstSegment:     dstID,
				SrcCommitIndex: prevIndexInThisSeg,
				DstCommitIndex: dstIdx,
			})
			break
		}

		flags := t.base
		if idx == 0 {
			flags |= FlagEntrypoint
		}
		if commit.Headers.IsConflicted() {
			flags |= FlagConflicted
		}
		if len(commit.Parents) > 1 {
			flags |= FlagMerge
		}

		b.owner[current] = segID
		b.index[current] = idx
		b.addFlag(current, flags)
		b.segments[segID].Commits = append(b.segments[segID].Commits, GraphCommit{ID: current})
		prevIndexInThisSeg = idx

		if len(commit.Parents) == 0 {
			break
		}

		if len(commit.Parents) > 1 {
			// This segment's sole commit is the merge itself (idx == 0,
			// reached as a tip or as another commit's non-first parent):
			// every parent, including the first, spins off its own
			// segment so the merge commit never grows a first-parent run
			// of its own.
			for _, parent := range commit.Parents {
				dstID, err := b.buildSegment(tip{kind: KindAnonymous, hash: parent, base: t.base &^ FlagEntrypoint})
				if err != nil {
					return -1, err
				}
				dstIdx := b.index[parent]
				b.edges = append(b.edges, Edge{
					SrcSegment:     segID,
					DstSegment:     dstID,
					SrcCommitIndex: idx,
					DstCommitIndex: dstIdx,
				})
			}
			break
		}

		current = commit.Parents[0]
	}

	b.linkSibling(segID)
	return segID, nil
}

func (b *builder) addFlag(hash git.Hash, f CommitFlag) {
	b.flags[hash] |= f
}

// assignGenerations sets each segment's Generation to its distance from
// the nearest segment it has no outgoing edge away from (a root, usually
// the target's own segment): 0 for a root, 1 + the minimum generation of
// everything it has an edge into otherwise.
func (b *builder) assignGenerations() {
	memo := make(map[int]int, len(b.segments))
	var resolve func(id, depth int) int
	resolve = func(id, depth int) int {
		if g, ok := memo[id]; ok {
			return g
		}
		// depth guards against a cycle slipping through; segment-level
		// history is a DAG in practice, so this never actually triggers.
		if depth > len(b.segments) {
			return 0
		}

		best := -1
		for _, e := range b.edges {
			if e.SrcSegment != id {
				continue
			}
			g := resolve(e.DstSegment, depth+1)
			if best == -1 || g < best {
				best = g
			}
		}

		gen := 0
		if best != -1 {
			gen = best + 1
		}
		memo[id] = gen
		return gen
	}

	for i := range b.segments {
		b.segments[i].Generation = resolve(b.segments[i].ID, 0)
	}
}

// linkSibling pairs a freshly built local-branch segment with its
// remote-tracking counterpart (or vice versa), matched by the Git
// convention that "refs/heads/<name>" and "refs/remotes/<remote>/<name>"
// share a short name. Only the first not-yet-paired match in segment
// order is linked, even when several remotes carry the same short name.
func (b *builder) linkSibling(segID int) {
	seg := &b.segments[segID]
	if seg.RefName == "" {
		return
	}

	var wantPrefix, shortName string
	switch {
	case strings.HasPrefix(seg.RefName, "refs/heads/"):
		shortName = strings.TrimPrefix(seg.RefName, "refs/heads/")
		wantPrefix = "refs/remotes/"
	case strings.HasPrefix(seg.RefName, "refs/remotes/"):
		rest := strings.TrimPrefix(seg.RefName, "refs/remotes/")
		if _, name, ok := strings.Cut(rest, "/"); ok {
			shortName = name
		}
		wantPrefix = "refs/heads/"
	default:
		return
	}
	if shortName == "" {
		return
	}

	for i := range b.segments {
		if i == segID {
			continue
		}
		other := &b.segments[i]
		if other.SiblingSegmentID != -1 {
			continue
		}
		if !strings.HasPrefix(other.RefName, wantPrefix) {
			continue
		}
		otherShort := other.RefName
		if wantPrefix == "refs/remotes/" {
			if _, name, ok := strings.Cut(strings.TrimPrefix(otherShort, wantPrefix), "/"); ok {
				otherShort = name
			}
		} else {
			otherShort = strings.TrimPrefix(otherShort, wantPrefix)
		}
		if otherShort != shortName {
			continue
		}

		seg.SiblingSegmentID = i
		other.SiblingSegmentID = segID
		if wantPrefix == "refs/remotes/" {
			seg.RemoteTrackingRefName = other.RefName
		} else {
			other.RemoteTrackingRefName = seg.RefName
		}
		return
	}
}
