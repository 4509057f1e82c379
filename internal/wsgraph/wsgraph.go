// Package wsgraph builds a typed segment graph over a repository's
// reachable commits: the directed structure that encodes multiple
// stacks, their remote-tracking counterparts, and their relationship to
// a shared upstream target, plus the workspace projection derived from
// it.
//
// Graph objects are always constructed fresh from HEAD plus a metadata
// source; nothing here is persisted between calls. Persistent state
// lives in the Git object database and in internal/wbmeta.
package wsgraph

import "go.wbench.dev/core/internal/git"

// CommitFlag is a bitwise classification attached to a commit within a
// segment. Flag propagation during traversal is monotone: a commit never
// loses a flag once set, and conflicting classifications (e.g. a commit
// that is both integrated and remote-only) are retained together rather
// than resolved at construction time.
type CommitFlag uint8

const (
	// FlagLocal marks a commit reachable from a local branch segment.
	FlagLocal CommitFlag = 1 << iota
	// FlagRemote marks a commit reachable only from a remote-tracking ref.
	FlagRemote
	// FlagIntegrated marks a commit reachable from the configured target.
	FlagIntegrated
	// FlagConflicted marks a commit whose tree is the five-subtree
	// conflict layout (see internal/object.ConflictTree).
	FlagConflicted
	// FlagEarlyEnd marks a commit where traversal stopped early because
	// the soft traversal limit was reached along this path.
	FlagEarlyEnd
	// FlagHardLimit marks a commit where traversal stopped because the
	// hard compute/memory budget was exhausted.
	FlagHardLimit
	// FlagEntrypoint marks the commit a segment's walk started at
	// (a branch tip, the target tip, or HEAD itself).
	FlagEntrypoint
	// FlagMerge marks a commit with more than one parent. Such a commit
	// always occupies a segment of its own; consumers that need a
	// stack's non-merge history (e.g. internal/hunkdeps) must filter on
	// this flag rather than assume segment boundaries already did it.
	FlagMerge
)

// Has reports whether f includes all of want's bits.
func (f CommitFlag) Has(want CommitFlag) bool {
	return f&want == want
}

// GraphCommit is one commit as it appears in the graph: its id, its
// classification flags, and any other references that happen to point at
// the same commit (besides the one that caused its segment to exist).
type GraphCommit struct {
	ID    git.Hash
	Flags CommitFlag

	// OtherRefs lists additional reference names pointing at ID, beyond
	// the segment's own RefName.
	OtherRefs []string
}

// SegmentKind distinguishes what a segment represents in the workspace
// projection.
type SegmentKind int

const (
	// KindAnonymous is an unnamed chain of commits with no ref pointing
	// directly at its tip.
	KindAnonymous SegmentKind = iota
	// KindBranch is a segment whose tip is a named ref: the target, a
	// local branch, a remote-tracking branch, or a tag.
	KindBranch
	// KindWorkspace is the synthetic workspace root segment.
	KindWorkspace
)

// Segment is a maximal chain of commits with a single entry and a single
// exit in the graph's topology.
type Segment struct {
	// ID indexes this segment within its owning [Graph].
	ID int

	// Generation is this segment's distance from the nearest root
	// segment (one with no outgoing edge, usually the target's own
	// segment): 0 at a root, incrementing once per segment boundary
	// crossed while walking away from it toward a stack's tip.
	Generation int

	Kind SegmentKind

	// RefName is the symbolic name this segment represents, e.g.
	// "refs/heads/feature", or empty for an anonymous segment.
	RefName string

	// RemoteTrackingRefName is the remote-tracking counterpart of
	// RefName, if one was discovered, e.g. "refs/remotes/origin/feature".
	RemoteTrackingRefName string

	// Commits lists this segment's commits from tip to base.
	Commits []GraphCommit

	// SiblingSegmentID pairs a local segment with its remote-tracking
	// segment (or vice versa). -1 if there is no sibling.
	SiblingSegmentID int
}

// Edge connects two segments: the src_index'th commit of the src segment
// has, as one of its parents, the dst_index'th commit of the dst
// segment. A segment with more than one outgoing edge from its final
// commit models an octopus merge.
type Edge struct {
	SrcSegment, DstSegment         int
	SrcCommitIndex, DstCommitIndex int
}

// Graph is a full view of the segment graph reachable from HEAD.
type Graph struct {
	segments []Segment
	edges    []Edge

	// headSegment is the segment HEAD's commit was assigned to, or -1
	// if HEAD is unborn.
	headSegment int

	target string // configured target ref name, or "" if unknown
}

// Segments returns every segment in the graph, indexed by [Segment.ID].
func (g *Graph) Segments() []Segment { return g.segments }

// Edges returns every edge in the graph.
func (g *Graph) Edges() []Edge { return g.edges }

// Empty reports whether the graph has no segments, which happens only
// when it was built from an unborn HEAD.
func (g *Graph) Empty() bool { return len(g.segments) == 0 }

// Segment looks up a segment by id.
func (g *Graph) Segment(id int) (Segment, bool) {
	if id < 0 || id >= len(g.segments) {
		return Segment{}, false
	}
	return g.segments[id], true
}

// Target reports the configured upstream target ref name, if known.
func (g *Graph) Target() (string, bool) {
	return g.target, g.target != ""
}

// HeadSegment reports the id of the segment HEAD's commit belongs to,
// or -1 if HEAD is unborn.
func (g *Graph) HeadSegment() int {
	return g.headSegment
}

// OutgoingEdges returns the edges whose SrcSegment is id.
func (g *Graph) OutgoingEdges(id int) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.SrcSegment == id {
			out = append(out, e)
		}
	}
	return out
}
