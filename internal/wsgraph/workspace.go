package wsgraph

import (
	"cmp"
	"slices"
	"strings"

	"go.wbench.dev/core/internal/git"
)

// Stack is one ordered chain of branch segments sharing a base, from
// closest-to-target (index 0) to topmost.
type Stack struct {
	// Segments lists the branch segments in this stack, base-first.
	Segments []int
}

// Workspace is the projection of a [Graph] into the shape the rest of
// workbench edits directly: an ordered list of stacks applied on top of
// the target, plus the synthetic parent order a combined workspace
// commit would use.
type Workspace struct {
	// Target is the upstream ref the workspace is based on.
	Target string

	// Stacks lists every stack currently applied to the workspace,
	// ordered by the generation of their bottom segment, lowest first.
	Stacks []Stack
}

// ToWorkspace projects g into a [Workspace]. Branch segments are grouped
// into stacks using each branch's recorded stacking base (from the
// [MetadataSource] the graph was built with) where available, falling
// back to the nearest ancestor branch segment found by walking the
// graph's edges toward the target.
func (g *Graph) ToWorkspace(meta MetadataSource) Workspace {
	branchSegIdx := make(map[string]int, len(g.segments))
	for _, seg := range g.segments {
		if isLocalBranchSegment(seg) {
			branchSegIdx[shortRefName(seg.RefName)] = seg.ID
		}
	}

	parentSeg := make(map[int]int, len(g.segments)) // branch segment id -> base branch segment id, or -1
	for _, seg := range g.segments {
		if !isLocalBranchSegment(seg) {
			continue
		}
		parentSeg[seg.ID] = -1

		name := shortRefName(seg.RefName)
		if base, ok := meta.Base(name); ok {
			if baseID, ok := branchSegIdx[base]; ok {
				parentSeg[seg.ID] = baseID
				continue
			}
		}
		parentSeg[seg.ID] = g.nearestBranchAncestor(seg.ID)
	}

	children := make(map[int][]int)
	var roots []int
	for _, seg := range g.segments {
		if !isLocalBranchSegment(seg) || seg.RefName == g.target {
			continue // remote-tracking branches, tags and the target itself aren't stack members
		}
		base, ok := parentSeg[seg.ID]
		if !ok || base == -1 || g.segments[base].RefName == g.target || !isLocalBranchSegment(g.segments[base]) {
			roots = append(roots, seg.ID)
			continue
		}
		children[base] = append(children[base], seg.ID)
	}
	// Every child of a fork beyond the first starts a stack of its own.
	for _, kids := range children {
		slices.Sort(kids)
		roots = append(roots, kids[1:]...)
	}

	slices.SortFunc(roots, func(a, b int) int {
		return cmp.Compare(g.segments[a].Generation, g.segments[b].Generation)
	})

	var stacks []Stack
	for _, root := range roots {
		stacks = append(stacks, Stack{Segments: g.chainFrom(root, children)})
	}

	return Workspace{
		Target: g.target,
		Stacks: stacks,
	}
}

// chainFrom follows a single-child chain starting at root. A branch with
// more than one child above it is a fork; only the first child
// (lowest segment id, i.e. earliest-built / most-recently-active) is
// folded into this stack, and the rest become their own stack roots on
// a later call, matching how a non-linear stack degrades gracefully
// instead of erroring here (validated strictly by the editing layer
// instead, where an unambiguous linear order is actually required).
func (g *Graph) chainFrom(root int, children map[int][]int) []int {
	chain := []int{root}
	current := root
	for {
		kids := children[current]
		if len(kids) == 0 {
			return chain
		}
		slices.Sort(kids)
		chain = append(chain, kids[0])
		current = kids[0]
	}
}

// nearestBranchAncestor walks edges downward from seg toward the target,
// returning the id of the first other branch segment reached, or -1 if
// none is found before the graph runs out.
func (g *Graph) nearestBranchAncestor(segID int) int {
	visited := map[int]bool{segID: true}
	queue := []int{segID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.OutgoingEdges(id) {
			if visited[e.DstSegment] {
				continue
			}
			visited[e.DstSegment] = true
			dst := g.segments[e.DstSegment]
			if dst.Kind == KindBranch && dst.RefName != "" && e.DstSegment != segID {
				return e.DstSegment
			}
			queue = append(queue, e.DstSegment)
		}
	}
	return -1
}

func isLocalBranchSegment(seg Segment) bool {
	return seg.Kind == KindBranch && strings.HasPrefix(seg.RefName, "refs/heads/")
}

func shortRefName(ref string) string {
	if rest, ok := strings.CutPrefix(ref, "refs/heads/"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(ref, "refs/remotes/"); ok {
		if _, name, ok := strings.Cut(rest, "/"); ok {
			return name
		}
		return rest
	}
	return ref
}

// CommitIDs returns the commit ids of every commit in the given stack's
// segments, tip-first within each segment (the order of
// [Segment.Commits]) and in stack order (base-first) across segments, suitable for constructing a synthetic workspace commit's
// parent list.
func (g *Graph) CommitIDs(s Stack) []git.Hash {
	var ids []git.Hash
	for _, segID := range s.Segments {
		seg, ok := g.Segment(segID)
		if !ok {
			continue
		}
		for _, c := range seg.Commits {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
