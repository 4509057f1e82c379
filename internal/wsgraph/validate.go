package wsgraph

import "fmt"

// InvariantError reports a structural inconsistency found by
// [Graph.Validated]. It should never occur from a graph built by
// [FromHead]; it exists to catch regressions in construction and to let
// callers building a [Graph] by hand (tests, the editor's in-memory
// rewrites) assert their result is well-formed.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "graph invariant violated: " + e.Detail
}

// Validated checks that every edge references segments and commit
// indices that actually exist, and that no segment is its own sibling.
// It returns g unchanged so it can be chained at a call site, e.g.
// `g, err := wsgraph.FromHead(...); g, err = g.Validated()`.
func (g *Graph) Validated() (*Graph, error) {
	for _, e := range g.edges {
		src, ok := g.Segment(e.SrcSegment)
		if !ok {
			return nil, &InvariantError{Detail: fmt.Sprintf("edge references unknown source segment %d", e.SrcSegment)}
		}
		dst, ok := g.Segment(e.DstSegment)
		if !ok {
			return nil, &InvariantError{Detail: fmt.Sprintf("edge references unknown destination segment %d", e.DstSegment)}
		}
		if e.SrcCommitIndex < 0 || e.SrcCommitIndex >= len(src.Commits) {
			return nil, &InvariantError{Detail: fmt.Sprintf("edge source commit index %d out of range for segment %d (%d commits)", e.SrcCommitIndex, e.SrcSegment, len(src.Commits))}
		}
		if e.DstCommitIndex < 0 || e.DstCommitIndex >= len(dst.Commits) {
			return nil, &InvariantError{Detail: fmt.Sprintf("edge destination commit index %d out of range for segment %d (%d commits)", e.DstCommitIndex, e.DstSegment, len(dst.Commits))}
		}
	}

	for _, seg := range g.segments {
		if seg.SiblingSegmentID == seg.ID {
			return nil, &InvariantError{Detail: fmt.Sprintf("segment %d is its own sibling", seg.ID)}
		}
		if seg.SiblingSegmentID != -1 {
			sib, ok := g.Segment(seg.SiblingSegmentID)
			if !ok {
				return nil, &InvariantError{Detail: fmt.Sprintf("segment %d's sibling %d does not exist", seg.ID, seg.SiblingSegmentID)}
			}
			if sib.SiblingSegmentID != seg.ID {
				return nil, &InvariantError{Detail: fmt.Sprintf("sibling link between %d and %d is not mutual", seg.ID, seg.SiblingSegmentID)}
			}
		}
	}

	return g, nil
}
