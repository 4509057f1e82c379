package hunkdeps

import (
	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/hunk"
)

// pathState accumulates, for one file path, the chain of per-commit
// diffs needed to project a range expressed in any commit's tree back
// to the merge base's coordinate system, plus the touched ranges
// already discovered for that path.
type pathState struct {
	// layers[i] is the sorted hunk list of the i'th commit (oldest
	// first) that touched this path, in (parent-tree, commit-tree)
	// coordinates.
	layers [][]hunk.Header

	touched []touchedRange
}

type touchedRange struct {
	commitID git.Hash
	stackID  string
	mapped   hunk.Range
}

// mapToBase projects r, expressed in the tree coordinates that result
// after applying layers[0..layerIndex] in order, back to the merge
// base's coordinates, by walking the layers from layerIndex down to 0
// and translating r one commit at a time.
func mapToBase(ps *pathState, layerIndex int, r hunk.Range) hunk.Range {
	for k := layerIndex; k >= 0; k-- {
		r = translate(ps.layers[k], r)
	}
	return r
}

// translate maps r from a layer's "new" (post-commit) coordinates back
// to its "old" (parent) coordinates. Lines untouched by any hunk shift
// by the hunk's net line-count delta; lines inside a hunk's new-range
// have no corresponding old-side position, since the commit introduced
// or rewrote them, so they're attributed to the hunk's old-range start,
// the nearest point that does exist in the parent.
func translate(hunks []hunk.Header, r hunk.Range) hunk.Range {
	start := translatePoint(hunks, r.Start)
	end := translatePoint(hunks, r.End())
	if end < start {
		end = start
	}
	return hunk.Range{Start: start, Lines: end - start}
}

func translatePoint(hunks []hunk.Header, p int) int {
	offset := 0
	for _, h := range hunks {
		if p < h.NewStart {
			return p - offset
		}
		if p < h.NewStart+h.NewLines {
			return h.OldStart
		}
		offset += h.NewLines - h.OldLines
	}
	return p - offset
}
