package wsgraph

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// branchShortName strips the refs/heads/ prefix a branch segment's RefName
// carries, for matching against what a user would actually type.
func branchShortName(refName string) string {
	return strings.TrimPrefix(refName, "refs/heads/")
}

// FindSegment resolves query against every named branch segment's short
// name using fuzzy subsequence matching, returning the best-ranked match.
// It reports false if query is empty or matches no branch segment.
func (g *Graph) FindSegment(query string) (Segment, bool) {
	if query == "" {
		return Segment{}, false
	}

	var names []string
	var segs []Segment
	for _, seg := range g.segments {
		if seg.Kind != KindBranch || seg.RefName == "" {
			continue
		}
		names = append(names, branchShortName(seg.RefName))
		segs = append(segs, seg)
	}

	matches := fuzzy.Find(query, names)
	if len(matches) == 0 {
		return Segment{}, false
	}
	return segs[matches[0].Index], true
}
