package hunkdeps

import "go.wbench.dev/core/internal/hunk"

// diffLines computes the minimal set of changed-line hunks between old
// and new, split into lines the same way internal/hunk does so hunk
// ranges line up between this package and the rest of the engine.
func diffLines(oldContent, newContent []byte) []hunk.Header {
	return hunk.DiffLines(oldContent, newContent)
}
