package hunk

import (
	"cmp"
	"fmt"
	"slices"
)

// ApplyHunks overlays the portions of newImage described by hunks onto
// oldImage: lines outside any hunk come from oldImage, and the lines
// inside a hunk's new-range come from newImage. hunks need not be
// sorted. Each line retains whatever line terminator it was split on
// (bare "\n", "\r\n", or none for a final line missing a trailing
// newline), so mixed line endings and trailing-newline mismatches
// between the two images are preserved exactly as each image has them.
func ApplyHunks(oldImage, newImage []byte, hunks []Header) ([]byte, error) {
	oldLines := SplitLines(oldImage)
	newLines := SplitLines(newImage)

	sorted := slices.Clone(hunks)
	slices.SortFunc(sorted, func(a, b Header) int { return cmp.Compare(a.OldStart, b.OldStart) })

	var out []byte
	cursor := 0 // next unconsumed old line, 0-based
	for _, h := range sorted {
		oldStart := h.OldStart - 1
		if oldStart < cursor {
			return nil, fmt.Errorf("hunk at old line %d overlaps preceding hunk (cursor at %d)", h.OldStart, cursor+1)
		}
		if oldStart > len(oldLines) {
			return nil, fmt.Errorf("hunk old range starts at line %d, past end of old image (%d lines)", h.OldStart, len(oldLines))
		}

		for _, l := range oldLines[cursor:oldStart] {
			out = append(out, l...)
		}

		newStart := h.NewStart - 1
		if newStart < 0 || newStart+h.NewLines > len(newLines) {
			return nil, fmt.Errorf("hunk new range [%d,%d) out of bounds for new image (%d lines)", h.NewStart, h.NewStart+h.NewLines, len(newLines))
		}
		for _, l := range newLines[newStart : newStart+h.NewLines] {
			out = append(out, l...)
		}

		cursor = oldStart + h.OldLines
	}

	if cursor > len(oldLines) {
		return nil, fmt.Errorf("hunks consume past end of old image (%d lines)", len(oldLines))
	}
	for _, l := range oldLines[cursor:] {
		out = append(out, l...)
	}

	return out, nil
}

// SplitLines splits data into lines, each retaining its own trailing
// terminator ("\n" or "\r\n"); the final line has none if data doesn't
// end in a newline. An empty input yields no lines.
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}

	var lines []string
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			lines = append(lines, string(data[start:i+1]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}
