package hunk

import "github.com/pmezard/go-difflib/difflib"

// DiffLines computes the minimal set of changed-line hunks between old
// and new, split into lines the same way [SplitLines] does elsewhere in
// this package so hunk ranges line up across every caller.
func DiffLines(oldContent, newContent []byte) []Header {
	oldLines := SplitLines(oldContent)
	newLines := SplitLines(newContent)

	matcher := difflib.NewMatcher(oldLines, newLines)

	var hunks []Header
	for _, op := range matcher.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		hunks = append(hunks, Header{
			OldStart: op.I1 + 1,
			OldLines: op.I2 - op.I1,
			NewStart: op.J1 + 1,
			NewLines: op.J2 - op.J1,
		})
	}
	return hunks
}
