package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// HeadersVersion is the current value of the workbench-headers-version
// commit header.
const HeadersVersion = "2"

const (
	headerVersionKey    = "workbench-headers-version"
	headerChangeIDKey   = "change-id"
	headerChangeIDLegacy = "workbench-change-id"
	headerConflictedKey = "workbench-conflicted"
	headerGPGSigKey     = "gpgsig"
)

// Headers holds the extra, workbench-specific header fields carried in a
// commit object alongside the standard tree/parent/author/committer
// fields: the headers version, the change-id, and (for commits produced
// by a conflicted cherry-pick) the conflicted file count.
//
// Headers round-trip opaque header lines (e.g. gpgsig) it doesn't
// otherwise understand, so parsing and re-rendering a commit never
// drops information it didn't ask for.
type Headers struct {
	// Version is the value of workbench-headers-version. Empty if the
	// commit predates header versioning.
	Version string

	// ChangeID identifies this commit's logical change. Zero if the
	// commit carries no change-id at all.
	ChangeID ChangeID

	// ChangeIDFromLegacy reports that ChangeID was read from the legacy
	// workbench-change-id header rather than change-id. [Headers.Render]
	// never writes the legacy header; this is read-only information.
	ChangeIDFromLegacy bool

	// ConflictedFiles is the conflicted-file count read from
	// workbench-conflicted. Zero means the commit is not conflicted.
	ConflictedFiles int

	// extra holds header lines this type doesn't model explicitly
	// (e.g. gpgsig, mergetag), in the order they appeared, so they
	// round-trip unchanged.
	extra []headerLine
}

type headerLine struct {
	key   string
	value string // may contain embedded newlines for continuation lines
}

// IsConflicted reports whether the headers mark the commit as conflicted.
func (h Headers) IsConflicted() bool {
	return h.ConflictedFiles > 0
}

// Signature returns the raw gpgsig header value, if present.
func (h Headers) Signature() (string, bool) {
	for _, l := range h.extra {
		if l.key == headerGPGSigKey {
			return l.value, true
		}
	}
	return "", false
}

// WithSignature returns a copy of h with its gpgsig header set to sig,
// replacing any existing signature. Passing an empty sig removes the
// header.
func (h Headers) WithSignature(sig string) Headers {
	extra := make([]headerLine, 0, len(h.extra)+1)
	for _, l := range h.extra {
		if l.key == headerGPGSigKey {
			continue
		}
		extra = append(extra, l)
	}
	if sig != "" {
		extra = append(extra, headerLine{key: headerGPGSigKey, value: sig})
	}
	h.extra = extra
	return h
}

// parseHeaderBlock splits a raw commit object's header block (the
// portion before the blank line separating it from the message) into
// individual fields, honoring Git's continuation-line convention: a
// line beginning with a single space is a continuation of the previous
// field's value.
func parseHeaderBlock(block []byte) []headerLine {
	var lines []headerLine
	for _, raw := range bytes.Split(block, []byte{'\n'}) {
		if len(raw) == 0 {
			continue
		}
		if raw[0] == ' ' && len(lines) > 0 {
			lines[len(lines)-1].value += "\n" + string(raw[1:])
			continue
		}

		key, value, _ := strings.Cut(string(raw), " ")
		lines = append(lines, headerLine{key: key, value: value})
	}
	return lines
}

// ParseHeaders extracts workbench headers from a commit's raw header
// block, along with the remaining standard header lines (tree, parent,
// author, committer) which this package does not otherwise model.
func ParseHeaders(block []byte) (Headers, []headerLineKV) {
	var h Headers
	var rest []headerLineKV

	for _, l := range parseHeaderBlock(block) {
		switch l.key {
		case headerVersionKey:
			h.Version = l.value
		case headerChangeIDKey:
			if id, err := ParseChangeID(l.value); err == nil {
				h.ChangeID = id
			}
		case headerChangeIDLegacy:
			if h.ChangeID.IsZero() {
				if id, err := ParseChangeID(l.value); err == nil {
					h.ChangeID = id
					h.ChangeIDFromLegacy = true
				}
			}
		case headerConflictedKey:
			if n, err := strconv.Atoi(l.value); err == nil {
				h.ConflictedFiles = n
			}
		case "tree", "parent", "author", "committer":
			rest = append(rest, headerLineKV{Key: l.key, Value: l.value})
		default:
			h.extra = append(h.extra, l)
		}
	}

	return h, rest
}

// headerLineKV is a standard (non-workbench) commit header field, as
// returned by ParseHeaders for the caller to reassemble the object.
type headerLineKV struct {
	Key, Value string
}

// Render writes the workbench header lines (version, change-id,
// conflicted count, then any opaque extra lines such as gpgsig) in the
// stable order mandated for commit message headers, suitable for
// insertion directly after the standard author/committer lines of a raw
// commit object.
func (h Headers) Render() string {
	var buf strings.Builder
	if h.Version != "" {
		fmt.Fprintf(&buf, "%s %s\n", headerVersionKey, h.Version)
	}
	if !h.ChangeID.IsZero() {
		fmt.Fprintf(&buf, "%s %s\n", headerChangeIDKey, h.ChangeID)
	}
	if h.ConflictedFiles > 0 {
		fmt.Fprintf(&buf, "%s %d\n", headerConflictedKey, h.ConflictedFiles)
	}
	for _, l := range h.extra {
		value := strings.ReplaceAll(l.value, "\n", "\n ")
		fmt.Fprintf(&buf, "%s %s\n", l.key, value)
	}
	return buf.String()
}
