// Package object provides typed wrappers around Git commits and trees:
// change-id tracking, commit-header parsing, and the synthetic conflict
// tree layout produced by a conflicted cherry-pick.
package object

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.wbench.dev/core/internal/must"
)

// ChangeID is a 128-bit identifier embedded in a commit's extra headers,
// preserved across rebases and cherry-picks so that the same logical
// change is recognisable across different points in history. Two commits
// may share a change-id while having different trees.
type ChangeID [16]byte

// NewChangeID generates a fresh, random change-id.
func NewChangeID() ChangeID {
	var id ChangeID
	_, err := rand.Read(id[:])
	must.Bef(err == nil, "crypto/rand: %v", err)
	return id
}

// ParseChangeID parses the hex representation of a change-id,
// as found in a commit's "change-id" or legacy "workbench-change-id" header.
func ParseChangeID(s string) (ChangeID, error) {
	var id ChangeID
	if len(s) != hex.EncodedLen(len(id)) {
		return ChangeID{}, fmt.Errorf("change-id must be %d hex characters, got %d", hex.EncodedLen(len(id)), len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return ChangeID{}, fmt.Errorf("change-id: %w", err)
	}
	return id, nil
}

// String returns the hex representation of the change-id.
func (id ChangeID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value.
func (id ChangeID) IsZero() bool {
	return id == ChangeID{}
}

// ChangeIDGenerator produces change-ids for newly created commits.
//
// By default it generates cryptographically random ids. When seeded
// (workbench.testing.changeId in repository configuration), it instead
// derives a deterministic sequence from the seed, so that test fixtures
// can assert on stable change-ids.
type ChangeIDGenerator struct {
	seed string
	n    int
}

// NewChangeIDGenerator builds a generator. An empty seed means
// "use crypto/rand"; a non-empty seed selects the deterministic mode.
func NewChangeIDGenerator(seed string) *ChangeIDGenerator {
	return &ChangeIDGenerator{seed: seed}
}

// Next returns the next change-id in the sequence.
func (g *ChangeIDGenerator) Next() ChangeID {
	if g.seed == "" {
		return NewChangeID()
	}

	g.n++
	sum := sha256.Sum256(fmt.Appendf(nil, "%s-%d", g.seed, g.n))
	var id ChangeID
	copy(id[:], sum[:len(id)])
	return id
}
