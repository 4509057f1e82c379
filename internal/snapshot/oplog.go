package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/object"
)

// Entry is one snapshot in the stash chain, as listed by [Store.List].
type Entry struct {
	Snapshot

	// Parent is the snapshot this one was chained onto, or the zero hash
	// if this is the oldest snapshot on the chain.
	Parent git.Hash

	// When is the snapshot commit's committer time.
	When time.Time
}

// Age renders When relative to now, e.g. "3 minutes ago".
func (e Entry) Age(now time.Time) string {
	return humanize.RelTime(e.When, now, "ago", "from now")
}

// List walks the stash chain from its current tip, most recent first. A
// non-positive limit walks the entire chain.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	repo := s.wt.Repository()

	commit, err := repo.PeelToCommit(ctx, s.ref)
	if err != nil {
		if errors.Is(err, git.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve %s: %w", s.ref, err)
	}

	var entries []Entry
	for commit != "" && (limit <= 0 || len(entries) < limit) {
		c, err := object.ReadCommit(ctx, repo, commit)
		if err != nil {
			return nil, fmt.Errorf("read snapshot commit %s: %w", commit.Short(), err)
		}

		var parent git.Hash
		if len(c.Parents) > 0 {
			parent = c.Parents[0]
		}

		entries = append(entries, Entry{
			Snapshot: Snapshot{Commit: commit, Tree: c.Tree, Reason: c.Subject},
			Parent:   parent,
			When:     c.CommitterTime(),
		})
		commit = parent
	}
	return entries, nil
}
