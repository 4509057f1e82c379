// Package wbconfig reads the per-repository configuration workbench
// operations consult: whether to sign commits, whether to name references
// in Gerrit's single-changelog style, and the deterministic change-id seed
// used by test fixtures. All configuration is read fresh from the
// repository's Git configuration snapshot on each operation; nothing is
// cached process-wide.
package wbconfig

import (
	"context"
	"fmt"
	"strconv"

	"go.wbench.dev/core/internal/git"
)

const (
	_keySignCommits  = "workbench.signcommits"
	_keyGerritMode   = "workbench.gerritmode"
	_keyChangeIDSeed = "workbench.testing.changeid"
)

// Config is a snapshot of workbench-specific repository configuration.
type Config struct {
	// SignCommits reports whether newly created commits should be signed
	// using the repository's configured signing key.
	SignCommits bool

	// GerritMode reports whether the graph editor should materialise
	// references using Gerrit's single-changelog ref-spec convention
	// instead of plain branch updates.
	GerritMode bool

	// ChangeIDSeed, when non-empty, selects deterministic change-id
	// generation for test fixtures (see object.ChangeIDGenerator).
	ChangeIDSeed string
}

// Load reads workbench configuration from the given repository.
//
// Unset keys take their zero value (signing and Gerrit mode disabled,
// no change-id seed); a malformed boolean value is reported as an error
// rather than silently ignored.
func Load(ctx context.Context, repo *git.Repository) (Config, error) {
	var cfg Config

	entries, err := repo.Config().ListRegexp(ctx, `^workbench\.`)
	if err != nil {
		return Config{}, fmt.Errorf("read workbench configuration: %w", err)
	}

	for entry, err := range entries {
		if err != nil {
			return Config{}, fmt.Errorf("read workbench configuration: %w", err)
		}

		switch string(entry.Key.Canonical()) {
		case _keySignCommits:
			v, err := strconv.ParseBool(entry.Value)
			if err != nil {
				return Config{}, fmt.Errorf("workbench.signCommits: %w", err)
			}
			cfg.SignCommits = v
		case _keyGerritMode:
			v, err := strconv.ParseBool(entry.Value)
			if err != nil {
				return Config{}, fmt.Errorf("workbench.gerritMode: %w", err)
			}
			cfg.GerritMode = v
		case _keyChangeIDSeed:
			cfg.ChangeIDSeed = entry.Value
		}
	}

	return cfg, nil
}
