package git

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.wbench.dev/core/internal/silog"
)

// InitOptions configures the behavior of Init.
type InitOptions struct {
	// Log specifies the logger to use for messages.
	Log *silog.Logger

	// Branch is the name of the initial branch to create.
	// Defaults to "main".
	Branch string

	exec execer
}

// Init initializes a new Git repository at the given directory,
// returning the [Worktree] checked out there.
// If dir is empty, the current working directory is used.
func Init(ctx context.Context, dir string, opts InitOptions) (*Worktree, error) {
	if opts.exec == nil {
		opts.exec = _realExec
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}

	initCmd := newGitCmd(ctx, opts.Log,
		"init",
		"--initial-branch="+opts.Branch,
	).Dir(dir)
	if err := initCmd.Run(opts.exec); err != nil {
		return nil, fmt.Errorf("git init: %w", err)
	}

	return Open(ctx, dir, OpenOptions{
		Log:  opts.Log,
		exec: opts.exec,
	})
}

// OpenOptions configures the behavior of Open.
type OpenOptions struct {
	// Log specifies the logger to use for messages.
	Log *silog.Logger

	exec execer
}

// Open opens the repository at the given directory,
// returning the [Worktree] checked out there.
// If dir is empty, the current working directory is used.
func Open(ctx context.Context, dir string, opts OpenOptions) (*Worktree, error) {
	if opts.exec == nil {
		opts.exec = _realExec
	}
	if opts.Log == nil {
		opts.Log = silog.New(io.Discard, nil)
	}

	out, err := newGitCmd(ctx, opts.Log,
		"rev-parse",
		"--show-toplevel",
		"--absolute-git-dir",
		"--path-format=absolute",
		"--git-common-dir",
	).Dir(dir).OutputString(opts.exec)
	if err != nil {
		return nil, err
	}

	rootDir, rest, ok := strings.Cut(out, "\n")
	if !ok {
		return nil, fmt.Errorf("unexpected output from git rev-parse: %q", out)
	}
	gitDir, commonDir, ok := strings.Cut(rest, "\n")
	if !ok {
		return nil, fmt.Errorf("unexpected output from git rev-parse: %q", out)
	}
	if !filepath.IsAbs(commonDir) {
		commonDir = filepath.Join(gitDir, commonDir)
	}

	repo := newRepository(commonDir, opts.Log, opts.exec)
	return newWorktree(gitDir, rootDir, repo, opts.Log, opts.exec), nil
}

// OpenWorktree opens the worktree checked out at the given directory.
// If dir is empty, the current working directory is used.
//
// It is equivalent to [Open]: both resolve dir to the worktree
// that contains it, including a secondary worktree added with
// "git worktree add".
func OpenWorktree(ctx context.Context, dir string, opts OpenOptions) (*Worktree, error) {
	return Open(ctx, dir, opts)
}

// Repository is a handle to a Git repository.
// It provides read-write access to repository-wide state
// that isn't tied to a specific worktree: objects, refs, and config.
type Repository struct {
	gitDir string

	log  *silog.Logger
	exec execer
}

func newRepository(gitDir string, log *silog.Logger, exec execer) *Repository {
	return &Repository{
		gitDir: gitDir,
		log:    log,
		exec:   exec,
	}
}

// GitDir returns the absolute path to the repository's .git directory.
func (r *Repository) GitDir() string {
	return r.gitDir
}

// Log returns the logger this repository was opened with.
func (r *Repository) Log() *silog.Logger {
	return r.log
}

// Config returns a [Config] for reading and writing this repository's
// Git configuration.
func (r *Repository) Config() *Config {
	return NewConfig(ConfigOptions{
		Dir:  r.gitDir,
		Log:  r.log,
		exec: r.exec,
	})
}

// gitCmd returns a gitCmd that will run
// with the repository's Git directory set explicitly,
// independent of any particular worktree's root.
func (r *Repository) gitCmd(ctx context.Context, args ...string) *gitCmd {
	return newGitCmd(ctx, r.log, args...).Dir(r.gitDir)
}
