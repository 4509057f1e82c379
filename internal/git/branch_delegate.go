package git

import "context"

// LocalBranches lists local branches in the repository that this worktree
// belongs to. See [Repository.LocalBranches].
func (w *Worktree) LocalBranches(ctx context.Context, opts *LocalBranchesOptions) ([]LocalBranch, error) {
	return w.repo.LocalBranches(ctx, opts)
}

// BranchExists reports whether a local branch with the given name exists.
// See [Repository.BranchExists].
func (w *Worktree) BranchExists(ctx context.Context, branch string) bool {
	return w.repo.BranchExists(ctx, branch)
}

// CreateBranch creates a new branch in the repository.
// See [Repository.CreateBranch].
func (w *Worktree) CreateBranch(ctx context.Context, req CreateBranchRequest) error {
	return w.repo.CreateBranch(ctx, req)
}

// DeleteBranch deletes a branch from the repository.
// See [Repository.DeleteBranch].
func (w *Worktree) DeleteBranch(ctx context.Context, branch string, opts BranchDeleteOptions) error {
	return w.repo.DeleteBranch(ctx, branch, opts)
}

// RenameBranch renames a branch in the repository.
// See [Repository.RenameBranch].
func (w *Worktree) RenameBranch(ctx context.Context, req RenameBranchRequest) error {
	return w.repo.RenameBranch(ctx, req)
}

// BranchUpstream reports the upstream branch of a local branch.
// See [Repository.BranchUpstream].
func (w *Worktree) BranchUpstream(ctx context.Context, branch string) (string, error) {
	return w.repo.BranchUpstream(ctx, branch)
}

// SetBranchUpstream sets the upstream ref for a local branch.
// See [Repository.SetBranchUpstream].
func (w *Worktree) SetBranchUpstream(ctx context.Context, branch, upstream string) error {
	return w.repo.SetBranchUpstream(ctx, branch, upstream)
}
