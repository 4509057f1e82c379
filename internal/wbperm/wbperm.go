// Package wbperm implements the per-repository exclusive write-permission
// token: read-only operations (graph construction, hunk-dependency
// computation, status display) acquire a read token that coexists with
// other readers, while any operation that mutates the working directory,
// the index, or workspace references acquires the write token, which
// excludes every reader and every other writer.
//
// Acquisition blocks until granted or the caller's context is done; there
// is no built-in timeout.
package wbperm

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// maxReaders bounds the number of concurrent readers a [Permission] can
// admit. A writer acquires this many units at once, which is equivalent
// to excluding every reader and every other writer.
const maxReaders = 1 << 30

// Permission is a per-repository read/write gate.
//
// The zero value is not usable; construct one with [New].
type Permission struct {
	sem *semaphore.Weighted
}

// New builds a fresh, unheld permission token.
func New() *Permission {
	return &Permission{sem: semaphore.NewWeighted(maxReaders)}
}

// Read is a held read token. Release it exactly once.
type Read struct {
	perm *Permission
}

// Write is a held write token. Release it exactly once.
type Write struct {
	perm *Permission
}

// AcquireRead blocks until a read token is available or ctx is done.
func (p *Permission) AcquireRead(ctx context.Context) (*Read, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Read{perm: p}, nil
}

// Release returns the read token to the permission's pool.
func (r *Read) Release() {
	r.perm.sem.Release(1)
}

// AcquireWrite blocks until the write token is available (i.e. no readers
// or writers currently hold the permission) or ctx is done.
func (p *Permission) AcquireWrite(ctx context.Context) (*Write, error) {
	if err := p.sem.Acquire(ctx, maxReaders); err != nil {
		return nil, err
	}
	return &Write{perm: p}, nil
}

// Release returns the write token to the permission's pool.
func (w *Write) Release() {
	w.perm.sem.Release(maxReaders)
}

// Registry hands out one [Permission] per repository, identified by its
// Git directory, so that unrelated repositories never contend with each
// other's tokens.
type Registry struct {
	mu    sync.Mutex
	perms map[string]*Permission
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{perms: make(map[string]*Permission)}
}

// For returns the permission token for the repository at gitDir,
// creating one on first use.
func (r *Registry) For(gitDir string) *Permission {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.perms[gitDir]
	if !ok {
		p = New()
		r.perms[gitDir] = p
	}
	return p
}
