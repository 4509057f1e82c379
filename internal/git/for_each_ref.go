package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
)

// Ref is a single reference discovered by [Repository.ListRefs].
type Ref struct {
	// Name is the full reference name, e.g. "refs/remotes/origin/main".
	Name string

	// Hash is the object the reference points to.
	Hash Hash
}

// ListRefs lists references matching any of the given patterns
// (e.g. "refs/remotes/origin", "refs/tags"), sorted by name.
func (r *Repository) ListRefs(ctx context.Context, patterns ...string) ([]Ref, error) {
	args := append([]string{
		"for-each-ref",
		"--format=%(objectname)%09%(refname)",
	}, patterns...)

	cmd := r.gitCmd(ctx, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("git for-each-ref: %w", err)
	}

	if err := cmd.Start(r.exec); err != nil {
		return nil, fmt.Errorf("start git for-each-ref: %w", err)
	}

	var refs []Ref
	scan := bufio.NewScanner(out)
	for scan.Scan() {
		line := bytes.TrimSpace(scan.Bytes())
		if len(line) == 0 {
			continue
		}

		hash, name, ok := bytes.Cut(line, []byte{'\t'})
		if !ok {
			continue
		}
		refs = append(refs, Ref{Name: string(name), Hash: Hash(hash)})
	}

	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	if err := cmd.Wait(r.exec); err != nil {
		return nil, fmt.Errorf("git for-each-ref: %w", err)
	}

	return refs, nil
}
