package object

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.wbench.dev/core/internal/git"
)

// Commit is a Git commit enriched with the workbench header block.
// Unlike [git.CommitTreeRequest], which produces commits git-commit-tree
// understands, Commit's headers (change-id, conflicted count) are
// written directly into the commit object, since commit-tree has no way
// to add them itself.
type Commit struct {
	Hash    git.Hash
	Tree    git.Hash
	Parents []git.Hash

	// Author and Committer are the raw "name <email> timestamp tz"
	// lines, copied verbatim from the source object.
	Author, Committer string

	Headers Headers

	Subject string
	Body    string
}

// Message joins the subject and body the way a commit's raw message is
// stored.
func (c *Commit) Message() string {
	if c.Body == "" {
		return c.Subject
	}
	return c.Subject + "\n\n" + c.Body
}

// CommitterTime parses the Unix timestamp out of the commit's raw
// committer line ("name <email> timestamp tz"). It is used to order
// commits deterministically when two commits are otherwise unordered by
// topology.
func (c *Commit) CommitterTime() time.Time {
	fields := strings.Fields(c.Committer)
	if len(fields) < 2 {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(fields[len(fields)-2], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// ReadCommit reads and parses the commit object at hash.
func ReadCommit(ctx context.Context, repo *git.Repository, hash git.Hash) (*Commit, error) {
	var buf bytes.Buffer
	if err := repo.ReadObject(ctx, git.CommitType, hash, &buf); err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash.Short(), err)
	}

	headerBlock, message, ok := bytes.Cut(buf.Bytes(), []byte("\n\n"))
	if !ok {
		return nil, fmt.Errorf("commit %s: missing header/message separator", hash.Short())
	}

	headers, rest := ParseHeaders(headerBlock)

	c := &Commit{
		Hash:    hash,
		Headers: headers,
	}
	for _, kv := range rest {
		switch kv.Key {
		case "tree":
			c.Tree = git.Hash(kv.Value)
		case "parent":
			c.Parents = append(c.Parents, git.Hash(kv.Value))
		case "author":
			c.Author = kv.Value
		case "committer":
			c.Committer = kv.Value
		}
	}

	subject, body, _ := strings.Cut(strings.TrimRight(string(message), "\n"), "\n\n")
	c.Subject = subject
	c.Body = strings.TrimSpace(body)

	return c, nil
}

// CreateCommitRequest describes a commit to write directly as a Git
// object, carrying workbench headers that git-commit-tree cannot
// itself produce.
type CreateCommitRequest struct {
	Tree    git.Hash
	Parents []git.Hash
	Message string

	// Author and Committer are raw "name <email> timestamp tz" lines.
	Author, Committer string

	Headers Headers
}

// CreateCommit writes a new commit object with the given headers
// embedded directly after the standard tree/parent/author/committer
// lines, and returns its hash.
func CreateCommit(ctx context.Context, repo *git.Repository, req CreateCommitRequest) (git.Hash, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", req.Tree)
	for _, p := range req.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", req.Author)
	fmt.Fprintf(&buf, "committer %s\n", req.Committer)
	buf.WriteString(req.Headers.Render())
	buf.WriteByte('\n')
	buf.WriteString(req.Message)
	if !strings.HasSuffix(req.Message, "\n") {
		buf.WriteByte('\n')
	}

	hash, err := repo.WriteObject(ctx, git.CommitType, &buf)
	if err != nil {
		return git.ZeroHash, fmt.Errorf("write commit: %w", err)
	}
	return hash, nil
}

// ResolvedTreeID reports the tree id downstream diff/apply operations
// should use: the conflict layout's ".auto-resolution" subtree when the
// commit is conflicted, and the commit's own tree otherwise.
//
// See original_source for the corresponding accessor omitted from the
// distilled specification.
func (c *Commit) ResolvedTreeID(ctx context.Context, repo *git.Repository) (git.Hash, error) {
	if !c.Headers.IsConflicted() {
		return c.Tree, nil
	}

	tree, err := ReadConflictTree(ctx, repo, c.Tree)
	if err != nil {
		return git.ZeroHash, fmt.Errorf("resolve conflicted tree: %w", err)
	}
	return tree.AutoResolution, nil
}
