// Command workbenchd is a thin driver over internal/workbench, exercising
// the commit/discard/absorb/squash/reorder/insert-blank/uncommit
// operations against the repository in the current directory. It is not
// a user-facing CLI: argument handling is deliberately minimal, just
// enough to drive the engine end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/grapheditor"
	"go.wbench.dev/core/internal/hunk"
	"go.wbench.dev/core/internal/silog"
	"go.wbench.dev/core/internal/workbench"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "workbenchd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: workbenchd <status|oplog|commit|discard|absorb|squash|reorder|insert-blank|uncommit> ...")
	}

	log := silog.New(os.Stderr, nil)

	wt, err := git.Open(ctx, "", git.OpenOptions{Log: log})
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	svc := workbench.New(wt, workbench.Options{Log: log})

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "status":
		return cmdStatus(ctx, svc)
	case "oplog":
		return cmdOplog(ctx, svc, rest)
	case "commit":
		return cmdCommit(ctx, svc, rest)
	case "discard":
		return cmdDiscard(ctx, svc, rest)
	case "absorb":
		return cmdAbsorb(ctx, svc, rest)
	case "squash":
		return cmdSquash(ctx, wt, svc, rest)
	case "reorder":
		return cmdReorder(ctx, wt, svc, rest)
	case "insert-blank":
		return cmdInsertBlank(ctx, wt, svc, rest)
	case "uncommit":
		return cmdUncommit(ctx, wt, svc, rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// cmdStatus prints every branch segment currently reachable from HEAD,
// with its commit count.
func cmdStatus(ctx context.Context, svc *workbench.Service) error {
	g, err := svc.Graph(ctx)
	if err != nil {
		return err
	}
	for _, seg := range g.Segments() {
		if seg.RefName == "" {
			continue
		}
		fmt.Printf("%s\t%d commits\n", seg.RefName, len(seg.Commits))
	}
	return nil
}

// cmdOplog prints the recovery snapshots recorded by past operations,
// most recent first, with a relative age. An optional argument caps how
// many entries are printed.
func cmdOplog(ctx context.Context, svc *workbench.Service, args []string) error {
	limit := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("oplog: invalid limit %q: %w", args[0], err)
		}
		limit = n
	}

	entries, err := svc.Oplog(ctx, limit)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%s\n", e.Commit.Short(), e.Age(now), e.Reason)
	}
	return nil
}

func cmdCommit(ctx context.Context, svc *workbench.Service, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: workbenchd commit <branch> <message> <file>...")
	}
	branch, message, paths := args[0], args[1], args[2:]

	branch, err := resolveBranch(ctx, svc, branch)
	if err != nil {
		return err
	}

	changes := make([]hunk.DiffSpec, len(paths))
	for i, p := range paths {
		changes[i] = hunk.DiffSpec{Path: p}
	}

	edits, err := svc.Commit(ctx, workbench.CommitRequest{
		Branch:  branch,
		Changes: changes,
		Message: message,
	})
	if err != nil {
		return err
	}
	return printEdits(edits)
}

func cmdDiscard(ctx context.Context, svc *workbench.Service, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("usage: workbenchd discard <file>...")
	}
	changes := make([]hunk.DiffSpec, len(paths))
	for i, p := range paths {
		changes[i] = hunk.DiffSpec{Path: p}
	}
	return svc.Discard(ctx, changes)
}

func cmdAbsorb(ctx context.Context, svc *workbench.Service, args []string) error {
	var scope workbench.AbsorbScope
	if len(args) > 0 {
		scope.Path = args[0]
	}

	plans, edits, err := svc.Absorb(ctx, scope)
	if err != nil {
		return err
	}
	for _, p := range plans {
		fmt.Printf("absorbed %s into %s\n", p.Path, p.Target.Short())
	}
	return printEdits(edits)
}

func cmdSquash(ctx context.Context, wt *git.Worktree, svc *workbench.Service, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: workbenchd squash <ancestor> <descendant> [message]")
	}
	ancestor, err := wt.PeelToCommit(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolve %q: %w", args[0], err)
	}
	descendant, err := wt.PeelToCommit(ctx, args[1])
	if err != nil {
		return fmt.Errorf("resolve %q: %w", args[1], err)
	}
	var message string
	if len(args) > 2 {
		message = args[2]
	}

	edits, err := svc.Squash(ctx, ancestor, descendant, message)
	if err != nil {
		return err
	}
	return printEdits(edits)
}

func cmdReorder(ctx context.Context, wt *git.Worktree, svc *workbench.Service, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: workbenchd reorder <commit>... (tip first, desired order)")
	}
	order := make([]git.Hash, len(args))
	for i, a := range args {
		h, err := wt.PeelToCommit(ctx, a)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", a, err)
		}
		order[i] = h
	}

	edits, err := svc.Reorder(ctx, workbench.ReorderRequest{Order: order})
	if err != nil {
		return err
	}
	return printEdits(edits)
}

func cmdInsertBlank(ctx context.Context, wt *git.Worktree, svc *workbench.Service, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: workbenchd insert-blank <relative-to> <before|after> [message]")
	}
	relTo, err := wt.PeelToCommit(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolve %q: %w", args[0], err)
	}

	var side grapheditor.Side
	switch args[1] {
	case "before":
		side = grapheditor.Before
	case "after":
		side = grapheditor.After
	default:
		return fmt.Errorf("side must be \"before\" or \"after\", got %q", args[1])
	}

	var message string
	if len(args) > 2 {
		message = args[2]
	}

	hash, edits, err := svc.InsertBlank(ctx, workbench.InsertBlankRequest{
		RelativeTo: relTo,
		Side:       side,
		Message:    message,
	})
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return printEdits(edits)
}

func cmdUncommit(ctx context.Context, wt *git.Worktree, svc *workbench.Service, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: workbenchd uncommit <commit> <file>...")
	}
	commit, err := wt.PeelToCommit(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolve %q: %w", args[0], err)
	}

	paths := args[1:]
	changes := make([]hunk.DiffSpec, len(paths))
	for i, p := range paths {
		changes[i] = hunk.DiffSpec{Path: p}
	}

	edits, err := svc.Uncommit(ctx, workbench.UncommitRequest{Commit: commit, Changes: changes})
	if err != nil {
		return err
	}
	return printEdits(edits)
}

// resolveBranch accepts either a full ref name or a fuzzy short name
// (e.g. "feat" for "refs/heads/feature-login") and returns the matching
// segment's exact ref name.
func resolveBranch(ctx context.Context, svc *workbench.Service, query string) (string, error) {
	if strings.HasPrefix(query, "refs/") {
		return query, nil
	}

	g, err := svc.Graph(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve branch %q: %w", query, err)
	}
	seg, ok := g.FindSegment(query)
	if !ok {
		return "", fmt.Errorf("no branch matches %q", query)
	}
	return seg.RefName, nil
}

func printEdits(edits []grapheditor.RefEdit) error {
	for _, e := range edits {
		fmt.Printf("%s\t%s -> %s\n", e.Ref, e.OldHash.Short(), e.NewHash.Short())
	}
	return nil
}
