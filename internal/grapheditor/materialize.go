package grapheditor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.wbench.dev/core/internal/git"
	"go.wbench.dev/core/internal/object"
	"go.wbench.dev/core/internal/wbconfig"
	"go.wbench.dev/core/internal/wberrors"
)

// syntheticName and syntheticEmail identify commits the editor itself
// authors: blank commits and the workspace merge.
const (
	syntheticName  = "workbench"
	syntheticEmail = "workbench@localhost"
)

// RefEdit is one reference update produced by materializing an Editor,
// either applied directly (Materialize) or returned for the caller to
// apply later (MaterializeWithoutCheckout).
type RefEdit struct {
	// Ref is the fully qualified reference name.
	Ref string

	// NewHash is the commit the reference should point to.
	NewHash git.Hash

	// OldHash is the reference's value at the start of materialization,
	// used as a compare-and-swap guard.
	OldHash git.Hash

	// Gerrit reports that this edit should be pushed to the Gerrit
	// code-review refspec (refs/for/<branch>) rather than updating a
	// local branch ref directly.
	Gerrit bool
}

// materializeState threads the per-run bookkeeping Materialize needs:
// the already-written commit per producing step, the squash redirects,
// and the workbench config governing signing and Gerrit mode.
type materializeState struct {
	cfg          wbconfig.Config
	commits      map[Selector]git.Hash
	squashTarget map[Selector]Selector // parent step -> step that absorbs it
}

// Materialize writes every rebased step as a real commit object, signs
// commits when configured to, updates every reference a [StepReference]
// step names, and returns the resulting edits.
//
// The single permitted workspace-pick step must never be conflicted and
// must have only [StepReference] parents; either violation fails the
// whole materialization rather than writing a partial result.
func (e *Editor) Materialize(ctx context.Context) ([]RefEdit, error) {
	edits, err := e.materialize(ctx, true)
	if err != nil {
		return nil, err
	}
	return edits, nil
}

// MaterializeWithoutCheckout behaves like Materialize but does not write
// any reference: it returns the edits the caller is responsible for
// applying (e.g. after additional validation, or batched with edits from
// elsewhere).
func (e *Editor) MaterializeWithoutCheckout(ctx context.Context) ([]RefEdit, error) {
	return e.materialize(ctx, false)
}

func (e *Editor) materialize(ctx context.Context, applyRefs bool) ([]RefEdit, error) {
	if e.rebased == nil {
		if err := e.Rebase(ctx); err != nil {
			return nil, err
		}
	}

	if err := e.checkWorkspaceDiscipline(); err != nil {
		return nil, err
	}

	cfg, err := wbconfig.Load(ctx, e.repo)
	if err != nil {
		return nil, fmt.Errorf("load workbench configuration: %w", err)
	}

	st := &materializeState{
		cfg:          cfg,
		commits:      make(map[Selector]git.Hash, len(e.steps)),
		squashTarget: make(map[Selector]Selector),
	}
	for i, step := range e.steps {
		if step.Kind == StepSquashIntoPreceding && len(step.Parents) == 1 {
			st.squashTarget[step.Parents[0]] = Selector{id: i + 1}
		}
	}

	var edits []RefEdit
	for _, sel := range e.topoOrder() {
		step, _ := e.Step(sel)
		switch step.Kind {
		case StepNone:
			// Produces nothing; consumers resolve through it.
		case StepPick:
			if _, squashed := st.squashTarget[sel]; squashed {
				continue
			}
			if err := e.materializePick(ctx, st, sel, step); err != nil {
				return nil, err
			}
		case StepSquashIntoPreceding:
			if err := e.materializeSquash(ctx, st, sel, step); err != nil {
				return nil, err
			}
		case StepMerge:
			if err := e.materializeMerge(ctx, st, sel, step); err != nil {
				return nil, err
			}
		case StepReference:
			edit, err := e.materializeReference(ctx, st, step)
			if err != nil {
				return nil, err
			}
			edits = append(edits, edit)
		default:
			return nil, fmt.Errorf("materialize: unknown step kind %v", step.Kind)
		}
	}

	if applyRefs {
		for _, edit := range edits {
			if err := e.applyRefEdit(ctx, edit); err != nil {
				return nil, err
			}
		}
	}

	e.lastCommits = st.commits

	return edits, nil
}

// checkWorkspaceDiscipline enforces the two invariants that apply only
// to the single permitted workspace-pick step: every parent must be a
// reference (nothing else may feed the workspace), and it must never be
// allowed to carry a conflict forward.
func (e *Editor) checkWorkspaceDiscipline() error {
	if e.workspace.IsZero() {
		return nil
	}

	step, ok := e.Step(e.workspace)
	if !ok {
		return nil
	}

	for _, p := range step.Parents {
		parentStep, ok := e.Step(p)
		if !ok || parentStep.Kind != StepReference {
			return &wberrors.PreconditionError{
				Op:     "materialize",
				Reason: "workspace commit has parents that are not references",
			}
		}
	}

	if res, ok := e.rebased[e.workspace]; ok && res.Conflicted {
		return &wberrors.ConflictError{
			CommitID: "workspace",
			Paths:    nil,
		}
	}

	return nil
}

// topoOrder returns every step selector in an order where a step always
// appears after all of its parents.
func (e *Editor) topoOrder() []Selector {
	visited := make(map[Selector]bool, len(e.steps))
	order := make([]Selector, 0, len(e.steps))

	var visit func(sel Selector)
	visit = func(sel Selector) {
		if sel.IsZero() || visited[sel] {
			return
		}
		visited[sel] = true
		step, ok := e.Step(sel)
		if !ok {
			return
		}
		for _, p := range step.Parents {
			visit(p)
		}
		order = append(order, sel)
	}

	for i := range e.steps {
		visit(Selector{id: i + 1})
	}
	return order
}

// resolveParentCommit finds the materialized commit a selector should be
// used as a parent hash for, passing through tombstoned and reference
// steps. By the time this runs (topological order), every Pick/Merge
// step it can reach already has an entry in st.commits.
func (e *Editor) resolveParentCommit(sel Selector, st *materializeState) (git.Hash, error) {
	if sel.IsZero() {
		return git.ZeroHash, nil
	}
	if h, ok := st.commits[sel]; ok {
		return h, nil
	}

	step, ok := e.Step(sel)
	if !ok {
		return git.ZeroHash, fmt.Errorf("resolve parent commit: invalid selector")
	}

	switch step.Kind {
	case StepNone:
		if len(step.Parents) == 0 {
			return git.ZeroHash, nil
		}
		return e.resolveParentCommit(step.Parents[0], st)
	case StepReference:
		return e.resolveParentCommit(step.Parents[0], st)
	default:
		return git.ZeroHash, fmt.Errorf("step %d has not been materialized yet", sel.id)
	}
}

func (e *Editor) parentCommits(sel Selector, st *materializeState) ([]git.Hash, error) {
	step, _ := e.Step(sel)
	parents := make([]git.Hash, 0, len(step.Parents))
	for _, p := range step.Parents {
		h, err := e.resolveParentCommit(p, st)
		if err != nil {
			return nil, err
		}
		if h != git.ZeroHash && h != "" {
			parents = append(parents, h)
		}
	}
	return parents, nil
}

// stepMessage returns step's commit message: its own override, the
// original commit's message when it replays one, or a fixed placeholder
// for a synthetic blank commit.
func (e *Editor) stepMessage(ctx context.Context, step Step) (string, error) {
	if step.Message != "" {
		return step.Message, nil
	}
	if step.CommitID == "" {
		return "blank commit", nil
	}
	c, err := object.ReadCommit(ctx, e.repo, step.CommitID)
	if err != nil {
		return "", fmt.Errorf("read original message: %w", err)
	}
	return c.Message(), nil
}

// stepSignatures returns the raw author/committer lines a materialized
// commit for step should carry: the original commit's lines when step
// replays one, or a freshly stamped synthetic identity otherwise.
func (e *Editor) stepSignatures(ctx context.Context, step Step) (author, committer string, err error) {
	if step.CommitID != "" {
		c, err := object.ReadCommit(ctx, e.repo, step.CommitID)
		if err != nil {
			return "", "", fmt.Errorf("read original signatures: %w", err)
		}
		return c.Author, c.Committer, nil
	}
	now := rawSignature(syntheticName, syntheticEmail, time.Now())
	return now, now, nil
}

func (e *Editor) materializePick(ctx context.Context, st *materializeState, sel Selector, step Step) error {
	res, ok := e.rebased[sel]
	if !ok {
		return fmt.Errorf("step %d was not rebased", sel.id)
	}

	parents, err := e.parentCommits(sel, st)
	if err != nil {
		return err
	}

	message, err := e.stepMessage(ctx, step)
	if err != nil {
		return err
	}
	author, committer, err := e.stepSignatures(ctx, step)
	if err != nil {
		return err
	}

	changeID := step.ChangeID
	if changeID.IsZero() {
		changeID = object.NewChangeID()
	}

	tree := res.ResolvedTree
	conflictedFiles := 0
	if res.Conflicted {
		ct, err := object.WriteConflictTree(ctx, e.repo, res.Conflict)
		if err != nil {
			return fmt.Errorf("write conflict tree: %w", err)
		}
		tree = ct
		conflictedFiles = len(res.Conflict.Files.AncestorEntries) +
			len(res.Conflict.Files.OurEntries) + len(res.Conflict.Files.TheirEntries)
	}

	hash, err := e.writeCommit(ctx, st, commitSpec{
		tree:            tree,
		parents:         parents,
		message:         message,
		author:          author,
		committer:       committer,
		changeID:        changeID,
		conflictedFiles: conflictedFiles,
	})
	if err != nil {
		return err
	}
	st.commits[sel] = hash
	return nil
}

// materializeSquash folds a squash step and its parent (already skipped
// in the main loop) into a single commit: the squash step's rebased
// tree (which already carries both diffs, since rebase chained them),
// the parent's message followed by the squash step's own, and the
// grandparent as the resulting commit's parent.
func (e *Editor) materializeSquash(ctx context.Context, st *materializeState, sel Selector, step Step) error {
	if len(step.Parents) != 1 {
		return &wberrors.PreconditionError{Op: "squash", Reason: "squash step must have exactly one parent"}
	}
	parentSel := step.Parents[0]
	parentStep, ok := e.Step(parentSel)
	if !ok {
		return fmt.Errorf("squash: invalid parent selector")
	}

	res, ok := e.rebased[sel]
	if !ok {
		return fmt.Errorf("step %d was not rebased", sel.id)
	}
	if res.Conflicted {
		return &wberrors.ConflictError{CommitID: step.CommitID.String()}
	}

	grandparents, err := e.parentCommits(parentSel, st)
	if err != nil {
		return err
	}

	parentMessage, err := e.stepMessage(ctx, parentStep)
	if err != nil {
		return err
	}
	ownMessage, err := e.stepMessage(ctx, step)
	if err != nil {
		return err
	}
	message := parentMessage
	if ownMessage != "" {
		message = strings.TrimRight(parentMessage, "\n") + "\n\n" + ownMessage
	}

	author, committer, err := e.stepSignatures(ctx, step)
	if err != nil {
		return err
	}

	changeID := parentStep.ChangeID
	if changeID.IsZero() {
		changeID = object.NewChangeID()
	}

	hash, err := e.writeCommit(ctx, st, commitSpec{
		tree:      res.ResolvedTree,
		parents:   grandparents,
		message:   message,
		author:    author,
		committer: committer,
		changeID:  changeID,
	})
	if err != nil {
		return err
	}
	st.commits[sel] = hash
	st.commits[parentSel] = hash
	return nil
}

func (e *Editor) materializeMerge(ctx context.Context, st *materializeState, sel Selector, step Step) error {
	res, ok := e.rebased[sel]
	if !ok {
		return fmt.Errorf("step %d was not rebased", sel.id)
	}
	if res.Conflicted && (step.Workspace || !step.Conflictable) {
		return &wberrors.ConflictError{CommitID: fmt.Sprintf("merge step %d", sel.id)}
	}

	parents, err := e.parentCommits(sel, st)
	if err != nil {
		return err
	}

	message, err := e.stepMessage(ctx, step)
	if err != nil {
		return err
	}
	if message == "blank commit" && step.Workspace {
		message = "workspace"
	}
	author, committer, err := e.stepSignatures(ctx, step)
	if err != nil {
		return err
	}

	tree := res.ResolvedTree
	conflictedFiles := 0
	if res.Conflicted {
		ct, err := object.WriteConflictTree(ctx, e.repo, res.Conflict)
		if err != nil {
			return fmt.Errorf("write conflict tree: %w", err)
		}
		tree = ct
		conflictedFiles = len(res.Conflict.Files.AncestorEntries) +
			len(res.Conflict.Files.OurEntries) + len(res.Conflict.Files.TheirEntries)
	}

	changeID := step.ChangeID
	if changeID.IsZero() {
		changeID = object.NewChangeID()
	}

	hash, err := e.writeCommit(ctx, st, commitSpec{
		tree:            tree,
		parents:         parents,
		message:         message,
		author:          author,
		committer:       committer,
		changeID:        changeID,
		conflictedFiles: conflictedFiles,
	})
	if err != nil {
		return err
	}
	st.commits[sel] = hash
	return nil
}

func (e *Editor) materializeReference(ctx context.Context, st *materializeState, step Step) (RefEdit, error) {
	if len(step.Parents) != 1 {
		return RefEdit{}, &wberrors.GraphInvariantError{
			Invariant: "reference-arity",
			Detail:    fmt.Sprintf("reference %q must have exactly one parent", step.RefName),
		}
	}
	hash, err := e.resolveParentCommit(step.Parents[0], st)
	if err != nil {
		return RefEdit{}, err
	}

	old, err := e.repo.PeelToCommit(ctx, step.RefName)
	if err != nil {
		old = git.ZeroHash
	}

	return RefEdit{
		Ref:     step.RefName,
		NewHash: hash,
		OldHash: old,
		Gerrit:  st.cfg.GerritMode,
	}, nil
}

func (e *Editor) applyRefEdit(ctx context.Context, edit RefEdit) error {
	if edit.Gerrit {
		refspec := fmt.Sprintf("%s:refs/for/%s", edit.NewHash, strings.TrimPrefix(edit.Ref, "refs/heads/"))
		if err := e.repo.Push(ctx, git.PushOptions{Refspec: git.Refspec(refspec)}); err != nil {
			return fmt.Errorf("push %s to gerrit: %w", edit.Ref, err)
		}
		return nil
	}

	if err := e.repo.SetRef(ctx, git.SetRefRequest{
		Ref:     edit.Ref,
		Hash:    edit.NewHash,
		OldHash: edit.OldHash,
	}); err != nil {
		return fmt.Errorf("update-ref %s: %w", edit.Ref, err)
	}
	return nil
}

// commitSpec is the normalized input to writeCommit, gathered by each of
// the kind-specific materialize* helpers above.
type commitSpec struct {
	tree            git.Hash
	parents         []git.Hash
	message         string
	author          string
	committer       string
	changeID        object.ChangeID
	conflictedFiles int
}

// writeCommit writes spec as a commit object carrying workbench headers.
// When the repository is configured to sign commits, it first asks Git
// to sign an ordinary (header-free) commit built from the same tree,
// parents, authorship and message, then splices the resulting signature
// into the header-bearing object it actually writes.
//
// The signature therefore covers the standard commit fields but not the
// workbench headers layered in afterwards; see the design notes for why
// this is the best available tradeoff short of computing the signature
// ourselves.
//
// If signing fails, signing is disabled for the remainder of this
// Materialize call and locally in the repository's configuration, and a
// warning is logged; the commit is written unsigned.
func (e *Editor) writeCommit(ctx context.Context, st *materializeState, spec commitSpec) (git.Hash, error) {
	headers := object.Headers{
		Version:         object.HeadersVersion,
		ChangeID:        spec.changeID,
		ConflictedFiles: spec.conflictedFiles,
	}

	if st.cfg.SignCommits {
		sig, err := e.signCommit(ctx, spec)
		if err != nil {
			e.repo.Log().Warnf("commit signing failed, disabling workbench.signcommits locally: %v", err)
			if setErr := e.repo.Config().Set(ctx, "workbench.signcommits", "false"); setErr != nil {
				e.repo.Log().Warnf("could not disable workbench.signcommits locally: %v", setErr)
			}
			st.cfg.SignCommits = false
		} else {
			headers = headers.WithSignature(sig)
		}
	}

	return object.CreateCommit(ctx, e.repo, object.CreateCommitRequest{
		Tree:      spec.tree,
		Parents:   spec.parents,
		Message:   spec.message,
		Author:    spec.author,
		Committer: spec.committer,
		Headers:   headers,
	})
}

// signCommit asks Git to build and sign an ordinary commit with spec's
// content, then extracts and returns its gpgsig header value.
func (e *Editor) signCommit(ctx context.Context, spec commitSpec) (string, error) {
	author := signatureFromRaw(spec.author)
	committer := signatureFromRaw(spec.committer)

	hash, err := e.repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      spec.tree,
		Message:   spec.message,
		Parents:   spec.parents,
		Author:    &author,
		Committer: &committer,
		Sign:      true,
	})
	if err != nil {
		return "", err
	}

	c, err := object.ReadCommit(ctx, e.repo, hash)
	if err != nil {
		return "", fmt.Errorf("read signed commit: %w", err)
	}
	sig, ok := c.Headers.Signature()
	if !ok {
		return "", fmt.Errorf("signed commit carries no gpgsig header")
	}
	return sig, nil
}

// rawSignature formats name/email/time the way Git writes commit
// author/committer lines.
func rawSignature(name, email string, at time.Time) string {
	return fmt.Sprintf("%s <%s> %d %s", name, email, at.Unix(), at.Format("-0700"))
}

// signatureFromRaw parses a "name <email> unixtime tz" commit header
// value back into a [git.Signature].
func signatureFromRaw(raw string) git.Signature {
	lt := strings.LastIndexByte(raw, '<')
	gt := strings.LastIndexByte(raw, '>')
	if lt < 0 || gt < 0 || gt < lt {
		return git.Signature{Name: raw}
	}

	name := strings.TrimSpace(raw[:lt])
	email := raw[lt+1 : gt]

	var at time.Time
	if fields := strings.Fields(strings.TrimSpace(raw[gt+1:])); len(fields) > 0 {
		if sec, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			at = time.Unix(sec, 0).UTC()
		}
	}

	return git.Signature{Name: name, Email: email, Time: at}
}
