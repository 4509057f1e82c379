// Package wberrors defines the structured error taxonomy shared by every
// workbench component: preconditions, missing references, disallowed
// conflicts, ambiguous lookups, graph-invariant violations, object-store
// I/O failures, and errors bubbling up from external collaborators.
//
// Each error type carries the context a caller needs to act on it (the
// affected OID, path, or candidate list) rather than just a message, and
// exposes a short stable Code for callers that want to branch on kind
// without type-asserting.
package wberrors

import (
	"fmt"
	"strings"
)

// PreconditionError reports that an operation's arguments are mutually
// inconsistent, e.g. squashing a commit into itself.
type PreconditionError struct {
	// Op names the operation that rejected its arguments.
	Op string
	// Reason describes why the arguments are inconsistent.
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Code reports the stable error code for this error kind.
func (e *PreconditionError) Code() string { return "Precondition" }

// NotFoundError reports that a referenced OID, ref, or stack does not exist.
type NotFoundError struct {
	// Kind names the kind of entity that was not found, e.g. "commit", "stack".
	Kind string
	// ID identifies the entity that was looked up.
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Code reports the stable error code for this error kind.
func (e *NotFoundError) Code() string { return "NotFound" }

// ConflictError reports that a cherry-pick produced conflicts in a context
// that disallows them: a workspace pick, or a caller that opted out of
// conflict materialisation.
type ConflictError struct {
	// CommitID is the commit whose cherry-pick conflicted.
	CommitID string
	// Paths lists the conflicting paths, if known.
	Paths []string
}

func (e *ConflictError) Error() string {
	if len(e.Paths) == 0 {
		return fmt.Sprintf("cherry-pick of %s produced conflicts", e.CommitID)
	}
	return fmt.Sprintf("cherry-pick of %s produced conflicts in %s", e.CommitID, strings.Join(e.Paths, ", "))
}

// Code reports the stable error code for this error kind.
func (e *ConflictError) Code() string { return "Conflict" }

// AmbiguityError reports that a short identifier resolved to more than one
// entity.
type AmbiguityError struct {
	// Query is the identifier that was looked up.
	Query string
	// Candidates lists the entities it could refer to.
	Candidates []string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("%q is ambiguous: matches %s", e.Query, strings.Join(e.Candidates, ", "))
}

// Code reports the stable error code for this error kind.
func (e *AmbiguityError) Code() string { return "Ambiguity" }

// GraphInvariantError reports an internal inconsistency discovered by a
// graph's validation pass.
type GraphInvariantError struct {
	// Invariant names the invariant that was violated.
	Invariant string
	// Detail gives diagnostic context, e.g. the offending segment/edge.
	Detail string
}

func (e *GraphInvariantError) Error() string {
	return fmt.Sprintf("graph invariant violated (%s): %s", e.Invariant, e.Detail)
}

// Code reports the stable error code for this error kind.
func (e *GraphInvariantError) Code() string { return "GraphInvariant" }

// IOError wraps an object-database or ref-store failure.
type IOError struct {
	// Op names the operation that failed, e.g. "write tree", "update-ref".
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Code reports the stable error code for this error kind.
func (e *IOError) Code() string { return "IO" }

// ExternalError wraps an error from a collaborator outside the core:
// network calls, an AI assistant, a secret store.
type ExternalError struct {
	// ExternalCode is the short stable code surfaced to the caller, e.g.
	// "NetworkError" or "MissingLoginKeychain".
	ExternalCode string
	// Err is the underlying error, if any.
	Err error
}

func (e *ExternalError) Error() string {
	if e.Err == nil {
		return e.ExternalCode
	}
	return fmt.Sprintf("%s: %s", e.ExternalCode, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// Code reports the stable error code for this error kind.
func (e *ExternalError) Code() string { return e.ExternalCode }
