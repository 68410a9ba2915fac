// Package workflow implements the generic state-machine engine: the workflow
// graph, the permission binder deriving capability tokens from transitions,
// and the executor that validates and applies transitions on workflow-attached
// entities.
package workflow

import (
	"errors"
	"fmt"
)

// Graph configuration errors. These surface during setup and are intended to
// be fatal: a workflow definition must never silently degrade.
var (
	// ErrWorkflowKindConflict indicates a workflow name is already bound to a
	// different entity kind.
	ErrWorkflowKindConflict = errors.New("workflow is bound to a different entity kind")

	// ErrMultipleStartStates indicates a second start state was added without
	// demoting the existing one.
	ErrMultipleStartStates = errors.New("workflow already has a start state")

	// ErrNoStartState indicates a workflow has no start state configured.
	ErrNoStartState = errors.New("workflow has no start state")

	// ErrUnknownState indicates a transition references a state name that is
	// not registered in the workflow.
	ErrUnknownState = errors.New("unknown workflow state")

	// ErrTransitionConflict indicates a transition was re-added with a
	// different destination.
	ErrTransitionConflict = errors.New("transition already exists with a different destination")
)

// Request-scoped executor errors. These are caught at the endpoint boundary
// and turned into client-visible failures; they are never retried
// automatically.
var (
	// ErrEntityNotAttached indicates the entity carries no workflow or state.
	ErrEntityNotAttached = errors.New("entity is not attached to a workflow")

	// ErrTransitionNotAllowed indicates no transition with the requested name
	// leaves the entity's current state.
	ErrTransitionNotAllowed = errors.New("transition not allowed from current state")

	// ErrPermissionDenied indicates the actor lacks the grant the transition
	// requires.
	ErrPermissionDenied = errors.New("permission denied for transition")

	// ErrKindNotRegistered indicates no accessor is registered for the entity
	// kind.
	ErrKindNotRegistered = errors.New("entity kind not registered")
)

// GraphError wraps graph configuration errors with workflow context.
type GraphError struct {
	Op       string // Operation being performed (e.g., "AddState")
	Workflow string // Workflow name
	Detail   string // Offending state or transition name
	Err      error  // Underlying error
}

func (e *GraphError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %q on workflow %q: %v", e.Op, e.Detail, e.Workflow, e.Err)
	}

	return fmt.Sprintf("%s on workflow %q: %v", e.Op, e.Workflow, e.Err)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

func (e *GraphError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsTransitionNotAllowed checks if an error indicates the transition does not
// apply to the entity's current state.
func IsTransitionNotAllowed(err error) bool {
	return errors.Is(err, ErrTransitionNotAllowed)
}

// IsPermissionDenied checks if an error indicates the actor lacks the
// required grant.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsEntityNotAttached checks if an error indicates the entity has no workflow
// attachment.
func IsEntityNotAttached(err error) bool {
	return errors.Is(err, ErrEntityNotAttached)
}
