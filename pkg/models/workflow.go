// Package models defines the core domain models for workflow-backed alerting.
package models

import "time"

// Workflow is a named state-machine definition bound to exactly one entity kind.
// The graph (states and transitions) is created during setup and treated as
// effectively immutable afterwards.
type Workflow struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"        validate:"required,min=3"`
	EntityKind  string        `json:"entity_kind" validate:"required"`
	States      []*State      `json:"states"`
	Transitions []*Transition `json:"transitions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// State is a named node in a workflow's graph. Exactly one state per workflow
// carries IsStart; any number may carry IsEnd.
type State struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	Name       string `json:"name"     validate:"required"`
	IsStart    bool   `json:"is_start"`
	IsEnd      bool   `json:"is_end"`
	Position   int    `json:"position"` // declaration order within the workflow
}

// Transition is a named directed edge between two states of the same workflow.
// Self-loops are allowed and the graph may contain cycles.
type Transition struct {
	ID            string `json:"id"`
	WorkflowID    string `json:"workflow_id"`
	SourceStateID string `json:"source_state_id"`
	DestStateID   string `json:"dest_state_id"`
	Name          string `json:"name"     validate:"required"`
	Position      int    `json:"position"`
}

// Grant maps one workflow transition to the opaque capability token an actor
// must hold to apply it. Tokens are consumed by an external authorization
// store; the engine only derives and persists them.
type Grant struct {
	ID           string    `json:"id"`
	WorkflowID   string    `json:"workflow_id"`
	TransitionID string    `json:"transition_id"`
	Token        string    `json:"token"`
	CreatedAt    time.Time `json:"created_at"`
}

// StateByName returns the state with the given name, or nil.
func (w *Workflow) StateByName(name string) *State {
	for _, s := range w.States {
		if s.Name == name {
			return s
		}
	}

	return nil
}

// StateByID returns the state with the given id, or nil.
func (w *Workflow) StateByID(id string) *State {
	for _, s := range w.States {
		if s.ID == id {
			return s
		}
	}

	return nil
}

// StartState returns the unique start state, or nil when none is configured.
func (w *Workflow) StartState() *State {
	for _, s := range w.States {
		if s.IsStart {
			return s
		}
	}

	return nil
}

// TransitionsFrom returns the transitions leaving the given state in
// declaration order.
func (w *Workflow) TransitionsFrom(stateID string) []*Transition {
	out := make([]*Transition, 0, len(w.Transitions))

	for _, t := range w.Transitions {
		if t.SourceStateID == stateID {
			out = append(out, t)
		}
	}

	return out
}

// TransitionFrom returns the transition named name leaving the given state,
// or nil. A transition with the same name out of a different state never
// matches.
func (w *Workflow) TransitionFrom(stateID, name string) *Transition {
	for _, t := range w.Transitions {
		if t.SourceStateID == stateID && t.Name == name {
			return t
		}
	}

	return nil
}
