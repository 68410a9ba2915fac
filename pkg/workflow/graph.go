package workflow

import (
	"context"

	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/aqwatch/aqwatch/pkg/persistence"
)

// GraphService maintains workflow definitions. All operations are idempotent
// so setup code may run on every process start; conflicting redefinitions
// fail fast instead of silently rewriting the graph.
type GraphService struct {
	workflows persistence.WorkflowRepository
}

// NewGraphService creates a new graph service.
func NewGraphService(workflows persistence.WorkflowRepository) *GraphService {
	return &GraphService{workflows: workflows}
}

// Define returns the workflow with the given name, creating it when absent.
// An existing workflow bound to a different entity kind is a configuration
// conflict, never rebound.
func (g *GraphService) Define(ctx context.Context, name, entityKind string) (*models.Workflow, error) {
	existing, err := g.workflows.WorkflowByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if existing.EntityKind != entityKind {
			return nil, &GraphError{Op: "Define", Workflow: name, Detail: entityKind, Err: ErrWorkflowKindConflict}
		}

		return existing, nil
	}

	workflow := &models.Workflow{
		Name:        name,
		EntityKind:  entityKind,
		States:      []*models.State{},
		Transitions: []*models.Transition{},
	}

	err = g.workflows.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// AddState registers a state, idempotently by (workflow, name). Adding a
// second start state without demoting the existing one is rejected.
func (g *GraphService) AddState(ctx context.Context, workflow *models.Workflow, name string, isStart, isEnd bool) (*models.State, error) {
	if existing := workflow.StateByName(name); existing != nil {
		return existing, nil
	}

	if isStart {
		if start := workflow.StartState(); start != nil {
			return nil, &GraphError{Op: "AddState", Workflow: workflow.Name, Detail: name, Err: ErrMultipleStartStates}
		}
	}

	state := &models.State{
		WorkflowID: workflow.ID,
		Name:       name,
		IsStart:    isStart,
		IsEnd:      isEnd,
		Position:   len(workflow.States),
	}

	workflow.States = append(workflow.States, state)

	err := g.workflows.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return state, nil
}

// AddTransition registers a directed edge between two named states,
// idempotently by (workflow, source, name). Re-adding the same transition
// with a different destination is a conflict, never an overwrite.
func (g *GraphService) AddTransition(ctx context.Context, workflow *models.Workflow, sourceName, destName, transitionName string) (*models.Transition, error) {
	source := workflow.StateByName(sourceName)
	if source == nil {
		return nil, &GraphError{Op: "AddTransition", Workflow: workflow.Name, Detail: sourceName, Err: ErrUnknownState}
	}

	dest := workflow.StateByName(destName)
	if dest == nil {
		return nil, &GraphError{Op: "AddTransition", Workflow: workflow.Name, Detail: destName, Err: ErrUnknownState}
	}

	if existing := workflow.TransitionFrom(source.ID, transitionName); existing != nil {
		if existing.DestStateID != dest.ID {
			return nil, &GraphError{Op: "AddTransition", Workflow: workflow.Name, Detail: transitionName, Err: ErrTransitionConflict}
		}

		return existing, nil
	}

	transition := &models.Transition{
		WorkflowID:    workflow.ID,
		SourceStateID: source.ID,
		DestStateID:   dest.ID,
		Name:          transitionName,
		Position:      len(workflow.Transitions),
	}

	workflow.Transitions = append(workflow.Transitions, transition)

	err := g.workflows.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return transition, nil
}

// StartState returns the workflow's unique start state.
func (g *GraphService) StartState(workflow *models.Workflow) (*models.State, error) {
	start := workflow.StartState()
	if start == nil {
		return nil, &GraphError{Op: "StartState", Workflow: workflow.Name, Err: ErrNoStartState}
	}

	return start, nil
}

// WorkflowByID loads a workflow definition by id.
func (g *GraphService) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return g.workflows.WorkflowByID(ctx, id)
}

// WorkflowByName loads a workflow definition by name.
func (g *GraphService) WorkflowByName(ctx context.Context, name string) (*models.Workflow, error) {
	return g.workflows.WorkflowByName(ctx, name)
}
