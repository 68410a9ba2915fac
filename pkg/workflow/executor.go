package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aqwatch/aqwatch/pkg/eventbus"
	"github.com/aqwatch/aqwatch/pkg/events"
	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/aqwatch/aqwatch/pkg/otelhelper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Executor validates and applies named transitions on workflow-attached
// entities. State machine semantics operate per entity instance: transitions
// on one entity serialize at the accessor's guarded swap, entities never
// interact.
type Executor struct {
	graph      *GraphService
	registry   *Registry
	authorizer Authorizer
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewExecutor creates a transition executor. publisher may be nil when no
// event bus is wired.
func NewExecutor(
	graph *GraphService,
	registry *Registry,
	authorizer Authorizer,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		graph:      graph,
		registry:   registry,
		authorizer: authorizer,
		publisher:  publisher,
		logger:     logger,
		tracer:     otel.Tracer("aqwatch/workflow"),
	}
}

// AllowedTransitions returns the transitions the actor may currently perform
// on the entity, in declaration order. It has no side effects and is safe to
// call repeatedly. An unattached entity has no allowed transitions.
func (e *Executor) AllowedTransitions(ctx context.Context, ref EntityRef, actor string) ([]*models.Transition, error) {
	accessor, err := e.registry.Accessor(ref.Kind)
	if err != nil {
		return nil, err
	}

	attachment, err := accessor.Load(ctx, ref.ID)
	if err != nil {
		return nil, err
	}

	if attachment.WorkflowID == "" || attachment.StateID == "" {
		return []*models.Transition{}, nil
	}

	workflow, err := e.graph.WorkflowByID(ctx, attachment.WorkflowID)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, fmt.Errorf("entity %s/%s references unknown workflow %s", ref.Kind, ref.ID, attachment.WorkflowID)
	}

	allowed := make([]*models.Transition, 0)

	for _, transition := range workflow.TransitionsFrom(attachment.StateID) {
		ok, err := e.authorizer.HasGrant(ctx, actor, GrantToken(workflow.EntityKind, transition.Name))
		if err != nil {
			return nil, fmt.Errorf("authorization check failed for %q: %w", transition.Name, err)
		}

		if ok {
			allowed = append(allowed, transition)
		}
	}

	return allowed, nil
}

// PerformTransition applies the named transition to the entity for the actor
// and returns the updated attachment. The read of the current state and the
// guarded write are arranged so two concurrent invocations can never both
// succeed from the same stale source state. No cascading transitions fire.
func (e *Executor) PerformTransition(ctx context.Context, ref EntityRef, actor, transitionName string) (Attachment, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.perform_transition",
		attribute.String(otelhelper.EntityKindKey, ref.Kind),
		attribute.String(otelhelper.EntityIDKey, ref.ID),
		attribute.String(otelhelper.TransitionKey, transitionName),
	)
	defer span.End()

	attachment, err := e.performTransition(ctx, ref, actor, transitionName)
	if err != nil {
		otelhelper.SetError(span, err)

		return Attachment{}, err
	}

	return attachment, nil
}

func (e *Executor) performTransition(ctx context.Context, ref EntityRef, actor, transitionName string) (Attachment, error) {
	accessor, err := e.registry.Accessor(ref.Kind)
	if err != nil {
		return Attachment{}, err
	}

	attachment, err := accessor.Load(ctx, ref.ID)
	if err != nil {
		return Attachment{}, err
	}

	if attachment.WorkflowID == "" || attachment.StateID == "" {
		return Attachment{}, ErrEntityNotAttached
	}

	workflow, err := e.graph.WorkflowByID(ctx, attachment.WorkflowID)
	if err != nil {
		return Attachment{}, err
	}

	if workflow == nil {
		return Attachment{}, fmt.Errorf("entity %s/%s references unknown workflow %s", ref.Kind, ref.ID, attachment.WorkflowID)
	}

	// A transition with the requested name out of a different state is a hard
	// rejection, not a fallback.
	transition := workflow.TransitionFrom(attachment.StateID, transitionName)
	if transition == nil {
		return Attachment{}, ErrTransitionNotAllowed
	}

	ok, err := e.authorizer.HasGrant(ctx, actor, GrantToken(workflow.EntityKind, transition.Name))
	if err != nil {
		return Attachment{}, fmt.Errorf("authorization check failed for %q: %w", transition.Name, err)
	}

	if !ok {
		return Attachment{}, ErrPermissionDenied
	}

	swapped, err := accessor.SwapState(ctx, ref.ID, transition.SourceStateID, transition.DestStateID)
	if err != nil {
		return Attachment{}, err
	}

	if !swapped {
		// A concurrent transition moved the entity first; the expected source
		// no longer matches.
		return Attachment{}, ErrTransitionNotAllowed
	}

	updated := Attachment{WorkflowID: workflow.ID, StateID: transition.DestStateID}

	e.publishTransition(ctx, ref, actor, transition)

	e.logger.InfoContext(ctx, "transition performed",
		"kind", ref.Kind,
		"entity_id", ref.ID,
		"transition", transition.Name,
		"actor", actor,
	)

	return updated, nil
}

func (e *Executor) publishTransition(ctx context.Context, ref EntityRef, actor string, transition *models.Transition) {
	if e.publisher == nil {
		return
	}

	event := events.TransitionPerformed{
		BaseEvent:   events.NewBaseEvent(events.TransitionPerformedEvent),
		EntityKind:  ref.Kind,
		EntityID:    ref.ID,
		Transition:  transition.Name,
		FromStateID: transition.SourceStateID,
		ToStateID:   transition.DestStateID,
		Actor:       actor,
	}

	err := e.publisher.Publish(ctx, ref.ID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish transition event", "error", err)
	}
}
