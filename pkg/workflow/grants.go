package workflow

import (
	"context"
	"fmt"

	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/aqwatch/aqwatch/pkg/persistence"
)

// GrantToken derives the capability token required to apply a transition to
// entities of a kind. It is a pure function: the same (kind, transition) pair
// always yields the same token, so grants can be re-derived idempotently.
func GrantToken(entityKind, transitionName string) string {
	return fmt.Sprintf("apply:%s:%s", transitionName, entityKind)
}

// Authorizer answers whether an actor holds a capability token. How actors
// acquire tokens is delegated to an external authorization store; the engine
// only computes which token a transition requires.
type Authorizer interface {
	HasGrant(ctx context.Context, actor, token string) (bool, error)
}

// GrantService derives and persists one grant per workflow transition.
type GrantService struct {
	workflows persistence.WorkflowRepository
}

// NewGrantService creates a new grant service.
func NewGrantService(workflows persistence.WorkflowRepository) *GrantService {
	return &GrantService{workflows: workflows}
}

// GenerateGrants derives a grant for every transition in the workflow and
// persists the set. Calling it twice yields the same grants without
// duplication or error.
func (s *GrantService) GenerateGrants(ctx context.Context, workflow *models.Workflow) ([]*models.Grant, error) {
	grants := make([]*models.Grant, 0, len(workflow.Transitions))

	for _, transition := range workflow.Transitions {
		grants = append(grants, &models.Grant{
			WorkflowID:   workflow.ID,
			TransitionID: transition.ID,
			Token:        GrantToken(workflow.EntityKind, transition.Name),
		})
	}

	err := s.workflows.SaveGrants(ctx, grants)
	if err != nil {
		return nil, fmt.Errorf("failed to persist grants for workflow %q: %w", workflow.Name, err)
	}

	return s.workflows.GrantsByWorkflow(ctx, workflow.ID)
}

// StaticAuthorizer is an in-memory Authorizer for tests and demos: a map
// from actor to the set of tokens it holds.
type StaticAuthorizer struct {
	grants map[string]map[string]bool
}

// NewStaticAuthorizer creates an empty static authorizer.
func NewStaticAuthorizer() *StaticAuthorizer {
	return &StaticAuthorizer{grants: make(map[string]map[string]bool)}
}

// Allow grants the token to the actor.
func (a *StaticAuthorizer) Allow(actor, token string) {
	if a.grants[actor] == nil {
		a.grants[actor] = make(map[string]bool)
	}

	a.grants[actor][token] = true
}

// HasGrant reports whether the actor holds the token.
func (a *StaticAuthorizer) HasGrant(_ context.Context, actor, token string) (bool, error) {
	return a.grants[actor][token], nil
}
