package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/aqwatch/aqwatch/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryAccessor is a minimal in-memory entity store with the guarded swap
// semantics real repositories provide.
type memoryAccessor struct {
	mu    sync.Mutex
	items map[string]Attachment
}

func newMemoryAccessor() *memoryAccessor {
	return &memoryAccessor{items: make(map[string]Attachment)}
}

func (m *memoryAccessor) Load(_ context.Context, id string) (Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.items[id], nil
}

func (m *memoryAccessor) SwapState(_ context.Context, id, fromStateID, toStateID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.items[id]
	if !exists || current.StateID != fromStateID {
		return false, nil
	}

	current.StateID = toStateID
	m.items[id] = current

	return true, nil
}

type failingAuthorizer struct {
	err error
}

func (f *failingAuthorizer) HasGrant(_ context.Context, _, _ string) (bool, error) {
	return false, f.err
}

type executorFixture struct {
	executor *Executor
	workflow *models.Workflow
	accessor *memoryAccessor
	auth     *StaticAuthorizer
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	repo := file.NewPersistence(t.TempDir()).WorkflowRepository()
	graph := NewGraphService(repo)
	grants := NewGrantService(repo)
	logger := slog.New(slog.DiscardHandler)

	wf, err := SeedAlertWorkflow(t.Context(), graph, grants, logger)
	require.NoError(t, err)

	accessor := newMemoryAccessor()
	registry := NewRegistry(logger)
	registry.Register(models.EntityKindAlert, accessor)

	auth := NewStaticAuthorizer()

	return &executorFixture{
		executor: NewExecutor(graph, registry, auth, nil, logger),
		workflow: wf,
		accessor: accessor,
		auth:     auth,
	}
}

func (f *executorFixture) attach(t *testing.T, id string) {
	t.Helper()

	start := f.workflow.StartState()
	require.NotNil(t, start)

	f.accessor.items[id] = Attachment{WorkflowID: f.workflow.ID, StateID: start.ID}
}

func (f *executorFixture) allowAll(actor string) {
	f.auth.Allow(actor, GrantToken(models.EntityKindAlert, models.TransitionAcknowledge))
	f.auth.Allow(actor, GrantToken(models.EntityKindAlert, models.TransitionMute))
}

func TestExecutor_AllowedTransitions_DeclarationOrder(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.attach(t, "alert-1")
	f.allowAll("operator")

	allowed, err := f.executor.AllowedTransitions(t.Context(), EntityRef{Kind: models.EntityKindAlert, ID: "alert-1"}, "operator")
	require.NoError(t, err)
	require.Len(t, allowed, 2)

	assert.Equal(t, models.TransitionAcknowledge, allowed[0].Name)
	assert.Equal(t, models.TransitionMute, allowed[1].Name)
}

func TestExecutor_AllowedTransitions_FiltersByGrant(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.attach(t, "alert-1")
	f.auth.Allow("operator", GrantToken(models.EntityKindAlert, models.TransitionMute))

	allowed, err := f.executor.AllowedTransitions(t.Context(), EntityRef{Kind: models.EntityKindAlert, ID: "alert-1"}, "operator")
	require.NoError(t, err)
	require.Len(t, allowed, 1)

	assert.Equal(t, models.TransitionMute, allowed[0].Name)
}

func TestExecutor_AllowedTransitions_Unattached(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.allowAll("operator")

	allowed, err := f.executor.AllowedTransitions(t.Context(), EntityRef{Kind: models.EntityKindAlert, ID: "alert-1"}, "operator")
	require.NoError(t, err)
	assert.Empty(t, allowed)
}

func TestExecutor_PerformTransition(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.attach(t, "alert-1")
	f.allowAll("operator")

	ref := EntityRef{Kind: models.EntityKindAlert, ID: "alert-1"}

	attachment, err := f.executor.PerformTransition(t.Context(), ref, "operator", models.TransitionAcknowledge)
	require.NoError(t, err)

	acknowledged := f.workflow.StateByName(models.AlertStateAcknowledged)
	require.NotNil(t, acknowledged)
	assert.Equal(t, acknowledged.ID, attachment.StateID)

	// The entity is now in an end state, nothing further may fire.
	allowed, err := f.executor.AllowedTransitions(t.Context(), ref, "operator")
	require.NoError(t, err)
	assert.Empty(t, allowed)

	_, err = f.executor.PerformTransition(t.Context(), ref, "operator", models.TransitionMute)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
}

func TestExecutor_PerformTransition_UnknownName(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.attach(t, "alert-1")
	f.allowAll("operator")

	_, err := f.executor.PerformTransition(t.Context(), EntityRef{Kind: models.EntityKindAlert, ID: "alert-1"}, "operator", "escalate")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
}

func TestExecutor_PerformTransition_PermissionDenied(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.attach(t, "alert-1")

	_, err := f.executor.PerformTransition(t.Context(), EntityRef{Kind: models.EntityKindAlert, ID: "alert-1"}, "viewer", models.TransitionAcknowledge)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.True(t, IsPermissionDenied(err))

	// A denied actor must not move the entity.
	attachment, loadErr := f.accessor.Load(t.Context(), "alert-1")
	require.NoError(t, loadErr)
	assert.Equal(t, f.workflow.StartState().ID, attachment.StateID)
}

func TestExecutor_PerformTransition_Unattached(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.allowAll("operator")

	_, err := f.executor.PerformTransition(t.Context(), EntityRef{Kind: models.EntityKindAlert, ID: "alert-1"}, "operator", models.TransitionAcknowledge)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEntityNotAttached)
}

func TestExecutor_PerformTransition_KindNotRegistered(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)

	_, err := f.executor.PerformTransition(t.Context(), EntityRef{Kind: "invoice", ID: "alert-1"}, "operator", models.TransitionAcknowledge)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKindNotRegistered)
}

func TestExecutor_PerformTransition_StaleGuard(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.attach(t, "alert-1")
	f.allowAll("operator")

	// A concurrent writer moves the entity after the executor read it. The
	// guarded swap rejects the stale source state.
	muted := f.workflow.StateByName(models.AlertStateMuted)
	require.NotNil(t, muted)

	swapped, err := f.accessor.SwapState(t.Context(), "alert-1", f.workflow.StartState().ID, muted.ID)
	require.NoError(t, err)
	require.True(t, swapped)

	swapped, err = f.accessor.SwapState(t.Context(), "alert-1", f.workflow.StartState().ID, muted.ID)
	require.NoError(t, err)
	assert.False(t, swapped)
}

func TestExecutor_AuthorizerFailurePropagates(t *testing.T) {
	t.Parallel()

	repo := file.NewPersistence(t.TempDir()).WorkflowRepository()
	graph := NewGraphService(repo)
	grants := NewGrantService(repo)
	logger := slog.New(slog.DiscardHandler)

	wf, err := SeedAlertWorkflow(t.Context(), graph, grants, logger)
	require.NoError(t, err)

	accessor := newMemoryAccessor()
	accessor.items["alert-1"] = Attachment{WorkflowID: wf.ID, StateID: wf.StartState().ID}

	registry := NewRegistry(logger)
	registry.Register(models.EntityKindAlert, accessor)

	authErr := errors.New("authorization store unreachable")
	executor := NewExecutor(graph, registry, &failingAuthorizer{err: authErr}, nil, logger)

	_, err = executor.PerformTransition(t.Context(), EntityRef{Kind: models.EntityKindAlert, ID: "alert-1"}, "operator", models.TransitionAcknowledge)
	require.Error(t, err)
	assert.ErrorIs(t, err, authErr)
	assert.False(t, IsPermissionDenied(err))
}

func TestRegistry_RegisterIdempotent(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	registry := NewRegistry(logger)

	first := newMemoryAccessor()
	second := newMemoryAccessor()

	registry.Register("alert", first)
	registry.Register("alert", second)

	accessor, err := registry.Accessor("alert")
	require.NoError(t, err)
	assert.Same(t, first, accessor)

	_, err = registry.Accessor("invoice")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKindNotRegistered)

	assert.Equal(t, []string{"alert"}, registry.Kinds())
}
