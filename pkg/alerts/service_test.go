package alerts

import (
	"log/slog"
	"testing"
	"time"

	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/aqwatch/aqwatch/pkg/persistence"
	"github.com/aqwatch/aqwatch/pkg/persistence/file"
	"github.com/aqwatch/aqwatch/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

type serviceFixture struct {
	store    *file.Persistence
	service  *EvaluationService
	executor *workflow.Executor
	workflow *models.Workflow
	rule     *models.AlertRule
	auth     *workflow.StaticAuthorizer
	clock    time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.DiscardHandler)

	graph := workflow.NewGraphService(store.WorkflowRepository())
	grants := workflow.NewGrantService(store.WorkflowRepository())

	wf, err := workflow.SeedAlertWorkflow(t.Context(), graph, grants, logger)
	require.NoError(t, err)

	rule := &models.AlertRule{
		SiteID:      "site-1",
		PollutantID: "pm25",
		Name:        "PM2.5 high",
		ExternalID:  "rule-pm25-high",
		Threshold:   10,
		Comparison:  models.ComparisonAbove,
		Active:      true,
	}
	require.NoError(t, store.RuleRepository().SaveRule(t.Context(), rule))

	registry := workflow.NewRegistry(logger)
	registry.Register(models.EntityKindAlert, NewAccessor(store.AlertRepository()))

	auth := workflow.NewStaticAuthorizer()
	executor := workflow.NewExecutor(graph, registry, auth, nil, logger)

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service := NewEvaluationService(store, graph, nil, logger).WithClock(func() time.Time { return clock })

	return &serviceFixture{
		store:    store,
		service:  service,
		executor: executor,
		workflow: wf,
		rule:     rule,
		auth:     auth,
		clock:    clock,
	}
}

func (fx *serviceFixture) measurement(t *testing.T, externalID string, value *float64, measuredAt time.Time) *models.Measurement {
	t.Helper()

	m := &models.Measurement{
		SiteID:      "site-1",
		PollutantID: "pm25",
		MeasuredAt:  measuredAt,
		Value:       value,
		ExternalID:  externalID,
	}
	require.NoError(t, fx.store.MeasurementRepository().SaveMeasurement(t.Context(), m))

	return m
}

func TestEvaluationService_CreatesAttachedAlert(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(t)
	m := fx.measurement(t, "m-1", f(42), fx.clock)

	result, err := fx.service.EvaluateMeasurement(t.Context(), m)
	require.NoError(t, err)
	require.Len(t, result.Alerts, 1)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Refreshed)

	alert := result.Alerts[0]
	assert.Equal(t, fx.rule.ID, alert.RuleID)
	assert.Equal(t, m.ID, alert.MeasurementID)
	assert.InDelta(t, 42, alert.Value, 0.0001)
	assert.True(t, alert.Attached())
	assert.Equal(t, fx.workflow.ID, alert.WorkflowID)
	assert.Equal(t, fx.workflow.StartState().ID, alert.WorkflowStateID)
	assert.Equal(t, fx.clock, alert.TriggeredAt)
}

func TestEvaluationService_BoundaryTriggers(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(t)
	m := fx.measurement(t, "m-1", f(10), fx.clock)

	result, err := fx.service.EvaluateMeasurement(t.Context(), m)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
}

func TestEvaluationService_BelowThresholdNoAlert(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(t)
	m := fx.measurement(t, "m-1", f(9.9), fx.clock)

	result, err := fx.service.EvaluateMeasurement(t.Context(), m)
	require.NoError(t, err)
	assert.Empty(t, result.Alerts)

	alerts, err := fx.store.AlertRepository().Alerts(t.Context())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluationService_MissingValueSkipped(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(t)
	m := fx.measurement(t, "m-1", nil, fx.clock)

	result, err := fx.service.EvaluateMeasurement(t.Context(), m)
	require.NoError(t, err)
	assert.Empty(t, result.Alerts)
}

func TestEvaluationService_InactiveRuleIgnored(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(t)
	fx.rule.Active = false
	require.NoError(t, fx.store.RuleRepository().SaveRule(t.Context(), fx.rule))

	m := fx.measurement(t, "m-1", f(42), fx.clock)

	result, err := fx.service.EvaluateMeasurement(t.Context(), m)
	require.NoError(t, err)
	assert.Empty(t, result.Alerts)
}

func TestEvaluationService_RefreshesActiveAlertInsteadOfDuplicating(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(t)

	first := fx.measurement(t, "m-1", f(42), fx.clock)
	second := fx.measurement(t, "m-2", f(55), fx.clock.Add(time.Hour))

	result, err := fx.service.EvaluateMeasurement(t.Context(), first)
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)

	created := result.Alerts[0]

	result, err = fx.service.EvaluateMeasurement(t.Context(), second)
	require.NoError(t, err)
	require.Len(t, result.Alerts, 1)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Refreshed)

	// The existing active alert absorbed the new breach.
	assert.Equal(t, created.ID, result.Alerts[0].ID)
	assert.Equal(t, second.ID, result.Alerts[0].MeasurementID)
	assert.InDelta(t, 55, result.Alerts[0].Value, 0.0001)

	alerts, err := fx.store.AlertRepository().Alerts(t.Context())
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestEvaluationService_ReEvaluationIsIdempotent(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(t)
	m := fx.measurement(t, "m-1", f(42), fx.clock)

	_, err := fx.service.EvaluateMeasurement(t.Context(), m)
	require.NoError(t, err)

	result, err := fx.service.EvaluateMeasurement(t.Context(), m)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Refreshed)

	alerts, err := fx.store.AlertRepository().Alerts(t.Context())
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestEvaluationService_NewAlertAfterAcknowledgement(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(t)
	fx.auth.Allow("operator", workflow.GrantToken(models.EntityKindAlert, models.TransitionAcknowledge))

	first := fx.measurement(t, "m-1", f(42), fx.clock)

	result, err := fx.service.EvaluateMeasurement(t.Context(), first)
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)

	ref := workflow.EntityRef{Kind: models.EntityKindAlert, ID: result.Alerts[0].ID}
	_, err = fx.executor.PerformTransition(t.Context(), ref, "operator", models.TransitionAcknowledge)
	require.NoError(t, err)

	// The acknowledged alert is out of the start state, so the next breach
	// opens a fresh one.
	second := fx.measurement(t, "m-2", f(60), fx.clock.Add(time.Hour))

	result, err = fx.service.EvaluateMeasurement(t.Context(), second)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.NotEqual(t, ref.ID, result.Alerts[0].ID)

	alerts, err := fx.store.AlertRepository().Alerts(t.Context())
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestEvaluationService_EvaluateRecent(t *testing.T) {
	t.Parallel()

	fx := newServiceFixture(t)

	fx.measurement(t, "m-old", f(42), fx.clock.Add(-48*time.Hour))
	fx.measurement(t, "m-quiet", f(1), fx.clock.Add(-2*time.Hour))
	fx.measurement(t, "m-new", f(42), fx.clock.Add(-time.Hour))

	// m-old falls outside the window; m-quiet is evaluated but breaches no
	// rule, so only the alerting measurement yields a result.
	results, err := fx.service.EvaluateRecent(t.Context(), 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "m-new", results[0].Measurement.ExternalID)
	assert.Equal(t, 1, results[0].Created)
}

func TestAccessor_LoadMissingAlert(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	accessor := NewAccessor(store.AlertRepository())

	_, err := accessor.Load(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsAlertNotFound(err))
}
