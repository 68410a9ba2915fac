package file

import (
	"log/slog"
	"testing"
	"time"

	"github.com/aqwatch/aqwatch/pkg/alerts"
	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/aqwatch/aqwatch/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAlert(t *testing.T, repo *AlertRepository, ruleID, measurementID, stateID string) *models.Alert {
	t.Helper()

	alert, created, err := repo.UpsertByMeasurement(t.Context(), &models.Alert{
		RuleID:          ruleID,
		MeasurementID:   measurementID,
		Value:           42,
		TriggeredAt:     time.Now().UTC(),
		WorkflowID:      "wf-1",
		WorkflowStateID: stateID,
	})
	require.NoError(t, err)
	require.True(t, created)

	return alert
}

func TestAlertRepository_UpsertByMeasurement(t *testing.T) {
	t.Parallel()

	repo := NewAlertRepository(t.TempDir())

	alert := seedAlert(t, repo, "rule-1", "m-1", "st-active")

	// Re-entering the same (rule, measurement) pair refreshes in place.
	refreshed, created, err := repo.UpsertByMeasurement(t.Context(), &models.Alert{
		RuleID:          "rule-1",
		MeasurementID:   "m-1",
		Value:           55,
		TriggeredAt:     time.Now().UTC(),
		WorkflowID:      "wf-1",
		WorkflowStateID: "st-active",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, alert.ID, refreshed.ID)
	assert.InDelta(t, 55.0, refreshed.Value, 0.0001)

	alerts, err := repo.AlertsByRule(t.Context(), "rule-1")
	require.NoError(t, err)
	assert.Len(t, alerts, 1, "no duplicate row for the same measurement")
}

func TestAlertRepository_RefreshActive(t *testing.T) {
	t.Parallel()

	repo := NewAlertRepository(t.TempDir())
	alert := seedAlert(t, repo, "rule-1", "m-1", "st-active")

	refreshed, ok, err := repo.RefreshActive(t.Context(), "rule-1", "st-active", func(a *models.Alert) {
		a.Value = 99
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, alert.ID, refreshed.ID)
	assert.InDelta(t, 99.0, refreshed.Value, 0.0001)
}

func TestAlertRepository_RefreshActive_NoActiveAlert(t *testing.T) {
	t.Parallel()

	repo := NewAlertRepository(t.TempDir())
	seedAlert(t, repo, "rule-1", "m-1", "st-acknowledged")

	_, ok, err := repo.RefreshActive(t.Context(), "rule-1", "st-active", func(*models.Alert) {})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAlertRepository_RefreshActive_SkipsLockedRow(t *testing.T) {
	t.Parallel()

	repo := NewAlertRepository(t.TempDir())
	alert := seedAlert(t, repo, "rule-1", "m-1", "st-active")

	// Simulate a concurrent writer holding the row lock.
	lock := repo.rowLock(alert.ID)
	lock.Lock()
	defer lock.Unlock()

	_, ok, err := repo.RefreshActive(t.Context(), "rule-1", "st-active", func(*models.Alert) {})
	require.NoError(t, err)
	assert.False(t, ok, "lock-or-skip must not wait on the held lock")
}

func TestEvaluation_ConvergesAfterLockContention(t *testing.T) {
	t.Parallel()

	store := NewPersistence(t.TempDir())
	logger := slog.New(slog.DiscardHandler)

	graph := workflow.NewGraphService(store.WorkflowRepository())
	grants := workflow.NewGrantService(store.WorkflowRepository())

	_, err := workflow.SeedAlertWorkflow(t.Context(), graph, grants, logger)
	require.NoError(t, err)

	rule := &models.AlertRule{
		SiteID:      "site-1",
		PollutantID: "pm25",
		Name:        "PM2.5 ceiling",
		ExternalID:  "rule-pm25",
		Threshold:   10,
		Comparison:  models.ComparisonAbove,
		Active:      true,
	}
	require.NoError(t, store.RuleRepository().SaveRule(t.Context(), rule))

	service := alerts.NewEvaluationService(store, graph, nil, logger)

	saveMeasurement := func(externalID string, value float64) *models.Measurement {
		measurement := &models.Measurement{
			SiteID:      "site-1",
			PollutantID: "pm25",
			MeasuredAt:  time.Now().UTC(),
			Value:       &value,
			ExternalID:  externalID,
		}
		require.NoError(t, store.MeasurementRepository().SaveMeasurement(t.Context(), measurement))

		return measurement
	}

	first, err := service.EvaluateMeasurement(t.Context(), saveMeasurement("m-1", 42))
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)

	// A concurrent evaluator holds the active alert's row lock while the
	// second fact arrives: the lock-or-skip read falls through to the create
	// path and a second active alert appears for the same rule.
	lock := store.alertRepo.rowLock(first.Alerts[0].ID)
	lock.Lock()

	second, err := service.EvaluateMeasurement(t.Context(), saveMeasurement("m-2", 60))
	lock.Unlock()
	require.NoError(t, err)
	assert.Equal(t, 1, second.Created)

	duplicated, err := store.alertRepo.Alerts(t.Context())
	require.NoError(t, err)
	require.Len(t, duplicated, 2)

	// With the lock released, the next pass refreshes one of the active
	// alerts instead of opening a third.
	third, err := service.EvaluateMeasurement(t.Context(), saveMeasurement("m-3", 70))
	require.NoError(t, err)
	assert.Equal(t, 0, third.Created)
	assert.Equal(t, 1, third.Refreshed)

	converged, err := store.alertRepo.Alerts(t.Context())
	require.NoError(t, err)
	assert.Len(t, converged, 2)
}

func TestAlertRepository_SwapState(t *testing.T) {
	t.Parallel()

	repo := NewAlertRepository(t.TempDir())
	alert := seedAlert(t, repo, "rule-1", "m-1", "st-active")

	ok, err := repo.SwapState(t.Context(), alert.ID, "st-active", "st-acknowledged")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second swap from the now-stale source state must fail the guard.
	ok, err = repo.SwapState(t.Context(), alert.ID, "st-active", "st-muted")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.AlertByID(t.Context(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "st-acknowledged", stored.WorkflowStateID)
}
