package persistence_test

import (
	"errors"
	"testing"

	"github.com/aqwatch/aqwatch/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		workflowErr := persistence.NewWorkflowError("GetByID", "workflow-123", persistence.ErrWorkflowNotFound)
		alertErr := persistence.NewAlertError("RefreshActive", "alert-456", persistence.ErrAlertNotFound)

		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.True(t, persistence.IsAlertNotFound(alertErr))

		// Test error unwrapping
		assert.True(t, errors.Is(workflowErr, persistence.ErrWorkflowNotFound))
		assert.True(t, errors.Is(alertErr, persistence.ErrAlertNotFound))
	})

	t.Run("workflow error contains context", func(t *testing.T) {
		err := persistence.NewWorkflowError("SaveWorkflow", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.Contains(t, err.Error(), "SaveWorkflow")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow not found")
	})

	t.Run("alert error prefers rule context when set", func(t *testing.T) {
		err := &persistence.AlertError{Op: "UpsertByMeasurement", RuleID: "rule-9", Err: persistence.ErrDuplicateAlert}

		assert.Contains(t, err.Error(), "rule rule-9")
		assert.True(t, persistence.IsDuplicateAlert(err))
	})
}
