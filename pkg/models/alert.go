package models

import "time"

// Names seeded into the default alert lifecycle workflow.
const (
	AlertWorkflowName = "Air Quality Alert Lifecycle"

	AlertStateActive       = "Active"
	AlertStateAcknowledged = "Acknowledged"
	AlertStateMuted        = "Muted"

	TransitionAcknowledge = "acknowledge"
	TransitionMute        = "mute"
)

// EntityKindAlert tags alerts in the workflow engine's entity-kind registry.
const EntityKindAlert = "alert"

// Alert records a rule breach. It is a workflow-attached entity: WorkflowID
// and WorkflowStateID are empty until the alert is attached, and from then on
// change only through the transition executor or the alert upsert protocol.
// At most one (RuleID, MeasurementID) pair may exist; the one-active-alert-
// per-rule property is soft and self-healing under concurrent evaluation.
type Alert struct {
	ID            string    `json:"id"`
	RuleID        string    `json:"rule_id"        validate:"required"`
	MeasurementID string    `json:"measurement_id" validate:"required"`
	TriggeredAt   time.Time `json:"triggered_at"`
	Value         float64   `json:"value"`
	Note          string    `json:"note,omitempty"`

	WorkflowID      string `json:"workflow_id,omitempty"`
	WorkflowStateID string `json:"workflow_state_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attached reports whether the alert carries a workflow and current state.
func (a *Alert) Attached() bool {
	return a.WorkflowID != "" && a.WorkflowStateID != ""
}
