// Package alerts evaluates measurements against alert rules and manages the
// resulting alerts through their workflow lifecycle.
package alerts

import (
	"context"

	"github.com/aqwatch/aqwatch/pkg/persistence"
	"github.com/aqwatch/aqwatch/pkg/workflow"
)

// Accessor exposes alerts to the workflow engine's entity-kind registry.
type Accessor struct {
	alerts persistence.AlertRepository
}

// NewAccessor creates a workflow accessor over the alert repository.
func NewAccessor(alerts persistence.AlertRepository) *Accessor {
	return &Accessor{alerts: alerts}
}

// Load returns the alert's workflow attachment.
func (a *Accessor) Load(ctx context.Context, id string) (workflow.Attachment, error) {
	alert, err := a.alerts.AlertByID(ctx, id)
	if err != nil {
		return workflow.Attachment{}, err
	}

	if alert == nil {
		return workflow.Attachment{}, &persistence.AlertError{Op: "Load", AlertID: id, Err: persistence.ErrAlertNotFound}
	}

	return workflow.Attachment{WorkflowID: alert.WorkflowID, StateID: alert.WorkflowStateID}, nil
}

// SwapState moves the alert between workflow states under the repository's
// source-state guard.
func (a *Accessor) SwapState(ctx context.Context, id, fromStateID, toStateID string) (bool, error) {
	return a.alerts.SwapState(ctx, id, fromStateID, toStateID)
}
