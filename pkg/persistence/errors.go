// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRuleNotFound indicates an alert rule was not found by the given identifier.
	ErrRuleNotFound = errors.New("alert rule not found")

	// ErrAlertNotFound indicates an alert was not found by the given identifier.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrMeasurementNotFound indicates a measurement was not found by the given identifier.
	ErrMeasurementNotFound = errors.New("measurement not found")

	// ErrSiteNotFound indicates a monitoring site was not found by the given identifier.
	ErrSiteNotFound = errors.New("site not found")

	// ErrPollutantNotFound indicates a pollutant was not found by the given identifier.
	ErrPollutantNotFound = errors.New("pollutant not found")

	// ErrDuplicateAlert indicates the hard uniqueness constraint on
	// (rule, measurement) rejected an insert.
	ErrDuplicateAlert = errors.New("alert already exists for rule and measurement")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save")
	WorkflowID string // Workflow ID if applicable
	Name       string // Workflow name if applicable
	Err        error  // Underlying error
}

func (e *WorkflowError) Error() string {
	target := e.WorkflowID
	if e.Name != "" {
		target = fmt.Sprintf("%q", e.Name)
	}

	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, target, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// AlertError wraps alert-related errors with additional context.
type AlertError struct {
	Op      string // Operation being performed
	AlertID string // Alert ID if applicable
	RuleID  string // Rule ID if applicable
	Err     error  // Underlying error
}

func (e *AlertError) Error() string {
	target := e.AlertID
	if e.RuleID != "" {
		target = fmt.Sprintf("rule %s", e.RuleID)
	}

	return fmt.Sprintf("%s operation failed for alert %s: %v", e.Op, target, e.Err)
}

func (e *AlertError) Unwrap() error {
	return e.Err
}

func (e *AlertError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewAlertError creates a new alert error with context.
func NewAlertError(op, alertID string, err error) *AlertError {
	return &AlertError{
		Op:      op,
		AlertID: alertID,
		Err:     err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRuleNotFound checks if an error indicates an alert rule was not found.
func IsRuleNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}

// IsAlertNotFound checks if an error indicates an alert was not found.
func IsAlertNotFound(err error) bool {
	return errors.Is(err, ErrAlertNotFound)
}

// IsMeasurementNotFound checks if an error indicates a measurement was not found.
func IsMeasurementNotFound(err error) bool {
	return errors.Is(err, ErrMeasurementNotFound)
}

// IsDuplicateAlert checks if an error indicates the (rule, measurement)
// uniqueness constraint fired.
func IsDuplicateAlert(err error) bool {
	return errors.Is(err, ErrDuplicateAlert)
}
