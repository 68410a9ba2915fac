package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/google/uuid"
)

// AlertRepository handles alert database operations, including the two
// concurrency-sensitive primitives of the engine: the lock-or-skip refresh
// (SELECT ... FOR UPDATE SKIP LOCKED) and the guarded state swap used to
// serialize transitions on a single alert.
type AlertRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(db *sql.DB, logger *slog.Logger) *AlertRepository {
	return &AlertRepository{db: db, logger: logger}
}

const alertColumns = `id, rule_id, measurement_id, triggered_at, value, note, workflow_id, workflow_state_id, created_at, updated_at`

func scanAlert(row interface{ Scan(...any) error }) (*models.Alert, error) {
	alert := &models.Alert{}

	var workflowID, stateID sql.NullString

	err := row.Scan(
		&alert.ID,
		&alert.RuleID,
		&alert.MeasurementID,
		&alert.TriggeredAt,
		&alert.Value,
		&alert.Note,
		&workflowID,
		&stateID,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	alert.WorkflowID = workflowID.String
	alert.WorkflowStateID = stateID.String

	return alert, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Alerts returns all alerts, newest trigger first.
func (r *AlertRepository) Alerts(ctx context.Context) ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts ORDER BY triggered_at DESC, id DESC`

	return r.queryAlerts(ctx, query)
}

// AlertsByRule returns the alerts referencing the rule, newest trigger first.
func (r *AlertRepository) AlertsByRule(ctx context.Context, ruleID string) ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE rule_id = $1 ORDER BY triggered_at DESC, id DESC`

	return r.queryAlerts(ctx, query, ruleID)
}

func (r *AlertRepository) queryAlerts(ctx context.Context, query string, args ...any) ([]*models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	alerts := make([]*models.Alert, 0)

	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// AlertByID returns the alert with the given id, or nil when absent.
func (r *AlertRepository) AlertByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	return alert, nil
}

// RefreshActive locks the alert currently in stateID for ruleID with
// SKIP LOCKED semantics, applies mutate under the lock and persists the
// result in the same transaction. ok=false means no active alert exists or a
// concurrent writer already holds its row lock; the caller falls through to
// the create path.
func (r *AlertRepository) RefreshActive(ctx context.Context, ruleID, stateID string, mutate func(*models.Alert)) (*models.Alert, bool, error) {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}

	lockQuery := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE rule_id = $1 AND workflow_state_id = $2
		ORDER BY triggered_at DESC, id DESC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	alert, err := scanAlert(transaction.QueryRowContext(ctx, lockQuery, ruleID, stateID))
	if err != nil {
		_ = transaction.Rollback()

		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to lock active alert: %w", err)
	}

	mutate(alert)
	alert.UpdatedAt = time.Now().UTC()

	updateQuery := `
		UPDATE alerts
		SET measurement_id = $2,
		    triggered_at = $3,
		    value = $4,
		    workflow_id = $5,
		    workflow_state_id = $6,
		    updated_at = $7
		WHERE id = $1
	`

	_, err = transaction.ExecContext(ctx, updateQuery,
		alert.ID,
		alert.MeasurementID,
		alert.TriggeredAt,
		alert.Value,
		nullable(alert.WorkflowID),
		nullable(alert.WorkflowStateID),
		alert.UpdatedAt,
	)
	if err != nil {
		_ = transaction.Rollback()

		return nil, false, fmt.Errorf("failed to refresh alert %s: %w", alert.ID, err)
	}

	err = transaction.Commit()
	if err != nil {
		return nil, false, fmt.Errorf("failed to commit alert refresh: %w", err)
	}

	return alert, true, nil
}

// UpsertByMeasurement inserts the alert under the (rule, measurement)
// uniqueness constraint. An exact re-entry for the same pair refreshes value,
// trigger timestamp and workflow attachment instead of failing.
func (r *AlertRepository) UpsertByMeasurement(ctx context.Context, alert *models.Alert) (*models.Alert, bool, error) {
	now := time.Now().UTC()

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	alert.CreatedAt = now
	alert.UpdatedAt = now

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (rule_id, measurement_id) DO UPDATE SET
			triggered_at = EXCLUDED.triggered_at,
			value = EXCLUDED.value,
			workflow_id = EXCLUDED.workflow_id,
			workflow_state_id = EXCLUDED.workflow_state_id,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + alertColumns + `, (xmax = 0) AS inserted
	`

	row := r.db.QueryRowContext(ctx, query,
		alert.ID,
		alert.RuleID,
		alert.MeasurementID,
		alert.TriggeredAt,
		alert.Value,
		alert.Note,
		nullable(alert.WorkflowID),
		nullable(alert.WorkflowStateID),
		alert.CreatedAt,
		alert.UpdatedAt,
	)

	stored := &models.Alert{}

	var workflowID, stateID sql.NullString

	var inserted bool

	err := row.Scan(
		&stored.ID,
		&stored.RuleID,
		&stored.MeasurementID,
		&stored.TriggeredAt,
		&stored.Value,
		&stored.Note,
		&workflowID,
		&stateID,
		&stored.CreatedAt,
		&stored.UpdatedAt,
		&inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert alert for rule %s: %w", alert.RuleID, err)
	}

	stored.WorkflowID = workflowID.String
	stored.WorkflowStateID = stateID.String

	return stored, inserted, nil
}

// SwapState moves the alert between workflow states only when the source
// guard still matches. The single-statement compare-and-swap is the
// serialization point for concurrent transitions on one alert: the second
// writer either waits for the first's row lock or fails the guard.
func (r *AlertRepository) SwapState(ctx context.Context, id, fromStateID, toStateID string) (bool, error) {
	query := `
		UPDATE alerts
		SET workflow_state_id = $3, updated_at = NOW()
		WHERE id = $1 AND workflow_state_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, fromStateID, toStateID)
	if err != nil {
		return false, fmt.Errorf("failed to swap alert state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected == 1, nil
}
