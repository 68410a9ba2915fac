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

// WorkflowRepository handles workflow graph database operations. Workflows
// are aggregates: states and transitions load and save with the workflow.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// Workflows returns all workflows with their graphs loaded.
func (r *WorkflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT id, name, entity_kind, created_at, updated_at
		FROM workflows
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow := &models.Workflow{}

		err = rows.Scan(&workflow.ID, &workflow.Name, &workflow.EntityKind, &workflow.CreatedAt, &workflow.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		err = r.loadGraph(ctx, workflow)
		if err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

// WorkflowByID returns the workflow with the given id, or nil when absent.
func (r *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return r.workflowBy(ctx, "id", id)
}

// WorkflowByName returns the workflow with the given name, or nil when absent.
func (r *WorkflowRepository) WorkflowByName(ctx context.Context, name string) (*models.Workflow, error) {
	return r.workflowBy(ctx, "name", name)
}

func (r *WorkflowRepository) workflowBy(ctx context.Context, column, value string) (*models.Workflow, error) {
	query := fmt.Sprintf(`
		SELECT id, name, entity_kind, created_at, updated_at
		FROM workflows
		WHERE %s = $1
	`, column)

	workflow := &models.Workflow{}

	err := r.db.QueryRowContext(ctx, query, value).
		Scan(&workflow.ID, &workflow.Name, &workflow.EntityKind, &workflow.CreatedAt, &workflow.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadGraph(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	stateQuery := `
		SELECT id, workflow_id, name, is_start, is_end, position
		FROM workflow_states
		WHERE workflow_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, stateQuery, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow states: %w", err)
	}

	workflow.States = make([]*models.State, 0)

	for rows.Next() {
		state := &models.State{}

		err = rows.Scan(&state.ID, &state.WorkflowID, &state.Name, &state.IsStart, &state.IsEnd, &state.Position)
		if err != nil {
			_ = rows.Close()

			return fmt.Errorf("failed to scan workflow state: %w", err)
		}

		workflow.States = append(workflow.States, state)
	}

	err = rows.Close()
	if err != nil {
		return fmt.Errorf("failed to close state rows: %w", err)
	}

	transitionQuery := `
		SELECT id, workflow_id, source_state_id, dest_state_id, name, position
		FROM workflow_transitions
		WHERE workflow_id = $1
		ORDER BY position
	`

	rows, err = r.db.QueryContext(ctx, transitionQuery, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow transitions: %w", err)
	}

	workflow.Transitions = make([]*models.Transition, 0)

	for rows.Next() {
		transition := &models.Transition{}

		err = rows.Scan(
			&transition.ID,
			&transition.WorkflowID,
			&transition.SourceStateID,
			&transition.DestStateID,
			&transition.Name,
			&transition.Position,
		)
		if err != nil {
			_ = rows.Close()

			return fmt.Errorf("failed to scan workflow transition: %w", err)
		}

		workflow.Transitions = append(workflow.Transitions, transition)
	}

	return rows.Close()
}

// SaveWorkflow upserts the workflow aggregate in one transaction.
func (r *WorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = r.saveWorkflowTx(ctx, transaction, workflow)
	if err != nil {
		_ = transaction.Rollback()

		return err
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow save: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) saveWorkflowTx(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	workflowUpsert := `
		INSERT INTO workflows (id, name, entity_kind, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			entity_kind = EXCLUDED.entity_kind,
			updated_at = EXCLUDED.updated_at
	`

	_, err := tx.ExecContext(ctx, workflowUpsert,
		workflow.ID, workflow.Name, workflow.EntityKind, workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert workflow: %w", err)
	}

	stateUpsert := `
		INSERT INTO workflow_states (id, workflow_id, name, is_start, is_end, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			is_start = EXCLUDED.is_start,
			is_end = EXCLUDED.is_end,
			position = EXCLUDED.position
	`

	for _, state := range workflow.States {
		if state.ID == "" {
			state.ID = uuid.New().String()
		}

		state.WorkflowID = workflow.ID

		_, err = tx.ExecContext(ctx, stateUpsert,
			state.ID, state.WorkflowID, state.Name, state.IsStart, state.IsEnd, state.Position)
		if err != nil {
			return fmt.Errorf("failed to upsert workflow state %q: %w", state.Name, err)
		}
	}

	transitionUpsert := `
		INSERT INTO workflow_transitions (id, workflow_id, source_state_id, dest_state_id, name, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			dest_state_id = EXCLUDED.dest_state_id,
			position = EXCLUDED.position
	`

	for _, transition := range workflow.Transitions {
		if transition.ID == "" {
			transition.ID = uuid.New().String()
		}

		transition.WorkflowID = workflow.ID

		_, err = tx.ExecContext(ctx, transitionUpsert,
			transition.ID,
			transition.WorkflowID,
			transition.SourceStateID,
			transition.DestStateID,
			transition.Name,
			transition.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert workflow transition %q: %w", transition.Name, err)
		}
	}

	return nil
}

// SaveGrants persists grants idempotently by transition.
func (r *WorkflowRepository) SaveGrants(ctx context.Context, grants []*models.Grant) error {
	query := `
		INSERT INTO workflow_grants (id, workflow_id, transition_id, token)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (transition_id) DO NOTHING
	`

	for _, grant := range grants {
		if grant.ID == "" {
			grant.ID = uuid.New().String()
		}

		_, err := r.db.ExecContext(ctx, query, grant.ID, grant.WorkflowID, grant.TransitionID, grant.Token)
		if err != nil {
			return fmt.Errorf("failed to upsert grant for transition %s: %w", grant.TransitionID, err)
		}
	}

	return nil
}

// GrantsByWorkflow returns the stored grants for a workflow.
func (r *WorkflowRepository) GrantsByWorkflow(ctx context.Context, workflowID string) ([]*models.Grant, error) {
	query := `
		SELECT g.id, g.workflow_id, g.transition_id, g.token, g.created_at
		FROM workflow_grants g
		JOIN workflow_transitions t ON t.id = g.transition_id
		WHERE g.workflow_id = $1
		ORDER BY t.position
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	grants := make([]*models.Grant, 0)

	for rows.Next() {
		grant := &models.Grant{}

		err = rows.Scan(&grant.ID, &grant.WorkflowID, &grant.TransitionID, &grant.Token, &grant.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}

		grants = append(grants, grant)
	}

	return grants, rows.Err()
}
