package file

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/google/uuid"
)

const (
	workflowCollection = "workflows"
	grantCollection    = "grants"
)

// WorkflowRepository handles workflow-related file operations. Workflows are
// stored as aggregates: states and transitions live inside the workflow
// record.
type WorkflowRepository struct {
	root string
	mu   sync.Mutex // serializes writes within this process
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

// Workflows returns all stored workflows ordered by name.
func (wr *WorkflowRepository) Workflows(_ context.Context) ([]*models.Workflow, error) {
	workflows, err := readCollection[models.Workflow](wr.root, workflowCollection)
	if err != nil {
		return nil, err
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].Name < workflows[j].Name })

	return workflows, nil
}

// WorkflowByID returns the workflow with the given id, or nil when absent.
func (wr *WorkflowRepository) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	workflow := &models.Workflow{}

	found, err := readRecord(wr.root, workflowCollection, id, workflow)
	if err != nil || !found {
		return nil, err
	}

	return workflow, nil
}

// WorkflowByName returns the workflow with the given name, or nil when absent.
func (wr *WorkflowRepository) WorkflowByName(ctx context.Context, name string) (*models.Workflow, error) {
	workflows, err := wr.Workflows(ctx)
	if err != nil {
		return nil, err
	}

	for _, workflow := range workflows {
		if workflow.Name == name {
			return workflow, nil
		}
	}

	return nil, nil
}

// SaveWorkflow upserts the workflow aggregate.
func (wr *WorkflowRepository) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	for _, state := range workflow.States {
		if state.ID == "" {
			state.ID = uuid.New().String()
		}

		state.WorkflowID = workflow.ID
	}

	for _, transition := range workflow.Transitions {
		if transition.ID == "" {
			transition.ID = uuid.New().String()
		}

		transition.WorkflowID = workflow.ID
	}

	return writeRecord(wr.root, workflowCollection, workflow.ID, workflow)
}

// SaveGrants persists grants keyed by transition id, so re-deriving the grant
// set never duplicates rows.
func (wr *WorkflowRepository) SaveGrants(_ context.Context, grants []*models.Grant) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	for _, grant := range grants {
		existing := &models.Grant{}

		found, err := readRecord(wr.root, grantCollection, grant.TransitionID, existing)
		if err != nil {
			return err
		}

		if found {
			continue
		}

		if grant.ID == "" {
			grant.ID = uuid.New().String()
		}

		if grant.CreatedAt.IsZero() {
			grant.CreatedAt = time.Now().UTC()
		}

		err = writeRecord(wr.root, grantCollection, grant.TransitionID, grant)
		if err != nil {
			return err
		}
	}

	return nil
}

// GrantsByWorkflow returns the stored grants for a workflow in transition
// declaration order where possible.
func (wr *WorkflowRepository) GrantsByWorkflow(_ context.Context, workflowID string) ([]*models.Grant, error) {
	grants, err := readCollection[models.Grant](wr.root, grantCollection)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Grant, 0, len(grants))

	for _, grant := range grants {
		if grant.WorkflowID == workflowID {
			out = append(out, grant)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })

	return out, nil
}
