package workflow

import (
	"context"
	"log/slog"

	"github.com/aqwatch/aqwatch/pkg/models"
)

// SeedAlertWorkflow installs the alert lifecycle workflow and its grants.
// It is safe to run on every process start: existing states, transitions and
// grants are reused, never duplicated.
func SeedAlertWorkflow(ctx context.Context, graph *GraphService, grants *GrantService, logger *slog.Logger) (*models.Workflow, error) {
	wf, err := graph.Define(ctx, models.AlertWorkflowName, models.EntityKindAlert)
	if err != nil {
		return nil, err
	}

	_, err = graph.AddState(ctx, wf, models.AlertStateActive, true, false)
	if err != nil {
		return nil, err
	}

	_, err = graph.AddState(ctx, wf, models.AlertStateAcknowledged, false, true)
	if err != nil {
		return nil, err
	}

	_, err = graph.AddState(ctx, wf, models.AlertStateMuted, false, true)
	if err != nil {
		return nil, err
	}

	_, err = graph.AddTransition(ctx, wf, models.AlertStateActive, models.AlertStateAcknowledged, models.TransitionAcknowledge)
	if err != nil {
		return nil, err
	}

	_, err = graph.AddTransition(ctx, wf, models.AlertStateActive, models.AlertStateMuted, models.TransitionMute)
	if err != nil {
		return nil, err
	}

	generated, err := grants.GenerateGrants(ctx, wf)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "alert workflow seeded",
		"workflow_id", wf.ID,
		"states", len(wf.States),
		"transitions", len(wf.Transitions),
		"grants", len(generated),
	)

	return wf, nil
}
