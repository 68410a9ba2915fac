package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aqwatch/aqwatch/pkg/eventbus"
	"github.com/aqwatch/aqwatch/pkg/events"
	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/aqwatch/aqwatch/pkg/otelhelper"
	"github.com/aqwatch/aqwatch/pkg/persistence"
	"github.com/aqwatch/aqwatch/pkg/workflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EvaluationResult reports what one measurement did to the alert table.
type EvaluationResult struct {
	Measurement *models.Measurement `json:"measurement"`
	Alerts      []*models.Alert     `json:"alerts"`
	Created     int                 `json:"created"`
	Refreshed   int                 `json:"refreshed"`
}

// EvaluationService matches measurements against active alert rules and
// drives the alert upsert protocol: refresh the rule's active alert when one
// exists and is not locked by a concurrent evaluator, otherwise create a new
// alert attached at the lifecycle's start state.
type EvaluationService struct {
	rules        persistence.RuleRepository
	alerts       persistence.AlertRepository
	measurements persistence.MeasurementRepository
	graph        *workflow.GraphService
	publisher    eventbus.EventPublisher
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// NewEvaluationService creates an evaluation service. publisher may be nil
// when no event bus is wired.
func NewEvaluationService(
	store persistence.Persistence,
	graph *workflow.GraphService,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *EvaluationService {
	return &EvaluationService{
		rules:        store.RuleRepository(),
		alerts:       store.AlertRepository(),
		measurements: store.MeasurementRepository(),
		graph:        graph,
		publisher:    publisher,
		logger:       logger,
		tracer:       otel.Tracer("aqwatch/alerts"),
		now:          time.Now,
	}
}

// WithClock overrides the service's time source. Intended for tests.
func (s *EvaluationService) WithClock(now func() time.Time) *EvaluationService {
	s.now = now

	return s
}

// EvaluateMeasurement runs the measurement against every active rule bound to
// its (site, pollutant) pair. Measurements without a value are skipped
// without error. A rule breach refreshes the rule's active alert or opens a
// new one; each rule is evaluated independently, so one rule's failure does
// not abort the others before it.
func (s *EvaluationService) EvaluateMeasurement(ctx context.Context, measurement *models.Measurement) (*EvaluationResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "alerts.evaluate_measurement",
		attribute.String(otelhelper.MeasurementIDKey, measurement.ID),
		attribute.String(otelhelper.SiteIDKey, measurement.SiteID),
		attribute.String(otelhelper.PollutantIDKey, measurement.PollutantID),
	)
	defer span.End()

	result := &EvaluationResult{Measurement: measurement, Alerts: []*models.Alert{}}

	if !measurement.HasValue() {
		s.logger.DebugContext(ctx, "skipping measurement without value", "measurement_id", measurement.ID)

		return result, nil
	}

	rules, err := s.rules.ActiveRulesFor(ctx, measurement.SiteID, measurement.PollutantID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	for _, rule := range rules {
		if !rule.IsTriggered(measurement.Value) {
			continue
		}

		alert, created, err := s.upsertAlert(ctx, rule, measurement)
		if err != nil {
			otelhelper.SetError(span, err)

			return nil, &persistence.AlertError{Op: "EvaluateMeasurement", RuleID: rule.ID, Err: err}
		}

		result.Alerts = append(result.Alerts, alert)

		if created {
			result.Created++
		} else {
			result.Refreshed++
		}
	}

	return result, nil
}

// EvaluateRecent evaluates every measurement taken within the trailing
// window, newest first, and returns one result per measurement that produced
// at least one alert. Measurements that triggered nothing are dropped.
func (s *EvaluationService) EvaluateRecent(ctx context.Context, window time.Duration) ([]*EvaluationResult, error) {
	since := s.now().Add(-window)

	measurements, err := s.measurements.RecentMeasurements(ctx, since)
	if err != nil {
		return nil, err
	}

	results := make([]*EvaluationResult, 0, len(measurements))

	for _, measurement := range measurements {
		result, err := s.EvaluateMeasurement(ctx, measurement)
		if err != nil {
			return nil, err
		}

		if len(result.Alerts) == 0 {
			continue
		}

		results = append(results, result)
	}

	return results, nil
}

// upsertAlert applies the two-step upsert: try to refresh the rule's active
// alert under a lock-or-skip read, then fall through to creating a fresh
// alert keyed by (rule, measurement). Under concurrent evaluators the skip
// branch can briefly leave two active alerts for one rule; the next refresh
// pass converges on one, so the race is left alone rather than locked out.
func (s *EvaluationService) upsertAlert(ctx context.Context, rule *models.AlertRule, measurement *models.Measurement) (*models.Alert, bool, error) {
	wf, err := s.graph.WorkflowByName(ctx, models.AlertWorkflowName)
	if err != nil {
		return nil, false, err
	}

	if wf == nil {
		return nil, false, fmt.Errorf("alert workflow %q is not installed", models.AlertWorkflowName)
	}

	start := wf.StartState()
	if start == nil {
		return nil, false, workflow.ErrNoStartState
	}

	triggeredAt := s.now().UTC()

	alert, refreshed, err := s.alerts.RefreshActive(ctx, rule.ID, start.ID, func(a *models.Alert) {
		a.MeasurementID = measurement.ID
		a.Value = *measurement.Value
		a.TriggeredAt = triggeredAt
	})
	if err != nil {
		return nil, false, err
	}

	if refreshed {
		s.publishAlertEvent(ctx, events.AlertRefreshedEvent, alert)
		s.logger.InfoContext(ctx, "alert refreshed", "alert_id", alert.ID, "rule_id", rule.ID, "value", alert.Value)

		return alert, false, nil
	}

	alert, created, err := s.alerts.UpsertByMeasurement(ctx, &models.Alert{
		RuleID:          rule.ID,
		MeasurementID:   measurement.ID,
		TriggeredAt:     triggeredAt,
		Value:           *measurement.Value,
		WorkflowID:      wf.ID,
		WorkflowStateID: start.ID,
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.publishAlertEvent(ctx, events.AlertTriggeredEvent, alert)
		s.logger.InfoContext(ctx, "alert triggered", "alert_id", alert.ID, "rule_id", rule.ID, "value", alert.Value)
	} else {
		s.publishAlertEvent(ctx, events.AlertRefreshedEvent, alert)
		s.logger.InfoContext(ctx, "alert refreshed", "alert_id", alert.ID, "rule_id", rule.ID, "value", alert.Value)
	}

	return alert, created, nil
}

func (s *EvaluationService) publishAlertEvent(ctx context.Context, eventType events.EventType, alert *models.Alert) {
	if s.publisher == nil {
		return
	}

	base := events.NewBaseEvent(eventType)

	var event eventbus.Event
	if eventType == events.AlertTriggeredEvent {
		event = events.AlertTriggered{
			BaseEvent:     base,
			AlertID:       alert.ID,
			RuleID:        alert.RuleID,
			MeasurementID: alert.MeasurementID,
			Value:         alert.Value,
		}
	} else {
		event = events.AlertRefreshed{
			BaseEvent:     base,
			AlertID:       alert.ID,
			RuleID:        alert.RuleID,
			MeasurementID: alert.MeasurementID,
			Value:         alert.Value,
		}
	}

	err := s.publisher.Publish(ctx, alert.ID, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to publish alert event", "error", err, "alert_id", alert.ID)
	}
}
