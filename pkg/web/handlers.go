package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aqwatch/aqwatch/pkg/alerts"
	"github.com/aqwatch/aqwatch/pkg/ingest"
	"github.com/aqwatch/aqwatch/pkg/models"
	"github.com/aqwatch/aqwatch/pkg/persistence"
	"github.com/aqwatch/aqwatch/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// actorHeader carries the acting identity on transition endpoints.
const actorHeader = "X-Actor"

type APIHandlers struct {
	executor   *workflow.Executor
	graph      *workflow.GraphService
	evaluation *alerts.EvaluationService
	store      persistence.Persistence
	validator  *validator.Validate
}

func NewAPIHandlers(
	executor *workflow.Executor,
	graph *workflow.GraphService,
	evaluation *alerts.EvaluationService,
	store persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		executor:   executor,
		graph:      graph,
		evaluation: evaluation,
		store:      store,
		validator:  validator,
	}
}

// GetTransitions lists the transitions the acting identity may currently
// perform on the entity.
func (h *APIHandlers) GetTransitions(c fiber.Ctx) error {
	actor := c.Get(actorHeader)
	if actor == "" {
		return badRequest(c, "X-Actor header is required")
	}

	ref := workflow.EntityRef{Kind: c.Params("kind"), ID: c.Params("id")}

	allowed, err := h.executor.AllowedTransitions(c.Context(), ref, actor)
	if err != nil {
		return handleTransitionError(c, err)
	}

	options := make([]TransitionOption, 0, len(allowed))
	for _, transition := range allowed {
		options = append(options, TransitionOption{
			Name:  transition.Name,
			Label: TransitionLabel(transition.Name),
		})
	}

	return c.JSON(fiber.Map{
		"kind":        ref.Kind,
		"id":          ref.ID,
		"transitions": options,
	})
}

// PostTransition applies a named transition to the entity. With a `next`
// query parameter the response is a 303 redirect, for plain form posts;
// otherwise the updated attachment is returned as JSON.
func (h *APIHandlers) PostTransition(c fiber.Ctx) error {
	actor := c.Get(actorHeader)
	if actor == "" {
		return badRequest(c, "X-Actor header is required")
	}

	ref := workflow.EntityRef{Kind: c.Params("kind"), ID: c.Params("id")}
	transitionName := c.Params("transition")

	attachment, err := h.executor.PerformTransition(c.Context(), ref, actor, transitionName)
	if err != nil {
		return handleTransitionError(c, err)
	}

	if next := c.Query("next"); next != "" {
		return c.Redirect().Status(fiber.StatusSeeOther).To(next)
	}

	response := TransitionResponse{
		Kind:       ref.Kind,
		ID:         ref.ID,
		WorkflowID: attachment.WorkflowID,
		StateID:    attachment.StateID,
	}

	wf, err := h.graph.WorkflowByID(c.Context(), attachment.WorkflowID)
	if err == nil && wf != nil {
		if state := wf.StateByID(attachment.StateID); state != nil {
			response.State = state.Name
		}
	}

	return c.JSON(response)
}

// GetAlerts lists alerts, newest trigger first.
func (h *APIHandlers) GetAlerts(c fiber.Ctx) error {
	alertList, err := h.store.AlertRepository().Alerts(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"alerts": alertList})
}

// GetRules lists alert rules.
func (h *APIHandlers) GetRules(c fiber.Ctx) error {
	rules, err := h.store.RuleRepository().Rules(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"rules": rules})
}

// PostMeasurement accepts an externally submitted measurement, stores it and
// evaluates it against the active rules. The response reports the alerts the
// measurement touched.
func (h *APIHandlers) PostMeasurement(c fiber.Ctx) error {
	var payload map[string]any
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := ingest.ValidateMeasurementPayload(payload); err != nil {
		return badRequest(c, err.Error())
	}

	var req IngestMeasurementRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	measuredAt, err := time.Parse(time.RFC3339, req.MeasuredAt)
	if err != nil {
		return badRequest(c, "measured_at must be an RFC 3339 timestamp")
	}

	site, err := h.store.ReferenceRepository().SiteByExternalID(c.Context(), req.SiteExternalID)
	if err != nil {
		return internalError(c, err)
	}

	if site == nil {
		return notFound(c, "Site not found")
	}

	pollutant, err := h.store.ReferenceRepository().PollutantByExternalID(c.Context(), req.PollutantExternalID)
	if err != nil {
		return internalError(c, err)
	}

	if pollutant == nil {
		return notFound(c, "Pollutant not found")
	}

	measurement := &models.Measurement{
		SiteID:      site.ID,
		PollutantID: pollutant.ID,
		MeasuredAt:  measuredAt.UTC(),
		Value:       req.Value,
		ExternalID:  req.ExternalID,
	}

	err = h.store.MeasurementRepository().SaveMeasurement(c.Context(), measurement)
	if err != nil {
		return internalError(c, err)
	}

	result, err := h.evaluation.EvaluateMeasurement(c.Context(), measurement)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "aqwatch API is healthy"
	httpStatus := http.StatusOK

	err := h.store.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		message = "aqwatch API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}
