package web

import (
	"errors"

	"github.com/aqwatch/aqwatch/pkg/persistence"
	"github.com/aqwatch/aqwatch/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleTransitionError maps executor errors onto problem responses. A failed
// transition is always reported; the engine never pretends success.
func handleTransitionError(c fiber.Ctx, err error) error {
	switch {
	case workflow.IsPermissionDenied(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("permission_denied").
			WithDetail("actor lacks the grant this transition requires")

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case workflow.IsTransitionNotAllowed(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("transition_not_allowed").
			WithDetail("transition does not apply to the entity's current state")

		return c.Status(fiber.StatusConflict).JSON(problem)

	case workflow.IsEntityNotAttached(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("entity_not_attached").
			WithDetail("entity is not attached to a workflow")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, workflow.ErrKindNotRegistered):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("kind_not_found").
			WithDetail("entity kind not registered")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case persistence.IsAlertNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("alert_not_found").
			WithDetail("alert not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
