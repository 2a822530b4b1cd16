package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/redflow/redflow/pkg/errs"
)

func statusForKind(kind errs.Kind) (int, string) {
	switch kind {
	case errs.KindInvalidInput:
		return fiber.StatusBadRequest, "invalid_input"
	case errs.KindNotFound:
		return fiber.StatusNotFound, "not_found"
	case errs.KindEmptyContent:
		return fiber.StatusUnprocessableEntity, "empty_content"
	case errs.KindAlreadyInProgress:
		return fiber.StatusConflict, "already_in_progress"
	case errs.KindCircuitOpen:
		return fiber.StatusServiceUnavailable, "circuit_open"
	case errs.KindTimeout:
		return fiber.StatusGatewayTimeout, "timeout"
	case errs.KindTransient, errs.KindGenerationFailure:
		return fiber.StatusBadGateway, "upstream_failure"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

// problemFor renders err as an RFC 7807 problem with the status its kind
// maps to.
func problemFor(c fiber.Ctx, err error) error {
	status, problemType := statusForKind(errs.KindOf(err))

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(err.Error())

	return c.Status(status).JSON(problem)
}
