package serverutils

import (
	"errors"

	"ai-memory-agent-be/pkg/agent"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	var (
		fiberErr  *fiber.Error
		reqErr    *RequestValidationError
		validErr  *agent.ValidationError
		notFound  *agent.NotFoundError
		oracleErr *agent.OracleError
	)
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &reqErr):
		return fiber.StatusBadRequest
	case errors.As(err, &validErr):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &oracleErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := StatusFor(err)
		body := ErrorResponse(code, err.Error())
		var reqErr *RequestValidationError
		if errors.As(err, &reqErr) {
			body.Message = "Validation failed"
			body.Errors = reqErr.Fields
		}
		return ctx.Status(code).JSON(body)
	}
}
