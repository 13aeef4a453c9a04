package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/creatorhub/escrow-ledger/internal/apperr"
)

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

// ErrorHandler renders domain errors as JSON with the status their kind maps to.
// Internal errors are logged and their detail is hidden from the caller.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(errorResponse{Error: fe.Message, Kind: "http"})
		}

		kind := apperr.KindOf(err)
		message := err.Error()
		if kind == apperr.KindInternal {
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.String("request_id", CurrentRequestID(c)), slog.Any("error", err))
			message = "internal error"
		}
		return c.Status(errorStatus(err)).JSON(errorResponse{
			Error:     message,
			Kind:      kind.String(),
			Retryable: apperr.IsRetryable(err),
		})
	}
}
