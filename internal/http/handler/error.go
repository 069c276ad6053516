package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"thumbapi/internal/http/middleware"
	"thumbapi/internal/repository"
	"thumbapi/internal/service"
	"thumbapi/internal/thumbnail"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response. message must be safe
// to show to clients.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// serviceErrors maps domain errors to responses. Order matters: the first match wins.
var serviceErrors = []struct {
	err     error
	status  int
	code    string
	message string
}{
	{service.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND", "image not found"},
	{service.ErrIDRequired, fiber.StatusBadRequest, "INVALID_ID", "id is required"},
	{service.ErrReaderNil, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required"},
	{service.ErrUnsupportedType, fiber.StatusBadRequest, "UNSUPPORTED_TYPE", "only jpeg, png and gif images are accepted"},
	{service.ErrTooLarge, fiber.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds upload limit"},
	{service.ErrSizeNotConfigured, fiber.StatusBadRequest, "INVALID_SIZE", "thumbnail size is not configured"},
	{service.ErrNotReady, fiber.StatusConflict, "NOT_READY", "thumbnail is not ready"},
	{thumbnail.ErrJobActive, fiber.StatusConflict, "JOB_ACTIVE", "thumbnails are still being generated"},
	{repository.ErrRecordConflict, fiber.StatusConflict, "CONFLICT", "thumbnail is not in a retryable state"},
	{thumbnail.ErrRegistryFull, fiber.StatusServiceUnavailable, "BUSY", "too many images in progress, retry later"},
	{thumbnail.ErrShuttingDown, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "server is shutting down"},
}

// writeServiceError translates err into the error envelope. Unknown errors are
// logged and answered with a generic 500.
func writeServiceError(c *fiber.Ctx, err error) error {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return writeError(c, m.status, m.code, m.message)
		}
	}
	logrus.WithFields(logrus.Fields{
		"component":  "http",
		"request_id": requestIDFromCtx(c),
		"route":      c.Route().Path,
	}).WithError(err).Error("request failed")
	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusUnauthorized:
			return writeError(c, status, "UNAUTHORIZED", "missing owner identity")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "FILE_TOO_LARGE", "request body too large")
		case fiber.StatusServiceUnavailable:
			return writeError(c, status, "SERVICE_UNAVAILABLE", "service unavailable")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
