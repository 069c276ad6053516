package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Logger logs each HTTP request as one structured entry on the standard logrus logger.
func Logger() fiber.Handler {
	return LoggerWith(logrus.StandardLogger())
}

// LoggerWith logs through l. Fields: request_id, owner_id, method, path, route,
// status, latency_ms. Server errors log at error level, client errors at warn.
func LoggerWith(l *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		rid, _ := c.Locals(RequestIDLocalKey).(string)
		owner, _ := c.Locals(OwnerIDLocalKey).(string)

		entry := l.WithFields(logrus.Fields{
			"component":  "http",
			"request_id": rid,
			"owner_id":   owner,
			"method":     c.Method(),
			"path":       c.Path(),
			"route":      c.Route().Path,
			"status":     status,
			"latency_ms": float64(time.Since(start).Microseconds()) / 1000,
		})
		switch {
		case status >= fiber.StatusInternalServerError:
			entry.Error("request completed")
		case status >= fiber.StatusBadRequest:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}

		return err
	}
}
