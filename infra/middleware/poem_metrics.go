package middleware

import (
	"time"

	"poetry_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

// RouteLatency records handler latency per matched route.
func RouteLatency(registry *metrics.LatencyRegistry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Method() + " " + c.Route().Path
		tracker := registry.Tracker(route)
		status := c.Response().StatusCode()
		if err != nil {
			status = statusOf(err)
		}
		if status >= fiber.StatusInternalServerError {
			tracker.RecordError()
		} else {
			tracker.Record(time.Since(start))
		}
		return err
	}
}
