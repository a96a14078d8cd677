package http

import (
	"context"
	"time"

	"poetry_server/core/port/in"
	"poetry_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

const readyTimeout = 5 * time.Second

// ReadinessCheck probes one dependency.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthHandler struct {
	service   in.RetrievalService
	latency   *metrics.LatencyTracker
	routes    *metrics.LatencyRegistry
	checks    []ReadinessCheck
	startedAt time.Time
}

// HealthOptions carries optional collaborators for HealthHandler.
type HealthOptions struct {
	ClassifierLatency *metrics.LatencyTracker
	Routes            *metrics.LatencyRegistry
	Checks            []ReadinessCheck
}

func NewHealthHandler(service in.RetrievalService, opts HealthOptions) *HealthHandler {
	return &HealthHandler{
		service:   service,
		latency:   opts.ClassifierLatency,
		routes:    opts.Routes,
		checks:    opts.Checks,
		startedAt: time.Now(),
	}
}

func (h *HealthHandler) Register(app fiber.Router) {
	app.Get("/", h.Home)
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

// Home is the service banner.
func (h *HealthHandler) Home(c *fiber.Ctx) error {
	info := h.service.Info()
	return c.JSON(fiber.Map{
		"message":     "Poetry Retrieval API",
		"status":      "running",
		"emotions":    info.Emotions,
		"total_poems": info.TotalPoems,
	})
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	info := h.service.Info()
	body := fiber.Map{
		"status":        "healthy",
		"model_backend": info.ModelBackend,
		"emotions":      info.Emotions,
		"corpus":        info.Corpus,
		"uptime_sec":    int64(time.Since(h.startedAt).Seconds()),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
	if h.latency != nil {
		body["classification_latency"] = h.latency.Stats().ToMap()
	}
	if h.routes != nil {
		routes := make(map[string]map[string]any)
		for name, stats := range h.routes.AllStats() {
			routes[name] = stats.ToMap()
		}
		body["routes"] = routes
	}
	return c.JSON(body)
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checks)+1)
	allHealthy := true

	if h.service.Info().TotalPoems > 0 {
		checks["corpus"] = "healthy"
	} else {
		checks["corpus"] = "empty"
	}

	for _, rc := range h.checks {
		if err := rc.Check(ctx); err != nil {
			checks[rc.Name] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks[rc.Name] = "healthy"
		}
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
