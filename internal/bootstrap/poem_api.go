// Package bootstrap assembles the service graph and the HTTP application.
package bootstrap

import (
	"context"
	"strings"
	"time"

	"poetry_server/adapter/in/http"
	"poetry_server/config"
	"poetry_server/infra/middleware"
	"poetry_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// NewAPI builds dependencies and the Fiber app. The returned cleanup releases both.
func NewAPI(ctx context.Context, cfg *config.Config) (*fiber.App, func(), error) {
	deps, cleanup, err := NewDependencies(ctx, cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app, stop := NewApp(cfg, deps)
	return app, func() {
		stop()
		cleanup()
	}, nil
}

// NewApp mounts middleware and handlers on a new Fiber app.
func NewApp(cfg *config.Config, deps *Dependencies) (*fiber.App, func()) {
	bodyLimit := cfg.BodyLimitKB * 1024
	if bodyLimit <= 0 {
		bodyLimit = 64 * 1024
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		AppName:               "poetry-server",

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:          bodyLimit,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        120 * time.Second,
		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.RouteLatency(deps.RouteLatency))

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// no credentialed requests, so "*" is accepted
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	if allowOrigins == "" {
		allowOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,X-Request-ID",
		ExposeHeaders: "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset,Retry-After",
		MaxAge:        86400,
	}))

	http.NewHealthHandler(deps.Service, http.HealthOptions{
		ClassifierLatency: deps.ClassifierLatency,
		Routes:            deps.RouteLatency,
		Checks:            deps.ReadinessChecks,
	}).Register(app)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMin, time.Minute)
	http.NewPoetryHandler(deps.Service).Register(app, limiter.Handler(), middleware.RequireJSON())

	return app, limiter.Stop
}
