// Package http exposes the retrieval service over Fiber.
package http

import (
	"poetry_server/core/port/in"
	"poetry_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// PoetryRequest is the body of POST /get-poetry.
type PoetryRequest struct {
	Text string `json:"text"`
}

type PoetryHandler struct {
	service in.RetrievalService
}

func NewPoetryHandler(service in.RetrievalService) *PoetryHandler {
	return &PoetryHandler{service: service}
}

// Register mounts the handler; extra handlers run before it.
func (h *PoetryHandler) Register(app fiber.Router, middleware ...fiber.Handler) {
	handlers := append(middleware, h.GetPoetry)
	app.Post("/get-poetry", handlers...)
}

// GetPoetry classifies the submitted text and returns it with a matching poem.
func (h *PoetryHandler) GetPoetry(c *fiber.Ctx) error {
	var req PoetryRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperr.BadRequest("request body must be a JSON object with a string 'text' field")
		}
	}

	result, err := h.service.Retrieve(c.UserContext(), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(result)
}
