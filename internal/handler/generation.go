package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/middleware"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/service"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/pkg/response"
)

type GenerationHandler struct {
	service   *service.GenerationService
	validator *validator.Validate
}

func NewGenerationHandler(svc *service.GenerationService, v *validator.Validate) *GenerationHandler {
	return &GenerationHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/generation/start
func (h *GenerationHandler) Start(c *fiber.Ctx) error {
	var req model.GenerateStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	userID := middleware.GetUserID(c)

	result, err := h.service.StartGeneration(c.Context(), userID, &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Get handles GET /api/generation/:sessionId
func (h *GenerationHandler) Get(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return response.ValidationError(c, "Session ID is required", nil)
	}

	result, err := h.service.GetSession(c.Context(), sessionID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, result)
}

// Approve handles POST /api/generation/:sessionId/approve
func (h *GenerationHandler) Approve(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return response.ValidationError(c, "Session ID is required", nil)
	}

	result, err := h.service.Approve(c.Context(), sessionID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, result)
}

// Interrupt handles POST /api/generation/:sessionId/interrupt
func (h *GenerationHandler) Interrupt(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return response.ValidationError(c, "Session ID is required", nil)
	}

	var req model.InterruptRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Interrupt(c.Context(), sessionID, req.Action)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, result)
}

// Refine handles POST /api/generation/:sessionId/refine
func (h *GenerationHandler) Refine(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return response.ValidationError(c, "Session ID is required", nil)
	}

	var req model.RefineRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Refine(c.Context(), sessionID, &req)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, result)
}

// mapServiceError translates service-level failures to HTTP responses.
func mapServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return response.NotFound(c, "Session not found")
	case errors.Is(err, service.ErrActiveRun), errors.Is(err, service.ErrInvalidState):
		return response.Conflict(c, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
