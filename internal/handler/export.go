package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/service"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/pkg/response"
)

type ExportHandler struct {
	service   *service.ExportService
	validator *validator.Validate
}

func NewExportHandler(svc *service.ExportService, v *validator.Validate) *ExportHandler {
	return &ExportHandler{
		service:   svc,
		validator: v,
	}
}

// Formation handles POST /api/export/formation
func (h *ExportHandler) Formation(c *fiber.Ctx) error {
	var req model.ExportRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Export(c.Context(), &req)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, result)
}
