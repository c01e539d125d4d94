package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/akave-ai/gameevents/internal/infrastructure/inputs"
	"github.com/akave-ai/gameevents/internal/response"
)

// InputHandler serves /inputs/*: which input types this build supports and
// the configuration they take.
type InputHandler struct {
	Registry *inputs.Registry
}

// ListTypes returns registered input type names (GET /inputs/types).
func (h *InputHandler) ListTypes(c echo.Context) error {
	return response.OK(c, map[string]any{"types": h.Registry.ListRegistered()}, "")
}

// GetAllTypesInfo returns config fields for every registered input type (GET /inputs/info).
func (h *InputHandler) GetAllTypesInfo(c echo.Context) error {
	return response.OK(c, map[string]any{"types": h.Registry.AllTypesInfo()}, "")
}

// GetTypeInfo returns config fields for one input type (GET /inputs/types/:type).
func (h *InputHandler) GetTypeInfo(c echo.Context) error {
	typeName := c.Param("type")
	info, ok := h.Registry.GetTypeInfo(typeName)
	if !ok {
		return response.NotFound(c, "unknown input type", "unknown input type: "+typeName)
	}
	return response.OK(c, info, "")
}
