package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/akave-ai/gameevents/internal/infrastructure/inputs"
	"github.com/akave-ai/gameevents/internal/response"
)

// DefaultMaxBatchBytes caps a POST /batches body.
const DefaultMaxBatchBytes = 4 << 20

// BatchHandler serves POST /batches.
type BatchHandler struct {
	Batches  inputs.BatchHandler
	MaxBytes int64
}

// Ingest processes the posted queue envelope and replies with the batch
// response, status code included.
func (h *BatchHandler) Ingest(c echo.Context) error {
	limit := h.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBatchBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, limit))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return response.RequestTooLarge(c, "batch too large", err.Error())
		}
		return response.BadRequest(c, "could not read body", err.Error())
	}
	if len(body) == 0 {
		return response.BadRequest(c, "empty body", "request body must be a queue envelope")
	}
	return response.Batch(c, h.Batches.HandleEnvelope(c.Request().Context(), body))
}
