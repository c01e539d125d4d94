package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/akave-ai/gameevents/internal/model"
)

// APIResponse is the standard success response shape of the management API.
type APIResponse struct {
	Data    any    `json:"data"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path"`
}

// APIError is the standard error response shape.
type APIError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Path    string `json:"path"`
	Status  int    `json:"status"`
}

func pathFromContext(c echo.Context) string {
	if c == nil || c.Request() == nil {
		return ""
	}
	return c.Request().URL.Path
}

// OK sends a 200 response with data.
func OK(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusOK, APIResponse{
		Data:    data,
		Status:  http.StatusOK,
		Message: message,
		Path:    pathFromContext(c),
	})
}

// Batch sends an ingestion result as-is, using its status code for the
// HTTP status.
func Batch(c echo.Context, resp model.Response) error {
	return c.JSON(resp.StatusCode, resp)
}

// Error sends a JSON error response using APIError.
func Error(c echo.Context, status int, message, errDetail string) error {
	return c.JSON(status, APIError{
		Message: message,
		Error:   errDetail,
		Path:    pathFromContext(c),
		Status:  status,
	})
}

// BadRequest sends 400 with message and error detail.
func BadRequest(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusBadRequest, message, errDetail)
}

// NotFound sends 404 with message and error detail.
func NotFound(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusNotFound, message, errDetail)
}

// RequestTooLarge sends 413 with message and error detail.
func RequestTooLarge(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusRequestEntityTooLarge, message, errDetail)
}
