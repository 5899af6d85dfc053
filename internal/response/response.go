package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the standard success response shape.
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

// Messages of the intake contract. Clients match on them, so they never change.
const (
	MessageAccepted    = "Application received!"
	MessageMissing     = "All fields are required."
	MessageServerError = "Server error. Please try again."
	MessageMethod      = "Method not allowed"
)

// SubmissionResponse is the body returned by the intake route on POST.
type SubmissionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// MethodError is the body returned for unsupported methods on the intake route.
type MethodError struct {
	Error string `json:"error"`
}

// Accepted sends 200 with the assigned application id.
func Accepted(c echo.Context, id string) error {
	return c.JSON(http.StatusOK, SubmissionResponse{Success: true, Message: MessageAccepted, ID: id})
}

// MissingFields sends 400 for a submission without all required fields.
func MissingFields(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, SubmissionResponse{Message: MessageMissing})
}

// ServerError sends the generic 500. Causes are logged by the caller, never sent.
func ServerError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, SubmissionResponse{Message: MessageServerError})
}

// MethodNotAllowed sends 405.
func MethodNotAllowed(c echo.Context) error {
	return c.JSON(http.StatusMethodNotAllowed, MethodError{Error: MessageMethod})
}

// pathFromContext returns the request path from Echo context.
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

// Unavailable sends 503 with message and error detail.
func Unavailable(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusServiceUnavailable, message, errDetail)
}
