package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/volume-engine/internal/database"
	"github.com/irfndi/volume-engine/internal/middleware"
	"github.com/irfndi/volume-engine/internal/utils"
	"github.com/irfndi/volume-engine/internal/volume"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps service errors onto HTTP status codes. Engine input errors
// are checked before validation errors because ErrInvalidConfig wraps both.
func statusFor(err error) int {
	switch {
	case volume.IsInputError(err):
		return http.StatusUnprocessableEntity
	case utils.IsValidationError(err):
		return http.StatusBadRequest
	case database.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status >= http.StatusInternalServerError {
		middleware.RecordError(c, err, "request failed")
		resp.Error = "internal error"
		if status == http.StatusGatewayTimeout {
			resp.Error = "upstream timeout"
		}
	}
	c.JSON(status, resp)
}

func respondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
