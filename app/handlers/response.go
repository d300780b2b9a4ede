package handlers

import (
	"errors"
	"net/http"

	"provision-svc/app/domains"
	"provision-svc/app/dto"

	"github.com/gin-gonic/gin"
)

// respondJSON sends a JSON response
func respondJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// respondError sends an error response
func respondError(c *gin.Context, status int, message string, details map[string]string) {
	c.JSON(status, dto.ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// statusForError maps service errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, domains.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domains.ErrNodeNotFound), errors.Is(err, domains.ErrResultNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
