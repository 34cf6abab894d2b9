package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leadboard/internal/service"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidLogin),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrExpiredToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": msg}, hiding internal details on 500
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		c.Error(err)
		msg = "Internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
