package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/service"
)

const userKey = "user"

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// authMiddleware rejects requests without a valid access token
func authMiddleware(auth service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		user, err := auth.Authenticate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// currentUser returns the authenticated user set by authMiddleware
func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}
