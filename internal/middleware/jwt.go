package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aura-events/ticketsync/internal/auth"
	"github.com/aura-events/ticketsync/pkg/response"
)

const (
	// ContextSubject is the key for the operator identity in gin context.
	ContextSubject = "subject"
	// ContextRole is the key for the operator role in gin context.
	ContextRole = "role"
)

// JWT returns a middleware that validates the bearer token and sets the operator claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextSubject, claims.Subject)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// Subject returns the authenticated operator, or "" outside the JWT middleware.
func Subject(c *gin.Context) string {
	return c.GetString(ContextSubject)
}
