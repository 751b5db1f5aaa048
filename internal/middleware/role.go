package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/aura-events/ticketsync/pkg/response"
)

// RequireRole lets through only tokens carrying one of roles. It must run after JWT.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		switch {
		case role == "":
			response.Unauthorized(c, "missing operator context")
		case !slices.Contains(roles, role):
			response.Forbidden(c, "role "+role+" may not do this")
		default:
			c.Next()
			return
		}
		c.Abort()
	}
}
