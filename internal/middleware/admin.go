package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/reunitehq/reunite-api/internal/models"
	appErrors "github.com/reunitehq/reunite-api/pkg/errors"
	"github.com/reunitehq/reunite-api/pkg/response"
)

// AdminOnly rejects requests whose claims do not carry the admin role.
// It must run after JWT.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.Role != models.RoleAdmin {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "admin role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
