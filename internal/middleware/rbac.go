package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convivencia-api/internal/models"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
	"github.com/noah-isme/convivencia-api/pkg/response"
)

// RBAC enforces role-based access control for routes.
func RBAC(allowed ...models.UserRole) gin.HandlerFunc {
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedRoles[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// StaffOnly admits any school staff role.
func StaffOnly() gin.HandlerFunc {
	return RBAC(models.StaffRoles...)
}
