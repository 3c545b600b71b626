package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convivencia-api/internal/models"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
	"github.com/noah-isme/convivencia-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid access token.
func JWT(validator tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// OptionalJWT attaches claims when present but does not block.
func OptionalJWT(validator tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if claims, err := validator.ValidateToken(token); err == nil {
				c.Set(ContextUserKey, claims)
			}
		}
		c.Next()
	}
}

// Claims returns the validated claims attached by JWT.
func Claims(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok && claims != nil
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
