package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convivencia-api/internal/middleware"
	"github.com/noah-isme/convivencia-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext returns the authenticated staff member, or false when the
// request carries no validated claims.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		return models.Actor{}, false
	}
	return claims.Actor(), true
}

// responseMeta merges the request metadata collected by middleware.
func responseMeta(c *gin.Context) map[string]interface{} {
	return middleware.ExtractMeta(c)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// queryList accepts both repeated keys and comma separated values.
func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
