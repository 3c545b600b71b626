package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/convivencia-api/pkg/middleware/requestid"
)

// AuditTrail logs every staff mutation with the acting user. Case-level
// audit entries are written by the services; this trail also captures
// rejected attempts.
func AuditTrail(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("action", action),
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Int("status", status),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			zap.String("ip", c.ClientIP()),
		}
		if folio := c.Param("folio"); folio != "" {
			fields = append(fields, zap.String("folio", folio))
		}
		if claims, ok := Claims(c); ok {
			fields = append(fields, zap.String("actor_id", claims.UserID), zap.String("actor_role", string(claims.Role)))
		}
		if reqID := requestid.Value(c); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}

		switch {
		case status >= 500:
			logger.Error("staff_action", fields...)
		case status >= 400:
			logger.Warn("staff_action", fields...)
		default:
			logger.Info("staff_action", fields...)
		}
	}
}
