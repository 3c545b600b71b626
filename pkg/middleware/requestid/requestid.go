package requestid

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the correlation id between the caller, the API and its logs.
const Header = "X-Request-ID"

const (
	contextKey  = "request_id"
	maxIDLength = 128
)

type ctxKey struct{}

// Middleware reuses a well formed inbound X-Request-ID or mints a new one. The id
// is echoed back and attached to both the gin and the request contexts.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(Header)
		if !acceptable(reqID) {
			reqID = uuid.NewString()
		}

		c.Set(contextKey, reqID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxKey{}, reqID))
		c.Writer.Header().Set(Header, reqID)

		c.Next()
	}
}

// Value returns the request ID stored in the Gin context.
func Value(c *gin.Context) string {
	if v, exists := c.Get(contextKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// FromContext returns the request ID carried by ctx, if any.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// acceptable rejects empty, oversized or non-printable ids so callers cannot
// inject control characters into log lines.
func acceptable(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
