package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowedMethods = "GET, POST, PATCH, OPTIONS"
	allowedHeaders = "Authorization, Content-Type, X-Request-ID"
	// Report downloads need the filename from Content-Disposition.
	exposedHeaders  = "Content-Disposition, X-Request-ID"
	preflightMaxAge = "600"
)

// New returns a CORS middleware for the staff dashboard. An empty allow list
// accepts any origin without credentials; listed origins are echoed with
// credentials allowed.
func New(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			origins[origin] = struct{}{}
		}
	}
	allowAny := len(origins) == 0

	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Add("Vary", "Origin")

		origin := strings.TrimRight(c.GetHeader("Origin"), "/")
		switch {
		case allowAny:
			header.Set("Access-Control-Allow-Origin", "*")
		case origin != "":
			if _, ok := origins[origin]; !ok {
				if c.Request.Method == http.MethodOptions {
					c.AbortWithStatus(http.StatusForbidden)
					return
				}
				c.Next()
				return
			}
			header.Set("Access-Control-Allow-Origin", origin)
			header.Set("Access-Control-Allow-Credentials", "true")
		}

		header.Set("Access-Control-Allow-Headers", allowedHeaders)
		header.Set("Access-Control-Allow-Methods", allowedMethods)
		header.Set("Access-Control-Expose-Headers", exposedHeaders)

		if c.Request.Method == http.MethodOptions {
			header.Set("Access-Control-Max-Age", preflightMaxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
