package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, inbound string) (string, string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var fromGin, fromCtx string
	router := gin.New()
	router.Use(Middleware())
	router.GET("/", func(c *gin.Context) {
		fromGin = Value(c)
		fromCtx = FromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		req.Header.Set(Header, inbound)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec.Header().Get(Header), fromGin, fromCtx
}

func TestMiddlewareReusesInboundID(t *testing.T) {
	echoed, fromGin, fromCtx := serve(t, "req-123")
	assert.Equal(t, "req-123", echoed)
	assert.Equal(t, "req-123", fromGin)
	assert.Equal(t, "req-123", fromCtx)
}

func TestMiddlewareMintsIDWhenMissingOrMalformed(t *testing.T) {
	for _, inbound := range []string{"", "bad id\nwith newline", strings.Repeat("x", maxIDLength+1)} {
		echoed, fromGin, _ := serve(t, inbound)
		_, err := uuid.Parse(echoed)
		require.NoError(t, err, "inbound %q", inbound)
		assert.Equal(t, echoed, fromGin)
	}
}

func TestFromContextWithoutID(t *testing.T) {
	assert.Empty(t, FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
