package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/convivencia-api/internal/middleware"
	"github.com/noah-isme/convivencia-api/internal/models"
)

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *envelopeError         `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	return c, w
}

func withActor(c *gin.Context, id string, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: id, Role: role})
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}
