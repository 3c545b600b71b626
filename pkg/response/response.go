package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convivencia-api/internal/models"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
	"github.com/noah-isme/convivencia-api/pkg/middleware/requestid"
)

// retryAfterSeconds is advertised when storage is temporarily unavailable.
const retryAfterSeconds = 5

// Envelope represents the common response contract.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Accepted responds with HTTP 202 for work that completes asynchronously.
// location, when set, points at the status resource to poll.
func Accepted(c *gin.Context, data interface{}, location string) {
	if location != "" {
		c.Header("Location", location)
	}
	JSON(c, http.StatusAccepted, data, nil)
}

// Error renders err in the envelope. Server side failures are attached to the
// gin context for the request logger, and retryable storage outages carry a
// Retry-After hint. The request id is echoed in meta so staff can quote it.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	if appErr.Status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	noStore(c)

	envelope := Envelope{Error: appErr}
	if reqID := requestid.Value(c); reqID != "" {
		envelope.Meta = map[string]interface{}{"request_id": reqID}
	}
	c.JSON(appErr.Status, envelope)
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
