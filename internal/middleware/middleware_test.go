package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/convivencia-api/internal/models"
	"github.com/noah-isme/convivencia-api/internal/service"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
)

type validatorStub struct {
	claims map[string]*models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v.claims[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newValidator() validatorStub {
	return validatorStub{claims: map[string]*models.JWTClaims{
		"inspector": {UserID: "user-1", Role: models.RoleInspector},
		"teacher":   {UserID: "user-2", Role: models.RoleTeacher},
	}}
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	return envelope.Error.Code
}

func protectedRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	chain := append([]gin.HandlerFunc{JWT(newValidator())}, handlers...)
	chain = append(chain, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.POST("/cases/:folio", chain...)
	return router
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	router := protectedRouter()

	for _, header := range []string{"", "Token inspector", "Bearer ", "Bearer unknown"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/cases/EXP-1", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, rec.Body.Bytes()))
	}
}

func TestJWTAttachesClaims(t *testing.T) {
	var seen *models.JWTClaims
	router := protectedRouter(func(c *gin.Context) {
		seen, _ = Claims(c)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cases/EXP-1", nil)
	req.Header.Set("Authorization", "bearer inspector")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "user-1", seen.UserID)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", OptionalJWT(newValidator()), func(c *gin.Context) {
		if _, ok := Claims(c); ok {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer teacher")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRBAC(t *testing.T) {
	router := protectedRouter(RBAC(models.RoleAdmin, models.RoleInspector))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cases/EXP-1", nil)
	req.Header.Set("Authorization", "Bearer inspector")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/cases/EXP-1", nil)
	req.Header.Set("Authorization", "Bearer teacher")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, rec.Body.Bytes()))
}

func TestRBACWithoutClaimsIsUnauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	StaffOnly()(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))

	SetDegraded(c, false, SourceLocalCache)
	assert.Nil(t, ExtractMeta(c))

	SetCacheHit(c, true)
	SetDegraded(c, true, SourceLocalCache)
	meta := ExtractMeta(c)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Equal(t, true, meta["degraded"])
	assert.Equal(t, SourceLocalCache, meta["source"])
}

func TestMetricsSkipsScrapeAndProbeEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/ready", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/cases", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Zero(t, metrics.Snapshot().RequestsTotal)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cases", nil))
	assert.Equal(t, uint64(1), metrics.Snapshot().RequestsTotal)
}

func TestAuditTrailLogsActorAndOutcome(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	router := protectedRouter(AuditTrail(zap.New(core), "case.transition"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cases/EXP-7", nil)
	req.Header.Set("Authorization", "Bearer inspector")
	router.ServeHTTP(rec, req)

	entries := logs.FilterMessage("staff_action").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "case.transition", fields["action"])
	assert.Equal(t, "EXP-7", fields["folio"])
	assert.Equal(t, "user-1", fields["actor_id"])
	assert.Equal(t, "INSPECTOR", fields["actor_role"])
	assert.EqualValues(t, http.StatusNoContent, fields["status"])
}
