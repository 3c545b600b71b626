package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/convivencia-api/api/swagger"
	"github.com/noah-isme/convivencia-api/internal/handler"
	"github.com/noah-isme/convivencia-api/internal/middleware"
	"github.com/noah-isme/convivencia-api/internal/models"
	"github.com/noah-isme/convivencia-api/internal/service"
	"github.com/noah-isme/convivencia-api/pkg/config"
	"github.com/noah-isme/convivencia-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/convivencia-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/convivencia-api/pkg/middleware/requestid"
)

type routeDeps struct {
	logger      *zap.Logger
	metrics     *service.MetricsService
	tokens      *service.TokenService
	cases       *handler.CaseHandler
	compliance  *handler.ComplianceHandler
	reports     *handler.ReportHandler
	diagnostics *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, deps routeDeps) {
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.diagnostics.Health)
	r.GET("/ready", deps.diagnostics.Ready)
	r.GET("/metrics", deps.diagnostics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	// Signed tokens authorise downloads; links are shared outside the API session.
	api.GET("/compliance/reports/download/:token",
		middleware.OptionalJWT(deps.tokens),
		middleware.AuditTrail(deps.logger, "report.download"),
		deps.reports.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.tokens), middleware.StaffOnly())

	secured.GET("/metrics/summary", middleware.RBAC(models.RoleAdmin), deps.diagnostics.Summary)

	cases := secured.Group("/cases")
	cases.GET("", deps.cases.List)
	cases.POST("",
		middleware.RBAC(models.RoleAdmin, models.RoleInspector, models.RoleCounselor),
		middleware.AuditTrail(deps.logger, "case.open"),
		deps.cases.Open)
	cases.GET("/:folio", deps.cases.Get)
	cases.GET("/:folio/transitions", deps.cases.Transitions)
	cases.POST("/:folio/transitions/:transitionId",
		middleware.RBAC(models.RoleAdmin, models.RoleInspector, models.RolePrincipal),
		middleware.AuditTrail(deps.logger, "case.transition"),
		deps.cases.ExecuteTransition)
	cases.PATCH("/:folio/severity",
		middleware.RBAC(models.RoleAdmin, models.RoleInspector),
		middleware.AuditTrail(deps.logger, "case.severity"),
		deps.cases.AmendSeverity)
	cases.POST("/:folio/milestones/:milestoneId/complete",
		middleware.RBAC(models.RoleAdmin, models.RoleInspector, models.RoleCounselor),
		middleware.AuditTrail(deps.logger, "case.milestone"),
		deps.cases.CompleteMilestone)
	cases.GET("/:folio/audit-log", deps.cases.AuditLog)

	compliance := secured.Group("/compliance")
	compliance.GET("/cases", deps.compliance.Cases)
	compliance.GET("/summary", deps.compliance.Summary)

	reports := compliance.Group("/reports", middleware.RBAC(models.RoleAdmin, models.RolePrincipal))
	reports.POST("", middleware.AuditTrail(deps.logger, "report.create"), deps.reports.Create)
	reports.GET("/:id", deps.reports.Status)
}
