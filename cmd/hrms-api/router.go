package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/hrms-api/internal/handler"
	"github.com/noah-isme/hrms-api/internal/middleware"
	"github.com/noah-isme/hrms-api/internal/models"
	"github.com/noah-isme/hrms-api/internal/service"
	"github.com/noah-isme/hrms-api/pkg/config"
	"github.com/noah-isme/hrms-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/hrms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/hrms-api/pkg/middleware/requestid"
)

// multipart framing allowance on top of the file size limit
const uploadEnvelopeBytes = 1 << 20

type routerDeps struct {
	Auth          *handler.AuthHandler
	Documents     *handler.DocumentHandler
	Employees     *handler.EmployeeHandler
	Notifications *handler.NotificationHandler
	Observability *handler.MetricsHandler
	Tokens        middleware.TokenValidator
	Metrics       *service.MetricsService
	Audit         middleware.AuditWriter
	Logger        *zap.Logger
}

func newRouter(cfg *config.Config, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics, "/metrics", "/health"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", deps.Observability.Health)
	r.GET("/ready", deps.Observability.Ready)
	r.GET("/metrics", deps.Observability.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	auth := middleware.JWT(deps.Tokens)
	hrOnly := middleware.RequireRoles(models.RoleHR)
	access := middleware.Audit(deps.Audit, deps.Logger, models.AuditActionDocumentAccess, "document", "id")

	authGroup := api.Group("/auth")
	authGroup.POST("/login", deps.Auth.Login)
	authGroup.POST("/refresh", deps.Auth.Refresh)
	authGroup.POST("/logout", auth, deps.Auth.Logout)
	authGroup.GET("/me", auth, deps.Auth.Me)

	docs := api.Group("/documents")
	docs.GET("/shared/:token", middleware.Audit(deps.Audit, deps.Logger, models.AuditActionDocumentAccess, "document", ""), deps.Documents.Shared)
	docs.Use(auth)
	docs.GET("", hrOnly, deps.Documents.List)
	docs.GET("/my", deps.Documents.ListMine)
	docs.GET("/types", deps.Documents.Types)
	docs.GET("/export", hrOnly, deps.Documents.Export)
	docs.POST("/upload", middleware.BodyLimit(cfg.Documents.MaxFileSizeBytes+uploadEnvelopeBytes), deps.Documents.Upload)
	docs.GET("/:id", deps.Documents.Get)
	docs.PUT("/:id/approve", hrOnly, deps.Documents.Approve)
	docs.PUT("/:id/reject", hrOnly, deps.Documents.Reject)
	docs.DELETE("/:id", deps.Documents.Delete)
	docs.GET("/:id/download", access, deps.Documents.Download)
	docs.GET("/:id/link", deps.Documents.Link)

	employees := api.Group("/employees", auth, hrOnly)
	employees.GET("", deps.Employees.List)
	employees.POST("", deps.Employees.Create)
	employees.GET("/:id", deps.Employees.Get)
	employees.PUT("/:id", deps.Employees.Update)
	employees.DELETE("/:id", deps.Employees.Deactivate)

	notifications := api.Group("/notifications", auth)
	notifications.GET("", deps.Notifications.List)
	notifications.PUT("/:id/read", deps.Notifications.MarkRead)

	return r
}
