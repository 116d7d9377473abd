package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"attachment-service/internal/client"
	"attachment-service/internal/config"
	"attachment-service/internal/database"
	"attachment-service/internal/handler"
	"attachment-service/internal/metrics"
	"attachment-service/internal/middleware"
	"attachment-service/internal/repository"
	"attachment-service/internal/service"
	"attachment-service/internal/storage"
)

// Config holds router configuration
type Config struct {
	Logger     *zap.Logger
	JWTSecret  string
	BasePath   string
	Storage    config.StorageConfig
	Guard      *storage.PathGuard
	Metrics    *metrics.Metrics
	AuthClient *client.AuthClient
}

// Setup sets up the router with all routes
func Setup(cfg Config) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS("*"))
	r.Use(middleware.Metrics(cfg.Metrics))

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check routes
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy", "service": "attachment-service"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if !database.IsConnected() {
			c.JSON(503, gin.H{"status": "not ready", "service": "attachment-service"})
			return
		}
		c.JSON(200, gin.H{"status": "ready", "service": "attachment-service"})
	})

	// The repository resolves the connection per call so a database that
	// comes up after the server does is used without a restart
	attachmentRepo := repository.NewLazyAttachmentRepository(database.GetDB)

	// Initialize services
	allowedTypes := cfg.Storage.AllowedTypes
	if allowedTypes == nil {
		allowedTypes = storage.DefaultAllowedTypes()
	}
	validator := storage.NewValidator(
		allowedTypes,
		cfg.Storage.MaxFileSize,
		cfg.Storage.MaxBatchCount,
		cfg.Storage.MaxBatchSize,
	)
	attachmentService := service.NewAttachmentService(
		attachmentRepo,
		validator,
		cfg.Guard,
		cfg.Metrics,
		cfg.Logger,
	)

	// Initialize handlers
	attachmentHandler := handler.NewAttachmentHandler(attachmentService)

	// API routes group
	api := r.Group(cfg.BasePath)

	// Auth middleware
	var authMiddleware gin.HandlerFunc
	if cfg.AuthClient != nil {
		authMiddleware = middleware.AuthWithValidator(cfg.AuthClient)
	} else {
		authMiddleware = middleware.Auth(cfg.JWTSecret)
	}

	authorized := api.Group("")
	authorized.Use(authMiddleware)
	{
		bugs := authorized.Group("/bugs")
		{
			bugs.POST("/:bugId/attachments", attachmentHandler.UploadAttachments)
			bugs.GET("/:bugId/attachments", attachmentHandler.GetBugAttachments)
		}

		attachments := authorized.Group("/attachments")
		{
			attachments.GET("/:attachmentId/download", attachmentHandler.DownloadAttachment)
			attachments.DELETE("/:attachmentId", attachmentHandler.DeleteAttachment)
		}
	}

	return r
}
