package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"attachment-service/internal/client"
	"attachment-service/internal/config"
	"attachment-service/internal/database"
	"attachment-service/internal/job"
	"attachment-service/internal/metrics"
	"attachment-service/internal/repository"
	"attachment-service/internal/router"
	"attachment-service/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logger.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Set Gin mode
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting Attachment Service",
		zap.String("port", cfg.Server.Port),
		zap.String("mode", cfg.Server.Mode),
		zap.String("base_path", cfg.Server.BasePath),
		zap.String("storage_root", cfg.Storage.Root),
	)

	// The storage root must exist and be writable before anything else
	if err := storage.EnsureRoot(cfg.Storage.Root); err != nil {
		logger.Fatal("Storage root initialization failed", zap.Error(err))
	}
	guard, err := storage.NewPathGuard(cfg.Storage.Root)
	if err != nil {
		logger.Fatal("Failed to initialize path guard", zap.Error(err))
	}
	logger.Info("Storage root initialized", zap.String("root", guard.Root()))

	// Initialize database
	dbConfig := database.Config{
		DSN:             cfg.Database.GetDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	db, err := database.New(dbConfig)
	if err != nil {
		logger.Warn("Failed to connect to database on startup, will retry in background",
			zap.Error(err))
		database.NewAsync(dbConfig, 5*time.Second, logger)
	} else {
		logger.Info("Database connected successfully")
		if err := database.AutoMigrate(db); err != nil {
			logger.Warn("Failed to run database migrations", zap.Error(err))
		} else {
			logger.Info("Database migrations completed")
		}
		database.SetDB(db)
	}

	// Initialize metrics
	m := metrics.New()
	logger.Info("Metrics initialized")

	// Initialize auth client if an auth service is configured
	var authClient *client.AuthClient
	if cfg.Auth.ServiceURL != "" {
		authClient = client.NewAuthClient(cfg.Auth.ServiceURL, cfg.Auth.Timeout, logger)
		logger.Info("Auth client initialized", zap.String("auth_service_url", cfg.Auth.ServiceURL))
	}

	// Schedule the storage reconciliation sweep. The lazy repository makes
	// the job safe to schedule before the database connects; it skips its
	// sweep until records can be loaded.
	scheduler := cron.New()
	reconcileJob := job.NewReconcileJob(repository.NewLazyAttachmentRepository(database.GetDB), guard, m, logger)
	if _, err := scheduler.AddJob(cfg.Storage.ReconcileSchedule, reconcileJob); err != nil {
		logger.Warn("Failed to schedule reconciliation job", zap.Error(err))
	} else {
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("Reconciliation job scheduled",
			zap.String("schedule", cfg.Storage.ReconcileSchedule))
	}

	// Setup router with all dependencies
	r := router.Setup(router.Config{
		Logger:     logger,
		JWTSecret:  cfg.Auth.JWTSecret,
		BasePath:   cfg.Server.BasePath,
		Storage:    cfg.Storage,
		Guard:      guard,
		Metrics:    m,
		AuthClient: authClient,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Attachment Service started successfully",
			zap.String("address", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}

// initLogger initializes the zap logger with the specified level
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      zapLevel == zapcore.DebugLevel,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}
