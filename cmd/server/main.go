package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/attachments"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/config"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/database"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/dedup"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/logging"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/routes"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/services"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/store"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/tenant"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// App registry
	registry, err := tenant.LoadFromFile(cfg.AppsConfigPath)
	if err != nil {
		slog.Error("failed to load app registry", "path", cfg.AppsConfigPath, "error", err)
		os.Exit(1)
	}
	slog.Info("app registry loaded", "apps", len(registry.All()))

	// Database
	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// ERROR+ records also go to system_logs
	pgLogHandler := logging.WithPersistence(db)

	cleanupDone := make(chan struct{})
	logging.StartCleanup(db, cfg.LogRetentionDays, cleanupDone)

	// Attachments
	uploads, err := newAttachmentStore(cfg)
	if err != nil {
		slog.Error("attachment store setup failed", "backend", cfg.AttachmentBackend, "error", err)
		os.Exit(1)
	}
	slog.Info("attachment store ready", "backend", cfg.AttachmentBackend)

	// Services
	reports := store.NewGormReportStore(db)
	resolver := dedup.NewResolver(reports, cfg.DedupWindow)
	reportService := services.NewReportService(reports, resolver, uploads, services.AttachmentLimits{
		MaxCount: cfg.MaxAttachments,
		MaxBytes: cfg.MaxAttachmentBytes,
	}, slog.Default())
	queryService := services.NewReportQueryService(reports)

	// Handlers
	healthHandler := handlers.NewHealthHandler(db, registry)
	reportHandler := handlers.NewReportHandler(reportService, queryService, registry)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    bodyLimit(cfg),
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	var tenantSkip []string
	if cfg.AttachmentBackend == config.AttachmentBackendDisk {
		app.Static(cfg.UploadPublicPath, cfg.UploadDir)
		tenantSkip = append(tenantSkip, cfg.UploadPublicPath)
	}
	app.Use(middleware.TenantMiddleware(registry, tenantSkip...))

	// Routes
	routes.Setup(app, cfg, healthHandler, reportHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "dedup_window", cfg.DedupWindow.String())
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := database.Close(db); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}

// newAttachmentStore returns nil for the "none" backend; images are then ignored.
func newAttachmentStore(cfg *config.Config) (attachments.Store, error) {
	switch cfg.AttachmentBackend {
	case config.AttachmentBackendS3:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := attachments.NewS3Client(ctx, cfg.S3Region, cfg.AWSEndpointURL)
		if err != nil {
			return nil, err
		}
		return attachments.NewS3Store(client, cfg.S3Bucket, cfg.S3Region, cfg.S3PublicBaseURL), nil
	case config.AttachmentBackendDisk:
		return attachments.NewDiskStore(cfg.UploadDir, cfg.UploadPublicPath), nil
	default:
		return nil, nil
	}
}

// bodyLimit leaves room for the largest allowed multipart submission.
func bodyLimit(cfg *config.Config) int {
	limit := int64(cfg.MaxAttachments)*cfg.MaxAttachmentBytes + 1024*1024
	if limit < 4*1024*1024 {
		return 4 * 1024 * 1024
	}
	return int(limit)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
