package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"thumbapi/docs"
	"thumbapi/internal/config"
	"thumbapi/internal/database"
	"thumbapi/internal/database/migration"
	handlers "thumbapi/internal/http/handler"
	"thumbapi/internal/http/middleware"
	"thumbapi/internal/logging"
	"thumbapi/internal/otel"
	"thumbapi/internal/repository"
	"thumbapi/internal/repository/memory"
	"thumbapi/internal/repository/postgres"
	"thumbapi/internal/resize"
	"thumbapi/internal/service"
	"thumbapi/internal/storage"
	"thumbapi/internal/thumbnail"
)

// @title       Thumbnail API
// @version     1.0
// @description Image upload with asynchronous thumbnail generation.
// @BasePath    /
func main() {
	logging.Init(os.Stdout, os.Getenv("LOG_LEVEL"))
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}

func run() error {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(os.Stdout, cfg.LogLevel)
	log := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	db, images, thumbs, err := openRecords(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}

	metrics, err := thumbnail.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register thumbnail metrics: %w", err)
	}
	orch, err := thumbnail.New(thumbs, store, thumbnail.NewRegistry(cfg.Thumbnail.MaxJobs), metrics, thumbnail.Options{
		Sizes:   cfg.Thumbnail.Sizes,
		Workers: cfg.Thumbnail.Workers,
		Resize:  resize.WithQuality(cfg.Thumbnail.JPEGQuality),
	})
	if err != nil {
		return fmt.Errorf("init thumbnail orchestrator: %w", err)
	}
	// Records left pending by a previous process will never be picked up again.
	if err := orch.Recover(ctx); err != nil {
		return err
	}

	imgSvc := service.NewImageService(store, images, thumbs, orch, service.ImageServiceConfig{
		Sizes:          cfg.Thumbnail.Sizes,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	statusSvc := service.NewStatusService(images, thumbs, store)

	promMW, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		// Multipart framing needs headroom over the file limit; the service enforces the exact cap.
		BodyLimit:             int(cfg.MaxUploadBytes) + 1<<20,
		DisableStartupMessage: true,
	})

	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware())
	app.Use(middleware.Logger())
	app.Use(promMW.Handler())

	// A nil *sql.DB inside the interface would be pinged; pass a true nil instead.
	var pinger handlers.Pinger
	if db != nil {
		pinger = db
	}
	handlers.RegisterRoutes(app, pinger, imgSvc, statusSvc)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	admin := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           adminMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.WithField("addr", admin.Addr).Info("metrics server listening")
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		addr := ":" + cfg.Port
		log.WithField("addr", addr).Info("http server listening")
		if err := app.Listen(addr); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Stop taking requests first so no new jobs are accepted while draining.
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("thumbnail jobs did not drain in time")
	}
	if err := admin.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics server shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracer shutdown")
	}

	log.Info("server stopped")
	return runErr
}

// openRecords returns the record stores for the configured driver. db is nil for
// the memory driver.
func openRecords(ctx context.Context, cfg *config.AppConfig) (*sql.DB, repository.ImageRepository, repository.ThumbnailRepository, error) {
	switch cfg.Database.Driver {
	case "memory":
		s := memory.NewStore()
		return nil, s, s, nil
	case "postgres":
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := migration.EnsureMigrated(ctx, db, cfg.Database.Host); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		return db, postgres.NewImagePostgres(db), postgres.NewThumbnailPostgres(db), nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
}

func openStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case "fs":
		fs, err := storage.NewFilesystem(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("init filesystem storage: %w", err)
		}
		return fs, nil
	case "minio":
		// Reusable S3-compatible object storage client
		s, err := storage.NewMinIO(cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.Backend)
	}
}

func adminMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", otelhttp.NewHandler(promhttp.Handler(), "metrics"))
	return mux
}
