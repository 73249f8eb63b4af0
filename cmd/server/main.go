package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dukerupert/dbcart/internal"
	"github.com/dukerupert/dbcart/internal/cookie"
	"github.com/dukerupert/dbcart/internal/events"
	"github.com/dukerupert/dbcart/internal/handler"
	"github.com/dukerupert/dbcart/internal/jobs"
	"github.com/dukerupert/dbcart/internal/middleware"
	"github.com/dukerupert/dbcart/internal/repository"
	"github.com/dukerupert/dbcart/internal/service"
	"github.com/dukerupert/dbcart/internal/telemetry"
	"github.com/dukerupert/dbcart/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(ctx, sqlDB, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	repo := repository.New(pool)
	transactor := repository.NewPoolTransactor(pool)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cartMetrics := telemetry.NewCartMetrics(cfg.MetricsNamespace, registry)
	httpMetrics := middleware.NewMetrics(cfg.MetricsNamespace, registry, registry)

	// Events
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATS.URL != "" {
		conn, err := events.Connect(cfg.NATS.URL, "dbcart")
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer conn.Drain()
		publisher = events.NewNATSPublisher(conn, cfg.NATS.SubjectPrefix)
		logger.Info("Publishing cart events", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	cartService := service.NewCartService(repo, transactor, service.CartServiceConfig{
		SaveOnDemand: cfg.Cart.SaveOnDemand,
		Publisher:    publisher,
		Metrics:      cartMetrics,
		Logger:       logger,
	})

	// Background cleanup
	interval, err := cfg.Cart.CleanupInterval()
	if err != nil {
		return err
	}
	cleanup := jobs.NewCartCleanup(repo, jobs.CleanupConfig{
		ExpireCart:      cfg.Cart.ExpireCart,
		DeleteExpired:   cfg.Cart.DeleteExpired,
		SessionLifetime: cfg.Session.Lifetime,
	}, cartMetrics, logger)
	scheduler := worker.NewScheduler(worker.Config{Interval: interval, RunOnStart: true}, logger, cleanup)

	// HTTP server
	cookies := cookie.NewConfig(cfg.Session.CookieDomain, cfg.Session.SecureCookie, cfg.Session.Lifetime)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.HTTPErrorHandler()

	e.Use(echomw.Recover())
	e.Use(echomw.Secure())
	e.Use(echomw.BodyLimit("64K"))
	e.Use(middleware.RequestID)
	e.Use(httpMetrics.Middleware)
	e.Use(middleware.CartScope(middleware.ScopeConfig{
		Cookies:       cookies,
		SessionCookie: cfg.Session.CookieName,
		UserIDHeader:  cfg.Session.UserIDHeader,
		NewSessionID:  service.NewGuestSessionID,
	}))
	e.Use(middleware.WithRequestLogger(logger))

	e.GET("/metrics", echo.WrapHandler(httpMetrics.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.String(http.StatusServiceUnavailable, "database unavailable")
		}
		return c.String(http.StatusOK, "OK")
	})

	handler.NewCartHandler(cartService).Register(e)

	// Start
	errCh := make(chan error, 2)
	schedulerDone := make(chan struct{})

	go func() {
		defer close(schedulerDone)
		if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("scheduler failed: %w", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	go func() {
		logger.Info("Starting cart server", "address", addr, "save_on_demand", cfg.Cart.SaveOnDemand)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		stop()
		<-schedulerDone
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := e.Shutdown(shutdownCtx)

	// The pool closes on return; let an in-flight sweep finish first.
	<-schedulerDone
	if shutdownErr != nil {
		return fmt.Errorf("server shutdown failed: %w", shutdownErr)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
