package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/enersol/gd-portal-bfa-go/internal/config"
	"github.com/enersol/gd-portal-bfa-go/internal/domain"
	"github.com/enersol/gd-portal-bfa-go/internal/handler"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/cache"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/energisa"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/observability"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/platform"
	"github.com/enersol/gd-portal-bfa-go/internal/infra/resilience"
	"github.com/enersol/gd-portal-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("energisa_api_url", cfg.EnergisaAPIURL),
		zap.String("platform_api_url", cfg.PlatformAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("batch_delay", cfg.BatchDelay),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "gd-portal-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Caches ---
	sessionStore := cache.New[*domain.LinkingSession](cfg.SessionTTL)
	gdCache := cache.New[*domain.GDSummary](cfg.CacheTTL)
	dashboardCache := cache.New[*domain.DashboardSummary](cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		BatchDelay:     cfg.BatchDelay,
	}
	energisaCB := resilience.NewCircuitBreaker("energisa")
	platformCB := resilience.NewCircuitBreaker("platform")

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	energisaClient := energisa.NewClient(httpClient, cfg.EnergisaAPIURL, energisaCB, resilienceCfg, logger)
	platformClient := platform.NewClient(
		httpClient,
		cfg.PlatformAPIURL,
		cfg.PlatformClientID,
		cfg.PlatformClientSecret,
		platformCB,
		resilienceCfg,
		logger,
	)

	// --- Services ---
	linkSvc := service.NewLinkingService(energisaClient, platformClient, sessionStore, metrics, logger)
	gdSvc := service.NewGDService(platformClient, gdCache, metrics, logger)
	dashSvc := service.NewDashboardService(platformClient, dashboardCache, metrics, logger)
	invSvc := service.NewInvoiceService(platformClient, cfg.BatchDelay, logger)
	reportSvc := service.NewReportService(platformClient, logger)
	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.JWTAccessTTL)

	if cfg.AdminKeyHash == "" {
		logger.Warn("admin key hash not configured, back-office routes disabled")
	}

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Linking:   linkSvc,
		GD:        gdSvc,
		Dashboard: dashSvc,
		Invoices:  invSvc,
		Reports:   reportSvc,
		Auth:      authSvc,
	}, metrics, cfg.AdminKeyHash, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
