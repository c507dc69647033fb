package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rizonesoft/isotone-sub002/internal/auth"
	"github.com/rizonesoft/isotone-sub002/internal/config"
	"github.com/rizonesoft/isotone-sub002/internal/database"
	"github.com/rizonesoft/isotone-sub002/internal/handlers"
	"github.com/rizonesoft/isotone-sub002/internal/metrics"
	middlewareCustom "github.com/rizonesoft/isotone-sub002/internal/middleware"
	"github.com/rizonesoft/isotone-sub002/internal/repositories"
	"github.com/rizonesoft/isotone-sub002/internal/routes"
	"github.com/rizonesoft/isotone-sub002/internal/services"
	"github.com/rizonesoft/isotone-sub002/internal/settings"
	pkghttp "github.com/rizonesoft/isotone-sub002/pkg/http"
	pkglogger "github.com/rizonesoft/isotone-sub002/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))
	for _, w := range cfg.Warnings() {
		logger.Warn("unsafe configuration", slog.String("warning", w))
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := db.RunMigrations(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	lockoutRepo := repositories.NewLockoutRepository(db)
	accessListRepo := repositories.NewAccessListRepository(db)
	credentialRepo := repositories.NewAPICredentialRepository(db)
	rateWindowRepo := repositories.NewRateWindowRepository(db)
	authLogRepo := repositories.NewAuthLogRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db)

	// Resolve runtime settings over the env defaults
	settingsProvider := settings.NewProvider(settings.FromConfig(cfg.Protection), settingsRepo, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := settingsProvider.Load(ctx); err != nil {
		logger.Warn("using configured protection defaults", slog.Any("error", err))
	}
	cancel()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	auditLogger := pkglogger.NewAuditLogger(logger)
	ipConfig := &pkghttp.IPConfig{
		TrustForwardHeaders: cfg.Server.TrustProxyHeaders,
		TrustedProxies:      cfg.Server.TrustedProxies,
	}
	storeTimeout := cfg.Security.StoreTimeout

	// Lockout notification
	var notifier services.LockoutNotifier = services.NoopLockoutNotifier{}
	if cfg.Email.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		ses, err := services.NewSESLockoutNotifier(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.AdminAddress, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize lockout notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = ses
	}

	// Initialize services
	ledger := services.NewAttemptLedger(loginAttemptRepo, auditLogger, logger, m, storeTimeout)
	lists := services.NewAccessListService(accessListRepo, settingsProvider, logger, storeTimeout)
	lockouts := services.NewLockoutService(services.LockoutDeps{
		Repo:     lockoutRepo,
		Ledger:   ledger,
		Lists:    lists,
		Locker:   db,
		Settings: settingsProvider,
		Notifier: notifier,
		Audit:    auditLogger,
		Logger:   logger,
		Metrics:  m,
	}, storeTimeout)
	audit := services.NewAuditService(authLogRepo, auditLogger, logger, storeTimeout)
	limiter := services.NewRateLimiter(rateWindowRepo, db, logger, m, storeTimeout)
	credentials := services.NewCredentialService(services.CredentialDeps{
		Repo:                  credentialRepo,
		Manager:               auth.NewCredentialManager(cfg.Security.BcryptCost),
		Limiter:               limiter,
		Audit:                 audit,
		AdminAudit:            auditLogger,
		IPConfig:              ipConfig,
		Logger:                logger,
		Metrics:               m,
		AllowQueryCredentials: cfg.Security.AllowQueryCredentials,
	}, storeTimeout)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, m, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Dependencies{
		Protection:             handlers.NewProtectionHandler(lockouts, ledger, ipConfig),
		Credentials:            handlers.NewCredentialHandler(credentials),
		Admin:                  handlers.NewAdminHandler(lists, lockouts, audit),
		Settings:               handlers.NewSettingsHandler(settingsProvider),
		Authenticator:          credentials,
		Padding:                auth.NewRejectionPadding(cfg.Security.RejectionFloor, cfg.Security.RejectionJitter),
		IPConfig:               ipConfig,
		LoginRequestsPerMinute: cfg.Server.LoginRequestsPerMinute,
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}

		pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"database": "up",
			"pool":     db.Stats(),
		})
	})
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
