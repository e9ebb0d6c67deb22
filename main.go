package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for the readiness probe
	"go.uber.org/zap"

	"github.com/cutroom-studio/cutroom-engine/pkg/auth"
	"github.com/cutroom-studio/cutroom-engine/pkg/config"
	"github.com/cutroom-studio/cutroom-engine/pkg/database"
	"github.com/cutroom-studio/cutroom-engine/pkg/handlers"
	"github.com/cutroom-studio/cutroom-engine/pkg/logging"
	"github.com/cutroom-studio/cutroom-engine/pkg/metrics"
	"github.com/cutroom-studio/cutroom-engine/pkg/middleware"
	"github.com/cutroom-studio/cutroom-engine/pkg/plans"
	"github.com/cutroom-studio/cutroom-engine/pkg/repositories"
	"github.com/cutroom-studio/cutroom-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

// schemaVersion is the lowest migration the code runs against.
const schemaVersion = 1

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeDSN(cfg.Database.ConnectionString())),
		zap.Int("editor_capacity", cfg.Workload.EditorCapacity),
		zap.Int("qc_capacity", cfg.Workload.QCCapacity),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database: pooled pgx for requests, database/sql for readiness.
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MinConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", logging.Error(err))
	}
	defer db.Close()

	if _, err := database.RunMigrations(cfg.Database.ConnectionString(), cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", logging.Error(err))
	}

	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open readiness connection", logging.Error(err))
	}
	defer sqlDB.Close()

	// Identity
	validatorCfg := &auth.ValidatorConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	}
	if cfg.Auth.JWTSecret != "" {
		validatorCfg.HMACSecret = []byte(cfg.Auth.JWTSecret)
	}
	jwtValidator, err := auth.NewJWTValidator(ctx, validatorCfg)
	if err != nil {
		logger.Fatal("Failed to create JWT validator", zap.Error(err))
	}
	defer jwtValidator.Close()
	if !cfg.Auth.EnableVerification {
		logger.Warn("JWT verification disabled; tokens are trusted without a signature check")
	}
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwtValidator, logger), logger)

	// Core
	catalog := plans.Default()
	m := metrics.New()
	tx := database.NewTransactor()
	accountRepo := repositories.NewAccountRepository()
	projectRepo := repositories.NewProjectRepository()
	eventRepo := repositories.NewStatusEventRepository()
	capacities := services.Capacities{
		Editor: cfg.Workload.EditorCapacity,
		QC:     cfg.Workload.QCCapacity,
	}

	accountService := services.NewAccountService(tx, accountRepo, catalog, logger)
	projectService := services.NewProjectService(tx, accountRepo, projectRepo, eventRepo, catalog, m, logger)
	assignmentService := services.NewAssignmentService(tx, accountRepo, projectRepo, eventRepo, catalog, capacities, m, logger)
	workloadService := services.NewWorkloadService(accountRepo, projectRepo, capacities, m, logger)

	// HTTP
	validate := validator.New(validator.WithRequiredStructEnabled())
	limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst, logger)
	requestScope := database.WithRequestScope(db, logger)
	scope := func(next http.HandlerFunc) http.HandlerFunc {
		return limiter.Wrap(requestScope(next))
	}

	mux := http.NewServeMux()

	ready := func(ctx context.Context) error {
		return database.CheckReady(ctx, sqlDB, schemaVersion)
	}
	handlers.NewHealthHandler(cfg, ready, logger).RegisterRoutes(mux)
	handlers.NewPlansHandler(catalog, logger).RegisterRoutes(mux)
	handlers.NewAccountsHandler(accountService, validate, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewProjectsHandler(projectService, assignmentService, validate, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewWorkloadHandler(workloadService, logger).RegisterRoutes(mux, authMiddleware, scope)
	mux.Handle("GET /metrics", m.Handler())

	var handler http.Handler = mux
	handler = m.Instrument(handler)
	handler = middleware.RequestLogger(logger)(handler)
	handler = middleware.CORS(cfg.HTTP.CORSOrigins)(handler)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting cutroom-engine",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.TLSCertPath != ""),
			zap.String("version", cfg.Version))
		if cfg.TLSCertPath != "" {
			serveErr <- srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
