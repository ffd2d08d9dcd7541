package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"cleantransparency/backend/internal/api"
	"cleantransparency/backend/internal/audit"
	"cleantransparency/backend/internal/auth"
	"cleantransparency/backend/internal/config"
	"cleantransparency/backend/internal/hitl"
	"cleantransparency/backend/internal/logging"
	"cleantransparency/backend/internal/mcp"
	"cleantransparency/backend/internal/repository"
	"cleantransparency/backend/internal/signing"
	"cleantransparency/backend/internal/tls"
	"cleantransparency/backend/internal/verify"
	"cleantransparency/backend/internal/workflow"
)

func main() {
	ctx := context.Background()

	// Initialize logging
	logger := logging.NewLogger()

	// Parse command line flags
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		log.Fatalf("Configuration loading failed: %v", err)
	}
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"config_file", viper.ConfigFileUsed(),
	)

	logger.Info("Starting CleanTransparency Certification Service")

	// Initialize storage. Certification must stay available even when the
	// database is down, so a failed connection falls back to the in-memory
	// repository instead of aborting startup.
	var repo repository.Repository
	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("Database unavailable, serving from in-memory storage", "error", err)
		repo = repository.NewMemoryRepository()
	} else {
		defer dbPool.Close()
		if err := repository.Migrate(ctx, dbPool); err != nil {
			logger.Error("Failed to apply schema", "error", err)
			log.Fatalf("Schema migration failed: %v", err)
		}
		repo = repository.NewPostgresRepository(dbPool)
		logger.Info("Database connected")
	}

	// Optional certificate signer
	var signer signing.Signer
	if cfg.Workflow.SigningKeyFile != "" {
		ecdsaSigner, err := signing.LoadECDSASigner(cfg.Workflow.SigningKeyFile)
		if err != nil {
			logger.Error("Failed to load signing key, certificates will be unsigned", "error", err)
		} else {
			signer = ecdsaSigner
			logger.Info("Certificate signer loaded", "key_file", cfg.Workflow.SigningKeyFile)
		}
	}

	// Wire the certification components
	scorer := &workflow.HeuristicScorer{HighAmountThreshold: cfg.Workflow.HITLMontoThreshold}
	checker := workflow.StaticComplianceChecker{Result: true}
	engine := workflow.NewEngine(repo, scorer, checker, signer, logger)
	coordinator := hitl.NewCoordinator(repo, logger)
	verifier := verify.NewVerifier(repo)
	trail := audit.NewTrailBuilder(repo)

	logger.Info("Certification components initialized")

	// Create Echo server
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("cleantransparency"))

	// Initialize authentication
	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize auth", "error", err)
		log.Fatalf("auth initialization failed: %v", err)
	}

	// Register auth handlers
	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	// Mount REST API handlers behind auth
	apiServer := api.NewServer(engine, coordinator, verifier, trail, signer, repo, logger)
	e.GET("/health", apiServer.HandleHealth)

	apiGroup := e.Group("/api/v2")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	apiServer.RegisterRoutes(apiGroup)

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(verifier, trail, coordinator)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.Server.TLS.Enable)
		if cfg.Server.TLS.Enable {
			if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			// generate if missing and hostnames provided
			if _, err := os.Stat(cfg.Server.TLS.CertFile); os.IsNotExist(err) {
				if len(cfg.Server.TLS.Hostnames) > 0 {
					if err := tls.GenerateSelfSignedCert(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, cfg.Server.TLS.Hostnames); err != nil {
						logger.Error("failed to generate self-signed cert", "error", err)
					}
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
