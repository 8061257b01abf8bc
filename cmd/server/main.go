package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"radar-uptime/internal/config"
	"radar-uptime/internal/handlers"
	"radar-uptime/internal/repository"
	"radar-uptime/internal/repository/migrate"
	"radar-uptime/internal/services"
	"radar-uptime/internal/stations"
	"radar-uptime/pkg/database"
	"radar-uptime/pkg/logging"
	"radar-uptime/pkg/metrics"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewStructuredLogger("radar-uptime-api", version, logging.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.File != "" {
		closer, err := logger.TeeToFile(cfg.Logging.File)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer closer.Close()
	}

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting radar uptime API server", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_driver":   cfg.Database.Driver,
		"db_name":     cfg.Database.Database,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("radar_uptime")

	// Initialize database
	db, err := database.Open(cfg.Database.DB(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// An in-memory duckdb starts empty, so the schema has to exist before serving.
	if _, err := migrate.NewRunner(db.DB().DB).Up(ctx); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to apply schema migrations", logging.Fields{}, err)
	}

	table, err := stations.Load()
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load station table", logging.Fields{}, err)
	}

	// Initialize repository
	recordRepo := repository.NewRecordRepository(db, logger, metricsCollector)

	// Initialize services
	recordService := services.NewRecordService(recordRepo, table, logger, metricsCollector)
	uptimeService := services.NewUptimeService(recordRepo, nil, logger, metricsCollector)

	// Initialize handlers
	recordHandler := handlers.NewRecordHandler(recordService, uptimeService, logger, metricsCollector)

	// Setup router
	router := mux.NewRouter()

	// Register routes
	recordHandler.RegisterRoutes(router)

	// API documentation
	router.HandleFunc(handlers.SpecPath, handlers.OpenAPISpec).Methods("GET")
	router.HandleFunc("/api/docs", handlers.SwaggerUI).Methods("GET")

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
			"docs":    "/api/docs",
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
