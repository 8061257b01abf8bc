package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"radar-uptime/internal/config"
	"radar-uptime/internal/publisher"
	"radar-uptime/internal/remote"
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
	// Parse command-line flags
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	folder := flag.String("folder", "", "Ingest every rawacf file in this directory")
	year := flag.Int("year", 0, "Year to fetch from the archive")
	month := flag.Int("month", 0, "Month to fetch from the archive")
	day := flag.Int("day", 0, "Day to fetch; the whole month when omitted")
	station := flag.String("station", "", "Only fetch files for this 3-letter station code")
	flag.Parse()

	if *folder == "" && (*year == 0 || *month < 1 || *month > 12) {
		fmt.Fprintln(os.Stderr, "either -folder or -year and -month are required")
		flag.Usage()
		os.Exit(2)
	}

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
	logger := logging.NewStructuredLogger("rawacf-ingester", version, logging.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.File != "" {
		closer, err := logger.TeeToFile(cfg.Logging.File)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[INGESTER_START] Starting rawacf ingestion", logging.Fields{
		"version": version,
		"config":  cfg.ConfigFile,
		"folder":  *folder,
		"year":    *year,
		"month":   *month,
		"day":     *day,
		"station": *station,
		"workers": cfg.Ingest.Workers,
	})

	if *station != "" {
		table, err := stations.Load()
		if err != nil {
			logger.Fatal(ctx, "[INGESTER_ERROR] Failed to load station table", logging.Fields{}, err)
		}
		if _, ok := table.ByCode(*station); !ok {
			logger.Fatal(ctx, "[INGESTER_ERROR] Unknown station code", logging.Fields{"station": *station}, nil)
		}
	}

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("rawacf_ingester")

	// Initialize database
	db, err := database.Open(cfg.Database.DB(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	applied, err := migrate.NewRunner(db.DB().DB).Up(ctx)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to apply schema migrations", logging.Fields{}, err)
	}
	if applied > 0 {
		logger.Info(ctx, "[INGESTER_SCHEMA] Applied schema migrations", logging.Fields{"applied": applied})
	}

	// Initialize repository and services
	recordRepo := repository.NewRecordRepository(db, logger, metricsCollector)
	badFiles := services.NewBadFileLog(cfg.Ingest.BadRawacfsFile, cfg.Ingest.BadCPIDsFile, logger)

	var options []services.IngestionOption
	if len(cfg.Kafka.Brokers) > 0 {
		pub := publisher.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer pub.Close()
		options = append(options, services.WithPublisher(pub))
	}

	ingestionService := services.NewIngestionService(recordRepo, badFiles, services.IngestOptions{
		Workers:   cfg.Ingest.Workers,
		BatchSize: cfg.Ingest.BatchSize,
	}, logger, metricsCollector, options...)

	var results []*services.IngestionResult
	switch {
	case *folder != "":
		var result *services.IngestionResult
		result, err = ingestionService.IngestDirectory(ctx, *folder)
		if result != nil {
			results = append(results, result)
		}
	default:
		results, err = runSync(ctx, cfg, ingestionService, logger, metricsCollector, *year, time.Month(*month), *day, *station)
	}

	if cerr := badFiles.Close(); cerr != nil {
		logger.Error(ctx, "[INGESTER_BADFILES_ERROR] Failed to write bad file lists", logging.Fields{}, cerr)
	}

	printSummary(results, cfg.Ingest)

	if err != nil {
		logger.Error(ctx, "[INGESTION_ERROR] Ingestion finished with errors", logging.Fields{
			"error": err.Error(),
		}, err)
		os.Exit(1)
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion completed successfully", logging.Fields{
		"runs": len(results),
	})
}

func runSync(
	ctx context.Context,
	cfg *config.Config,
	ingest *services.IngestionService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
	year int, month time.Month, day int, station string,
) ([]*services.IngestionResult, error) {
	if cfg.Remote.Endpoint == "" {
		return nil, fmt.Errorf("remote.endpoint must be configured to fetch by date")
	}
	store, err := remote.NewStore(remote.StoreConfig{
		Endpoint:  cfg.Remote.Endpoint,
		AccessKey: cfg.Remote.AccessKey,
		SecretKey: cfg.Remote.SecretKey,
		Bucket:    cfg.Remote.Bucket,
		Region:    cfg.Remote.Region,
		UseSSL:    cfg.Remote.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	fetcher := remote.NewFetcher(store, remote.FetcherConfig{
		Prefix:    cfg.Remote.Prefix,
		WorkDir:   cfg.Ingest.WorkDir,
		RateLimit: cfg.Remote.RateLimit,
		RateBurst: cfg.Remote.RateBurst,
	}, logger, metricsCollector)
	syncService := services.NewSyncService(fetcher, ingest, cfg.Ingest.KeepFiles, logger, metricsCollector)

	if day > 0 {
		result, err := syncService.ProcessDay(ctx, time.Date(year, month, day, 0, 0, 0, 0, time.UTC), station)
		if result == nil {
			return nil, err
		}
		return []*services.IngestionResult{result}, err
	}
	return syncService.ProcessMonth(ctx, year, month, station)
}

func printSummary(results []*services.IngestionResult, ingestCfg config.IngestConfig) {
	var total services.IngestionResult
	var errs []string
	for _, r := range results {
		total.TotalFiles += r.TotalFiles
		total.Stored += r.Stored
		total.Inserted += r.Inserted
		total.Anomalies += r.Anomalies
		total.Corrupt += r.Corrupt
		total.Rejected += r.Rejected
		total.Failed += r.Failed
		total.Skipped += r.Skipped
		total.Warnings += r.Warnings
		total.Duration += r.Duration
		errs = append(errs, r.Errors...)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Runs:               %d\n", len(results))
	fmt.Printf("Total Files:        %d\n", total.TotalFiles)
	fmt.Printf("Stored Records:     %d (%d new)\n", total.Stored, total.Inserted)
	fmt.Printf("Data Anomalies:     %d\n", total.Anomalies)
	fmt.Printf("Corrupt Files:      %d (see %s)\n", total.Corrupt, ingestCfg.BadRawacfsFile)
	fmt.Printf("Rejected Files:     %d (see %s)\n", total.Rejected, ingestCfg.BadCPIDsFile)
	fmt.Printf("Failed Files:       %d\n", total.Failed)
	fmt.Printf("Skipped Files:      %d\n", total.Skipped)
	fmt.Printf("Time Corrections:   %d\n", total.Warnings)
	fmt.Printf("Duration:           %v\n", total.Duration)
	if secs := total.Duration.Seconds(); secs > 0 {
		fmt.Printf("Files/Second:       %.2f\n", float64(total.TotalFiles-total.Skipped)/secs)
	}

	if len(errs) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(errs))
		for i, errMsg := range errs {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(errs) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(errs)-10)
		}
	}
}
