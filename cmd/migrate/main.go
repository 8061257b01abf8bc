package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"radar-uptime/internal/config"
	"radar-uptime/internal/repository/migrate"
	"radar-uptime/pkg/database"
	"radar-uptime/pkg/logging"
	"radar-uptime/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	direction := flag.String("direction", "up", "Migration direction: up, down or status")
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

	// The migrator reports on stdout; structured logs would only repeat it.
	logger := logging.NewStructuredLogger("radar-uptime-migrate", "1.0.0", logging.ErrorLevel)
	logger.SetOutput(io.Discard)

	db, err := database.Open(cfg.Database.DB(), logger, metrics.NewCollector("radar_uptime_migrate"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("Connected to %s database successfully\n", db.Driver())

	ctx := context.Background()
	runner := migrate.NewRunner(db.DB().DB)

	switch *direction {
	case "up":
		applied, err := runner.Up(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to execute migration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Applied %d migration(s)\n", applied)
	case "down":
		reverted, err := runner.Down(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to revert migration: %v\n", err)
			os.Exit(1)
		}
		if !reverted {
			fmt.Println("Nothing to revert")
			return
		}
		fmt.Println("Reverted the latest migration")
	case "status":
		current, pending, err := runner.Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read migration status: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Current version: %d\nPending:         %d\n", current, pending)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown direction %q, expected up, down or status\n", *direction)
		os.Exit(2)
	}

	fmt.Println("Migration completed successfully")
}
