package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"radar-uptime/internal/dmap"
	"radar-uptime/internal/models"
	"radar-uptime/internal/services"
	"radar-uptime/internal/stations"
	"radar-uptime/pkg/logging"
)

// inspect decodes rawacf files and prints the session record each would
// produce, without touching a database.
func main() {
	asJSON := flag.Bool("json", false, "Print each session as a JSON document")
	verbose := flag.Bool("v", false, "Also print the gap profile of every file")
	flag.Parse()

	logger := logging.NewStructuredLogger("rawacf-inspect", "1.0.0", logging.WarnLevel)
	ctx := context.Background()

	paths, err := expand(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: inspect [-json] [-v] FILE|DIR...")
		os.Exit(2)
	}

	table, err := stations.Load()
	if err != nil {
		logger.Fatal(ctx, "Failed to load station table", logging.Fields{}, err)
	}

	if !*asJSON {
		fmt.Println("════════════════════════════════════════════════════════════════")
		fmt.Println("RAWACF SESSION INSPECTION")
		fmt.Println("════════════════════════════════════════════════════════════════")
		fmt.Printf("Found %d rawacf files\n\n", len(paths))
	}

	var valid, anomalies, failed, corrections int
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for _, path := range paths {
		epochs, err := dmap.DecodeFile(path)
		if err != nil {
			failed++
			logger.Error(ctx, "Failed to decode file", logging.Fields{"file": path}, err)
			continue
		}
		session, err := models.BuildRecord(epochs)
		if err != nil {
			failed++
			logger.Error(ctx, "Failed to build record", logging.Fields{"file": path, "epochs": len(epochs)}, err)
			continue
		}
		corrections += len(session.Warnings)
		if session.Record.IsValid {
			valid++
		} else {
			anomalies++
		}

		if *asJSON {
			enc.Encode(struct {
				File string `json:"file"`
				*models.Session
			}{path, session})
			continue
		}

		rec := session.Record
		code := "???"
		if st, ok := table.ByID(rec.StationID); ok {
			code = st.Code
		}

		fmt.Printf("─────────────────────────────────────────────────────────────\n")
		fmt.Printf("%s\n", filepath.Base(path))
		fmt.Printf("─────────────────────────────────────────────────────────────\n")
		fmt.Printf("  Station:   %s (%d)\n", code, rec.StationID)
		fmt.Printf("  Window:    %s → %s (%v)\n", models.FormatTime(rec.StartTime), models.FormatTime(rec.EndTime), rec.Duration())
		fmt.Printf("  Command:   %s %s\n", rec.CommandName, rec.CommandArgs)
		fmt.Printf("  CPID:      %d | xcf: %d | min nave: %d\n", rec.ControlProgramID, rec.CrossCorrelationFlag, rec.MinPulseCount)
		fmt.Printf("  Frequency: %d - %d kHz\n", rec.MinTxFreq, rec.MaxTxFreq)
		fmt.Printf("  Epochs:    %d | times consistent: %t\n", len(epochs), rec.TimesConsistent)
		for _, f := range session.Objections.Fields() {
			fmt.Printf("  ⚠ %s: %s\n", f, session.Objections[f])
		}
		for _, w := range session.Warnings {
			fmt.Printf("  ✎ %s\n", w)
		}
		if *verbose {
			if gaps, err := models.GapProfile(epochs); err == nil {
				fmt.Printf("  Gaps:      %s\n", formatGaps(gaps))
			}
		}
		fmt.Println()
	}

	if *asJSON {
		return
	}

	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println("INSPECTION SUMMARY")
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Printf("Files:              %d\n", len(paths))
	fmt.Printf("Valid sessions:     %d\n", valid)
	fmt.Printf("Data anomalies:     %d\n", anomalies)
	fmt.Printf("Unreadable files:   %d\n", failed)
	fmt.Printf("Time corrections:   %d\n", corrections)
}

// expand replaces directory arguments with the rawacf files they contain.
func expand(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && services.IsRawacfFile(e.Name()) {
				paths = append(paths, filepath.Join(arg, e.Name()))
			}
		}
	}
	return paths, nil
}

func formatGaps(gaps []float64) string {
	parts := make([]string, len(gaps))
	for i, g := range gaps {
		parts[i] = fmt.Sprintf("%.1f", g)
		if g >= models.ConsistentGapThreshold {
			parts[i] += "!"
		}
	}
	return strings.Join(parts, " ")
}
