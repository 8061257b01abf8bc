package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"radar-uptime/internal/dmap"
	"radar-uptime/internal/models"
	"radar-uptime/internal/repository"
	"radar-uptime/internal/repository/migrate"
	"radar-uptime/pkg/database"
	"radar-uptime/pkg/logging"
	"radar-uptime/pkg/metrics"
)

var sessionStart = time.Date(2019, 3, 14, 2, 0, 0, 0, time.UTC)

func testLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("services-test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return logger
}

func testMetrics() *metrics.Collector {
	return metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())
}

func newTestRepo(t *testing.T) repository.RecordRepository {
	t.Helper()

	logger := testLogger()
	collector := testMetrics()

	db, err := database.Open(&database.Config{Driver: database.DriverDuckDB}, logger, collector)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = migrate.NewRunner(db.DB().DB).Up(context.Background())
	require.NoError(t, err)

	return repository.NewRecordRepository(db, logger, collector)
}

// epochAt builds a consistent epoch for station stid at t.
func epochAt(stid int16, t time.Time) models.Epoch {
	return models.Epoch{
		models.KeyControlProg:   int16(151),
		models.KeyOriginCommand: "normalscan -fast",
		models.KeyStationID:     stid,
		models.KeyPulseLength:   int16(300),
		models.KeyRangeSep:      int16(45),
		models.KeyBeamNumber:    int16(7),
		models.KeyXCF:           int16(1),
		models.KeyTxFreq:        int16(10500),
		models.KeyNave:          int16(20),
		models.KeyYear:          int16(t.Year()),
		models.KeyMonth:         int16(t.Month()),
		models.KeyDay:           int16(t.Day()),
		models.KeyHour:          int16(t.Hour()),
		models.KeyMinute:        int16(t.Minute()),
		models.KeySecond:        int16(t.Second()),
		models.KeyMicrosecond:   int32(t.Nanosecond() / 1000),
	}
}

func sessionEpochs(stid int16, start time.Time, n int, step time.Duration) []models.Epoch {
	epochs := make([]models.Epoch, n)
	for i := range epochs {
		epochs[i] = epochAt(stid, start.Add(time.Duration(i)*step))
	}
	return epochs
}

// writeRawacf encodes epochs into dir/name and returns the path.
func writeRawacf(t *testing.T, dir, name string, epochs []models.Epoch) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, dmap.Encode(f, epochs))
	return path
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
