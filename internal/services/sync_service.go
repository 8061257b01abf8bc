package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"radar-uptime/pkg/logging"
	"radar-uptime/pkg/metrics"
)

// DayFetcher stages one day of archive files locally.
type DayFetcher interface {
	FetchDay(ctx context.Context, day time.Time, station string) ([]string, error)
	Clear(paths []string) error
}

// SyncService runs the fetch, ingest and clear cycle per day.
type SyncService struct {
	fetcher   DayFetcher
	ingest    *IngestionService
	keepFiles bool
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewSyncService creates a new sync service. With keepFiles set, fetched
// files are left in the work directory after ingestion.
func NewSyncService(fetcher DayFetcher, ingest *IngestionService, keepFiles bool, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SyncService {
	return &SyncService{
		fetcher:   fetcher,
		ingest:    ingest,
		keepFiles: keepFiles,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// ProcessDay fetches the day's files, optionally for one station code,
// ingests them and then removes the local copies.
func (s *SyncService) ProcessDay(ctx context.Context, day time.Time, station string) (*IngestionResult, error) {
	dayStr := day.Format(time.DateOnly)

	paths, err := s.fetcher.FetchDay(ctx, day, station)
	if err != nil {
		s.metrics.RecordIngestionError("fetch_error")
		// A failed fetch may still have staged some files.
		s.clear(ctx, dayStr, paths)
		return nil, fmt.Errorf("fetch %s: %w", dayStr, err)
	}

	result, err := s.ingest.IngestFiles(ctx, paths)
	s.clear(ctx, dayStr, paths)

	if err != nil {
		return result, fmt.Errorf("ingest %s: %w", dayStr, err)
	}

	s.logger.Info(ctx, "[SYNC_DAY_COMPLETE] Completed processing of requested day", logging.Fields{
		"day":     dayStr,
		"station": station,
		"stored":  result.Stored,
	})
	return result, nil
}

func (s *SyncService) clear(ctx context.Context, dayStr string, paths []string) {
	if s.keepFiles || len(paths) == 0 {
		return
	}
	if err := s.fetcher.Clear(paths); err != nil {
		s.logger.Error(ctx, "[SYNC_CLEAR_ERROR] Unable to remove fetched files", logging.Fields{
			"day": dayStr,
		}, err)
		return
	}
	s.logger.Info(ctx, "[SYNC_CLEARED] Fetched files removed", logging.Fields{
		"day":   dayStr,
		"files": len(paths),
	})
}

// ProcessMonth runs ProcessDay for every day of the month. A failed day is
// logged and the loop moves on; cancellation stops it.
func (s *SyncService) ProcessMonth(ctx context.Context, year int, month time.Month, station string) ([]*IngestionResult, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()

	s.logger.Info(ctx, "[SYNC_MONTH_START] Processing month", logging.Fields{
		"month":   first.Format("2006-01"),
		"days":    last,
		"station": station,
	})

	var (
		results []*IngestionResult
		errs    []error
	)
	for d := 0; d < last; d++ {
		day := first.AddDate(0, 0, d)
		result, err := s.ProcessDay(ctx, day, station)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return results, ctxErr
			}
			s.logger.Error(ctx, "[SYNC_DAY_ERROR] Day failed, continuing", logging.Fields{
				"day": day.Format(time.DateOnly),
			}, err)
			errs = append(errs, err)
		}
	}

	s.logger.Info(ctx, "[SYNC_MONTH_COMPLETE] Completed processing of requested month", logging.Fields{
		"month":       first.Format("2006-01"),
		"days_failed": len(errs),
	})
	return results, errors.Join(errs...)
}
