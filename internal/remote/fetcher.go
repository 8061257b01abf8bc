package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"radar-uptime/pkg/logging"
	"radar-uptime/pkg/metrics"
)

// FetcherConfig controls where files land and how fast they are pulled.
type FetcherConfig struct {
	Prefix    string
	WorkDir   string
	RateLimit float64
	RateBurst int
}

// Fetcher copies one day of rawacf files from the archive into WorkDir.
type Fetcher struct {
	store   ObjectStore
	cfg     FetcherConfig
	limiter *rate.Limiter
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewFetcher creates a fetcher. A non-positive RateLimit disables throttling.
func NewFetcher(store ObjectStore, cfg FetcherConfig, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Fetcher {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if cfg.RateBurst < 1 {
		cfg.RateBurst = 1
	}
	return &Fetcher{
		store:   store,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.RateBurst),
		logger:  logger,
		metrics: metricsCollector,
	}
}

// WorkDir is where fetched files are written.
func (f *Fetcher) WorkDir() string {
	return f.cfg.WorkDir
}

// DayPrefix is the archive key prefix for one day: {prefix}YYYY/MM/YYYYMMDD.
func DayPrefix(prefix string, day time.Time) string {
	return prefix + day.Format("2006/01/20060102")
}

// MatchesStation reports whether an archive file name belongs to station
// code, e.g. 20190314.0200.00.sas.rawacf.bz2 for "sas".
func MatchesStation(name, code string) bool {
	return strings.Contains(strings.ToLower(name), "."+strings.ToLower(code)+".")
}

// FetchDay downloads the day's files, optionally limited to one station
// code, and returns their local paths. Individual download failures are
// logged and skipped; listing failures abort.
func (f *Fetcher) FetchDay(ctx context.Context, day time.Time, station string) ([]string, error) {
	prefix := DayPrefix(f.cfg.Prefix, day)
	objects, err := f.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	if err := os.MkdirAll(f.cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	f.logger.Info(ctx, "[FETCH_START] Fetching rawacf files", logging.Fields{
		"day":     day.Format(time.DateOnly),
		"prefix":  prefix,
		"station": station,
		"listed":  len(objects),
	})

	var paths []string
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if station != "" && !MatchesStation(name, station) {
			continue
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return paths, err
		}

		dest := filepath.Join(f.cfg.WorkDir, name)
		n, err := f.store.Download(ctx, obj.Key, dest)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return paths, ctxErr
			}
			f.metrics.RecordDownload("error", 0)
			f.logger.Error(ctx, "[FETCH_ERROR] Download failed", logging.Fields{
				"key":       obj.Key,
				"transient": isTransient(err),
			}, err)
			os.Remove(dest)
			continue
		}
		f.metrics.RecordDownload("ok", n)
		paths = append(paths, dest)
	}

	f.logger.Info(ctx, "[FETCH_COMPLETE] Rawacf files fetched", logging.Fields{
		"day":        day.Format(time.DateOnly),
		"downloaded": len(paths),
	})
	return paths, nil
}

// Clear removes files previously returned by FetchDay.
func (f *Fetcher) Clear(paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isTransient(err error) bool {
	var t interface{ IsTransient() bool }
	return errors.As(err, &t) && t.IsTransient()
}
