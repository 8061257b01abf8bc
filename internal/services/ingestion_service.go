package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"radar-uptime/internal/dmap"
	"radar-uptime/internal/models"
	"radar-uptime/internal/repository"
	"radar-uptime/pkg/logging"
	"radar-uptime/pkg/metrics"
)

// File outcomes, also used as the files_processed_total label.
const (
	OutcomeStored   = "stored"
	OutcomeAnomaly  = "anomaly"
	OutcomeCorrupt  = "corrupt"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// RecordPublisher receives records after they are committed.
type RecordPublisher interface {
	Publish(ctx context.Context, records []models.Record) error
}

// IngestOptions sizes the worker pool and the write batches.
type IngestOptions struct {
	Workers   int
	BatchSize int
}

// IngestionService decodes rawacf files concurrently and stores one record
// per file. Decoding and building run on a bounded worker pool; a single
// writer owns the repository and the bad file lists.
type IngestionService struct {
	repo      repository.RecordRepository
	badFiles  *BadFileLog
	publisher RecordPublisher
	opts      IngestOptions
	clock     clockwork.Clock
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// IngestionOption customizes an IngestionService.
type IngestionOption func(*IngestionService)

// WithPublisher forwards stored records to p.
func WithPublisher(p RecordPublisher) IngestionOption {
	return func(s *IngestionService) { s.publisher = p }
}

// WithClock replaces the wall clock used for run timing.
func WithClock(c clockwork.Clock) IngestionOption {
	return func(s *IngestionService) { s.clock = c }
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	RunID      string
	TotalFiles int
	Stored     int
	Inserted   int
	Anomalies  int
	Corrupt    int
	Rejected   int
	Failed     int
	Skipped    int
	Warnings   int
	Duration   time.Duration
	Errors     []string
	Files      []FileIngestionResult
}

// FileIngestionResult describes what happened to one file.
type FileIngestionResult struct {
	Path       string
	Outcome    string
	Record     *models.Record
	Objections []models.Field
	Warnings   []models.Warning
	Reason     string
}

// NewIngestionService creates a new ingestion service. badFiles may be nil,
// in which case bad files are only logged.
func NewIngestionService(repo repository.RecordRepository, badFiles *BadFileLog, opts IngestOptions, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, options ...IngestionOption) *IngestionService {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	s := &IngestionService{
		repo:     repo,
		badFiles: badFiles,
		opts:     opts,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		metrics:  metricsCollector,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// IsRawacfFile reports whether name is a file the ingester reads.
func IsRawacfFile(name string) bool {
	return strings.HasSuffix(name, ".rawacf") || strings.HasSuffix(name, ".rawacf.bz2")
}

// IngestDirectory ingests every rawacf file directly inside dataDir.
func (s *IngestionService) IngestDirectory(ctx context.Context, dataDir string) (*IngestionResult, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dataDir, e.Name()))
	}
	sort.Strings(paths)

	return s.IngestFiles(ctx, paths)
}

// IngestFiles ingests the given files. Files that are not rawacf files are
// counted as skipped. A cancelled context stops the run and is returned as
// the error together with the partial result.
func (s *IngestionService) IngestFiles(ctx context.Context, paths []string) (*IngestionResult, error) {
	start := s.clock.Now()
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)

	result := &IngestionResult{
		RunID:      runID,
		TotalFiles: len(paths),
		Errors:     make([]string, 0),
	}

	work := make([]string, 0, len(paths))
	for _, p := range paths {
		if !IsRawacfFile(filepath.Base(p)) {
			result.Skipped++
			result.Files = append(result.Files, FileIngestionResult{Path: p, Outcome: OutcomeSkipped})
			s.metrics.RecordFile(OutcomeSkipped)
			s.logger.Debug(ctx, "[INGEST_SKIP] File not used for dmap records", logging.Fields{
				"file_path": p,
			})
			continue
		}
		work = append(work, p)
	}

	s.logger.Info(ctx, "[INGEST_START] Starting rawacf ingestion", logging.Fields{
		"file_count": len(work),
		"skipped":    result.Skipped,
		"workers":    s.opts.Workers,
		"batch_size": s.opts.BatchSize,
		"stage":      "INITIALIZATION",
	})

	outcomes := make(chan fileOutcome, s.opts.Workers)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.write(ctx, outcomes, result)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, path := range work {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := s.processFile(gctx, i, path)
			select {
			case outcomes <- out:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	runErr := g.Wait()
	close(outcomes)
	<-writerDone

	result.Duration = s.clock.Since(start)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	fields := logging.Fields{
		"total_files":      result.TotalFiles,
		"stored":           result.Stored,
		"inserted":         result.Inserted,
		"anomalies":        result.Anomalies,
		"corrupt":          result.Corrupt,
		"rejected":         result.Rejected,
		"failed":           result.Failed,
		"skipped":          result.Skipped,
		"warnings":         result.Warnings,
		"duration_seconds": result.Duration.Seconds(),
		"error_count":      len(result.Errors),
		"stage":            "COMPLETE",
	}
	if runErr != nil {
		s.logger.Error(ctx, "[INGEST_ABORTED] Rawacf ingestion stopped early", fields, runErr)
		return result, runErr
	}
	s.logger.Info(ctx, "[INGEST_COMPLETE] Rawacf ingestion completed", fields)
	return result, nil
}

// fileOutcome is what a worker hands to the writer.
type fileOutcome struct {
	index   int
	path    string
	outcome string
	session *models.Session
	reason  string
	err     error
}

// processFile decodes and builds one file. It has no side effects beyond
// logging so it can run on any worker.
func (s *IngestionService) processFile(ctx context.Context, index int, path string) fileOutcome {
	ctx = logging.WithSourceFile(ctx, path)
	out := fileOutcome{index: index, path: path}

	epochs, err := dmap.DecodeFile(path)
	if err != nil {
		out.err = err
		var dataErr *dmap.DataError
		if errors.As(err, &dataErr) {
			out.outcome = OutcomeCorrupt
			out.reason = dataErr.Error()
			s.logger.Warn(ctx, "[INGEST_CORRUPT] Error reading dmap from stream, skipping file", logging.Fields{
				"index":  index,
				"record": dataErr.Record,
				"offset": dataErr.Offset,
			})
		} else {
			out.outcome = OutcomeFailed
			out.reason = err.Error()
			s.logger.Error(ctx, "[INGEST_READ_ERROR] Could not read file", logging.Fields{
				"index": index,
			}, err)
		}
		return out
	}

	session, err := models.BuildRecord(epochs)
	if err != nil {
		out.outcome = OutcomeRejected
		out.reason = err.Error()
		out.err = err
		s.logger.Warn(ctx, "[INGEST_REJECTED] File could not be built into a record", logging.Fields{
			"index":  index,
			"epochs": len(epochs),
			"error":  err.Error(),
			"reason": rejectionKind(err),
		})
		return out
	}

	out.session = session
	out.outcome = OutcomeStored
	if !session.Record.IsValid {
		out.outcome = OutcomeAnomaly
		out.reason = anomalyReason(session)
	}
	for _, w := range session.Warnings {
		s.logger.Warn(ctx, "[INGEST_TIME_CORRECTED] Timestamp field corrected", logging.Fields{
			"index":   w.Index,
			"field":   w.Field,
			"message": w.Message,
		})
	}
	return out
}

func rejectionKind(err error) string {
	var (
		malformed *models.MalformedTimestampError
		missing   *models.MissingFieldError
	)
	switch {
	case errors.Is(err, models.ErrDegenerateSession):
		return "degenerate"
	case errors.As(err, &malformed):
		return "malformed_time"
	case errors.As(err, &missing):
		return "missing_field"
	default:
		return "build_error"
	}
}

func anomalyReason(session *models.Session) string {
	fields := session.Objections.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("data anomaly detected in %s", strings.Join(names, ", "))
}

// write is the single consumer of worker outcomes. It batches records into
// the repository and reports bad files in arrival order.
func (s *IngestionService) write(ctx context.Context, outcomes <-chan fileOutcome, result *IngestionResult) {
	batch := make([]fileOutcome, 0, s.opts.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		records := make([]models.Record, len(batch))
		for i, p := range batch {
			records[i] = p.session.Record
		}

		added, err := s.repo.InsertRecords(ctx, records)
		if err != nil {
			s.metrics.RecordIngestionError("store_error")
			result.Errors = append(result.Errors, fmt.Sprintf("failed to store batch of %d records: %v", len(batch), err))
			s.logger.Error(ctx, "[INGEST_STORE_ERROR] Batch insert failed", logging.Fields{
				"batch_size": len(batch),
				"stage":      "STORE",
			}, err)
			for _, p := range batch {
				p.outcome = OutcomeFailed
				p.reason = fmt.Sprintf("store failed: %v", err)
				s.finish(ctx, p, result)
			}
			batch = batch[:0]
			return
		}
		result.Inserted += len(added)

		// Rows that were already stored were published by an earlier run.
		if s.publisher != nil && len(added) > 0 {
			if err := s.publisher.Publish(ctx, added); err != nil {
				s.metrics.RecordIngestionError("publish_error")
				result.Errors = append(result.Errors, fmt.Sprintf("failed to publish %d records: %v", len(added), err))
				s.logger.Error(ctx, "[INGEST_PUBLISH_ERROR] Publishing stored records failed", logging.Fields{
					"count": len(added),
				}, err)
			} else {
				s.metrics.RecordsPublishedTotal.Add(float64(len(added)))
			}
		}

		for _, p := range batch {
			s.finish(ctx, p, result)
		}
		batch = batch[:0]
	}

	for out := range outcomes {
		if out.session == nil {
			s.finish(ctx, out, result)
			continue
		}
		batch = append(batch, out)
		if len(batch) >= s.opts.BatchSize {
			flush()
		}
	}
	flush()
}

// finish tallies a file whose fate is settled.
func (s *IngestionService) finish(ctx context.Context, out fileOutcome, result *IngestionResult) {
	fr := FileIngestionResult{
		Path:    out.path,
		Outcome: out.outcome,
		Reason:  out.reason,
	}
	if out.session != nil {
		rec := out.session.Record
		fr.Record = &rec
		fr.Objections = out.session.Objections.Fields()
		fr.Warnings = out.session.Warnings
		result.Warnings += len(out.session.Warnings)
		s.metrics.TimestampWarnings.Add(float64(len(out.session.Warnings)))
	}
	result.Files = append(result.Files, fr)
	s.metrics.RecordFile(out.outcome)

	name := filepath.Base(out.path)
	switch out.outcome {
	case OutcomeStored:
		result.Stored++
		s.logger.Info(ctx, "[INGEST_FILE_SUCCESS] File processed", logging.Fields{
			"file_path": out.path,
			"record":    out.session.Record.String(),
		})
	case OutcomeAnomaly:
		result.Stored++
		result.Anomalies++
		for _, f := range fr.Objections {
			s.metrics.RecordObjection(string(f))
		}
		s.report(ctx, BadFile{Kind: RejectedFile, Name: name, Reason: out.reason})
	case OutcomeCorrupt:
		result.Corrupt++
		s.metrics.RecordIngestionError("corrupt_file")
		s.report(ctx, BadFile{Kind: CorruptFile, Name: name, Reason: out.reason})
	case OutcomeRejected:
		result.Rejected++
		s.metrics.RecordIngestionError(rejectionKind(out.err))
		s.report(ctx, BadFile{Kind: RejectedFile, Name: name, Reason: out.reason})
	case OutcomeFailed:
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", out.path, out.reason))
		if out.session != nil {
			s.report(ctx, BadFile{Kind: RejectedFile, Name: name, Reason: out.reason})
		} else {
			s.metrics.RecordIngestionError("read_error")
		}
	}
}

// report records a settled file even when the run is being cancelled, so
// the lists stay complete for every file that finished.
func (s *IngestionService) report(ctx context.Context, entry BadFile) {
	if s.badFiles == nil {
		return
	}
	if err := s.badFiles.Report(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn(ctx, "[INGEST_BADFILE_DROPPED] Bad file entry not recorded", logging.Fields{
			"file":  entry.Name,
			"list":  entry.Kind.String(),
			"error": err.Error(),
		})
	}
}
