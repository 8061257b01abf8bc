package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"radar-uptime/internal/models"
	"radar-uptime/pkg/database"
	"radar-uptime/pkg/logging"
	"radar-uptime/pkg/metrics"
)

// RecordRepository provides data access for session records
type RecordRepository interface {
	// Write operations. Records are keyed by (station_id, start time);
	// inserting an existing key is a no-op.
	CreateRecord(ctx context.Context, rec *models.Record) (bool, error)
	CreateRecordsBatch(ctx context.Context, records []models.Record) (int, error)
	InsertRecords(ctx context.Context, records []models.Record) ([]models.Record, error)

	// Read operations
	GetRecord(ctx context.Context, stationID int, start time.Time) (*models.Record, error)
	GetRecords(ctx context.Context, filter RecordFilter) ([]models.Record, int, error)
	SelectRecords(ctx context.Context, where string, args ...interface{}) ([]models.Record, error)
	ListStationIDs(ctx context.Context) ([]int, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// RecordFilter defines filters for querying records. From and To select
// records overlapping the half-open window [From, To).
type RecordFilter struct {
	StationID *int
	From      *time.Time
	To        *time.Time
	ValidOnly bool
	Limit     int
	Offset    int
}

const recordColumns = `station_id, start_iso, end_iso, cmd_name, cmd_args, cpid,
	min_nave, times_consistent, is_valid, min_tfreq, max_tfreq, xcf`

const insertRecordSQL = `
	INSERT INTO rawacf_records (` + recordColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (station_id, start_iso) DO NOTHING
`

// recordRepository implements RecordRepository
type recordRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) RecordRepository {
	return &recordRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

func rowArgs(row models.RecordRow) []interface{} {
	return []interface{}{
		row.StationID,
		row.StartISO,
		row.EndISO,
		row.CommandName,
		row.CommandArgs,
		row.ControlProgramID,
		row.MinPulseCount,
		row.TimesConsistent,
		row.IsValid,
		row.MinTxFreq,
		row.MaxTxFreq,
		row.CrossCorrelationFlag,
	}
}

// CreateRecord inserts one record and reports whether a row was added
func (r *recordRepository) CreateRecord(ctx context.Context, rec *models.Record) (bool, error) {
	row := models.EncodeRecord(*rec)

	result, err := r.db.ExecContext(ctx, "insert_record", insertRecordSQL, rowArgs(row)...)
	if err != nil {
		return false, fmt.Errorf("failed to create record: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_RECORD] Record stored", logging.Fields{
		"station_id": row.StationID,
		"start_iso":  row.StartISO,
		"inserted":   n > 0,
	})

	return n > 0, nil
}

// CreateRecordsBatch inserts records in a single transaction and returns
// the number of new rows
func (r *recordRepository) CreateRecordsBatch(ctx context.Context, records []models.Record) (int, error) {
	added, err := r.InsertRecords(ctx, records)
	return len(added), err
}

// InsertRecords inserts records in a single transaction and returns the
// ones that were not already stored, in input order.
func (r *recordRepository) InsertRecords(ctx context.Context, records []models.Record) ([]models.Record, error) {
	if len(records) == 0 {
		return nil, nil
	}

	timer := time.Now()
	var added []models.Record
	defer func() {
		r.metrics.IngestionBatchSize.Observe(float64(len(records)))
		r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
			"count":       len(records),
			"inserted":    len(added),
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		row := models.EncodeRecord(records[i])
		result, err := stmt.ExecContext(ctx, rowArgs(row)...)
		if err != nil {
			added = nil
			return nil, fmt.Errorf("failed to insert record %d/%s: %w", row.StationID, row.StartISO, err)
		}
		if n, err := result.RowsAffected(); err == nil && n > 0 {
			added = append(added, records[i])
		}
	}

	if err := tx.Commit(); err != nil {
		added = nil
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.RecordsWrittenTotal.Add(float64(len(added)))

	return added, nil
}

// GetRecord retrieves the record with the given key
func (r *recordRepository) GetRecord(ctx context.Context, stationID int, start time.Time) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM rawacf_records WHERE station_id = $1 AND start_iso = $2`
	startISO := models.FormatTime(start)

	var row models.RecordRow
	err := r.db.GetContext(ctx, "get_record", &row, query, stationID, startISO)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "rawacf_record",
			ID:       fmt.Sprintf("%d:%s", stationID, startISO),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	rec, err := row.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode record %d:%s: %w", stationID, startISO, err)
	}

	return &rec, nil
}

// GetRecords retrieves records with filtering and pagination
func (r *recordRepository) GetRecords(ctx context.Context, filter RecordFilter) ([]models.Record, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argNum := 1

	if filter.StationID != nil {
		where = append(where, fmt.Sprintf("station_id = $%d", argNum))
		args = append(args, *filter.StationID)
		argNum++
	}

	if filter.From != nil {
		where = append(where, fmt.Sprintf("end_iso >= $%d", argNum))
		args = append(args, models.FormatTime(*filter.From))
		argNum++
	}

	if filter.To != nil {
		where = append(where, fmt.Sprintf("start_iso < $%d", argNum))
		args = append(args, models.FormatTime(*filter.To))
		argNum++
	}

	if filter.ValidOnly {
		where = append(where, "is_valid = 1")
	}

	clause := strings.Join(where, " AND ")

	var totalCount int
	countQuery := "SELECT COUNT(*) FROM rawacf_records WHERE " + clause
	if err := r.db.GetContext(ctx, "count_records", &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	query := "SELECT " + recordColumns + " FROM rawacf_records WHERE " + clause +
		" ORDER BY start_iso, station_id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	records, err := r.selectRows(ctx, "get_records", query, args...)
	if err != nil {
		return nil, 0, err
	}

	return records, totalCount, nil
}

// SelectRecords returns records matching an arbitrary predicate. where is
// inserted verbatim after WHERE and must only reference args via $N.
func (r *recordRepository) SelectRecords(ctx context.Context, where string, args ...interface{}) ([]models.Record, error) {
	query := "SELECT " + recordColumns + " FROM rawacf_records"
	if strings.TrimSpace(where) != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY start_iso, station_id"

	return r.selectRows(ctx, "select_records", query, args...)
}

func (r *recordRepository) selectRows(ctx context.Context, queryType, query string, args ...interface{}) ([]models.Record, error) {
	var rows []models.RecordRow
	if err := r.db.SelectContext(ctx, queryType, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}

	records := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.Decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode record %d:%s: %w", row.StationID, row.StartISO, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ListStationIDs returns every station with at least one record
func (r *recordRepository) ListStationIDs(ctx context.Context) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, "list_stations", &ids,
		"SELECT DISTINCT station_id FROM rawacf_records ORDER BY station_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	return ids, nil
}

// HealthCheck verifies database connectivity
func (r *recordRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
