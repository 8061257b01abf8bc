package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"radar-uptime/internal/models"
	"radar-uptime/internal/repository"
	"radar-uptime/internal/stations"
	"radar-uptime/pkg/logging"
	"radar-uptime/pkg/metrics"
)

// StationSummary is a station from the static table, or one seen only in
// stored records, together with whether any records exist for it.
type StationSummary struct {
	Code       string `json:"code,omitempty"`
	ID         int    `json:"id"`
	Beams      int    `json:"beams,omitempty"`
	Legacy     bool   `json:"legacy"`
	HasRecords bool   `json:"has_records"`
	Known      bool   `json:"known"`
}

// RecordService handles record queries
type RecordService struct {
	repo     repository.RecordRepository
	stations *stations.Table
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewRecordService creates a new record service
func NewRecordService(repo repository.RecordRepository, table *stations.Table, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *RecordService {
	return &RecordService{
		repo:     repo,
		stations: table,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// GetRecords retrieves records with filtering
func (s *RecordService) GetRecords(ctx context.Context, filter repository.RecordFilter) ([]models.Record, int, error) {
	return s.repo.GetRecords(ctx, filter)
}

// ResolveStation accepts a station code or numeric id.
func (s *RecordService) ResolveStation(ref string) (int, error) {
	if st, ok := s.stations.ByCode(ref); ok {
		return st.ID, nil
	}
	if id, err := strconv.Atoi(ref); err == nil {
		return id, nil
	}
	return 0, &models.ValidationError{
		Field:   "station",
		Value:   ref,
		Message: fmt.Sprintf("unknown station %q", ref),
	}
}

// GetStations lists the station table merged with the stations present in
// storage, ordered by id.
func (s *RecordService) GetStations(ctx context.Context) ([]StationSummary, error) {
	ids, err := s.repo.ListStationIDs(ctx)
	if err != nil {
		return nil, err
	}
	stored := make(map[int]bool, len(ids))
	for _, id := range ids {
		stored[id] = true
	}

	all := s.stations.All()
	out := make([]StationSummary, 0, len(all)+len(ids))
	for _, st := range all {
		out = append(out, StationSummary{
			Code:       st.Code,
			ID:         st.ID,
			Beams:      st.Beams,
			Legacy:     models.IsLegacyStation(int64(st.ID)),
			HasRecords: stored[st.ID],
			Known:      true,
		})
		delete(stored, st.ID)
	}

	for _, id := range ids {
		if !stored[id] {
			continue
		}
		s.logger.Debug(ctx, "[STATIONS_UNKNOWN_ID] Stored records reference a station outside the table", logging.Fields{
			"station_id": id,
		})
		out = append(out, StationSummary{
			ID:         id,
			Legacy:     models.IsLegacyStation(int64(id)),
			HasRecords: true,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetRecord retrieves one record by key
func (s *RecordService) GetRecord(ctx context.Context, stationID int, start time.Time) (*models.Record, error) {
	return s.repo.GetRecord(ctx, stationID, start)
}

// HealthCheck verifies the record store is reachable
func (s *RecordService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
