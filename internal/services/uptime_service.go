package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"radar-uptime/internal/models"
	"radar-uptime/internal/repository"
	"radar-uptime/pkg/logging"
	"radar-uptime/pkg/metrics"
)

const secondsPerDay = 86400.0

// MaxUptimeDays bounds a single uptime query.
const MaxUptimeDays = 366

// DailyUptime is the recorded coverage of one station on one UTC day.
// Overlapping sessions are summed, so Fraction can exceed 1.
type DailyUptime struct {
	Date      time.Time `json:"date"`
	StationID int       `json:"station_id"`
	Seconds   float64   `json:"seconds"`
	Fraction  float64   `json:"fraction"`
	Records   int       `json:"records"`
}

// UptimeQuery selects the days to report. From and To are UTC dates and
// both are included. A zero To means today.
type UptimeQuery struct {
	StationID      int
	From           time.Time
	To             time.Time
	IncludeInvalid bool
}

// UptimeService reports per-day uptime from stored records.
type UptimeService struct {
	repo    repository.RecordRepository
	clock   clockwork.Clock
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewUptimeService creates a new uptime service
func NewUptimeService(repo repository.RecordRepository, clock clockwork.Clock, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *UptimeService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &UptimeService{
		repo:    repo,
		clock:   clock,
		logger:  logger,
		metrics: metricsCollector,
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DailyUptime returns one entry per day in the query window.
func (s *UptimeService) DailyUptime(ctx context.Context, q UptimeQuery) ([]DailyUptime, error) {
	timer := s.metrics.NewTimer(s.metrics.UptimeCalculationDuration)
	defer timer.ObserveDuration()

	to := q.To
	if to.IsZero() {
		to = s.clock.Now()
	}
	to = truncateDay(to)
	from := to
	if !q.From.IsZero() {
		from = truncateDay(q.From)
	}
	if from.After(to) {
		return nil, &models.ValidationError{
			Field:   "start_date",
			Value:   from.Format(time.DateOnly),
			Message: "start_date must not be after end_date",
		}
	}

	days := int(to.Sub(from)/(24*time.Hour)) + 1
	if days > MaxUptimeDays {
		return nil, &models.ValidationError{
			Field:   "end_date",
			Value:   to.Format(time.DateOnly),
			Message: fmt.Sprintf("uptime window is limited to %d days", MaxUptimeDays),
		}
	}

	stid := q.StationID
	end := to.Add(24 * time.Hour)
	records, _, err := s.repo.GetRecords(ctx, repository.RecordFilter{
		StationID: &stid,
		From:      &from,
		To:        &end,
		ValidOnly: !q.IncludeInvalid,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	report := ComputeDailyUptime(q.StationID, records, from, days)

	s.logger.Debug(ctx, "[UPTIME_CALC] Daily uptime calculated", logging.Fields{
		"station_id":      q.StationID,
		"from":            from.Format(time.DateOnly),
		"to":              to.Format(time.DateOnly),
		"records":         len(records),
		"include_invalid": q.IncludeInvalid,
	})

	return report, nil
}

// ComputeDailyUptime splits each record across the days it overlaps,
// starting at from (a UTC midnight) for the given number of days. Records
// that end before they start contribute nothing.
func ComputeDailyUptime(stationID int, records []models.Record, from time.Time, days int) []DailyUptime {
	out := make([]DailyUptime, days)
	for i := range out {
		out[i] = DailyUptime{
			Date:      from.AddDate(0, 0, i),
			StationID: stationID,
		}
	}
	if days == 0 {
		return out
	}
	windowEnd := out[days-1].Date.Add(24 * time.Hour)

	for _, rec := range records {
		start, end := rec.StartTime, rec.EndTime
		if !end.After(start) || !end.After(from) || !start.Before(windowEnd) {
			continue
		}
		if start.Before(from) {
			start = from
		}
		if end.After(windowEnd) {
			end = windowEnd
		}

		i := int(start.Sub(from) / (24 * time.Hour))
		for ; i < days && out[i].Date.Before(end); i++ {
			dayStart := out[i].Date
			dayEnd := dayStart.Add(24 * time.Hour)

			lo, hi := start, end
			if lo.Before(dayStart) {
				lo = dayStart
			}
			if hi.After(dayEnd) {
				hi = dayEnd
			}
			if !hi.After(lo) {
				continue
			}
			out[i].Seconds += hi.Sub(lo).Seconds()
			out[i].Records++
		}
	}

	for i := range out {
		out[i].Fraction = out[i].Seconds / secondsPerDay
	}
	return out
}
