package models

import (
	"fmt"
	"time"
)

// TimeLayout is the storage form of record timestamps. It is fixed width
// and UTC so that lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000"

// RecordRow is the storage representation of a Record, keyed by
// (station_id, start_iso).
type RecordRow struct {
	StationID            int    `db:"station_id"`
	StartISO             string `db:"start_iso"`
	EndISO               string `db:"end_iso"`
	CommandName          string `db:"cmd_name"`
	CommandArgs          string `db:"cmd_args"`
	ControlProgramID     int    `db:"cpid"`
	MinPulseCount        int    `db:"min_nave"`
	TimesConsistent      int    `db:"times_consistent"`
	IsValid              int    `db:"is_valid"`
	MinTxFreq            int    `db:"min_tfreq"`
	MaxTxFreq            int    `db:"max_tfreq"`
	CrossCorrelationFlag int    `db:"xcf"`
}

// FormatTime renders t in TimeLayout. Sub-microsecond precision is
// truncated.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(TimeLayout)
}

// ParseTime is the inverse of FormatTime. Timestamps without a fractional
// part are accepted as well.
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err == nil {
		return t, nil
	}
	t, err2 := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err2 != nil {
		return time.Time{}, &ValidationError{
			Field:   "timestamp",
			Value:   s,
			Message: fmt.Sprintf("invalid timestamp %q: %v", s, err),
		}
	}
	return t, nil
}

// EncodeRecord converts r into its storage row.
func EncodeRecord(r Record) RecordRow {
	return RecordRow{
		StationID:            r.StationID,
		StartISO:             FormatTime(r.StartTime),
		EndISO:               FormatTime(r.EndTime),
		CommandName:          r.CommandName,
		CommandArgs:          r.CommandArgs,
		ControlProgramID:     r.ControlProgramID,
		MinPulseCount:        r.MinPulseCount,
		TimesConsistent:      boolToInt(r.TimesConsistent),
		IsValid:              boolToInt(r.IsValid),
		MinTxFreq:            r.MinTxFreq,
		MaxTxFreq:            r.MaxTxFreq,
		CrossCorrelationFlag: r.CrossCorrelationFlag,
	}
}

// Decode reconstructs the Record stored in the row.
func (row RecordRow) Decode() (Record, error) {
	start, err := ParseTime(row.StartISO)
	if err != nil {
		return Record{}, err
	}
	end, err := ParseTime(row.EndISO)
	if err != nil {
		return Record{}, err
	}
	consistent, err := intToBool("times_consistent", row.TimesConsistent)
	if err != nil {
		return Record{}, err
	}
	valid, err := intToBool("is_valid", row.IsValid)
	if err != nil {
		return Record{}, err
	}

	return Record{
		StationID:            row.StationID,
		StartTime:            start,
		EndTime:              end,
		CommandName:          row.CommandName,
		CommandArgs:          row.CommandArgs,
		ControlProgramID:     row.ControlProgramID,
		MinPulseCount:        row.MinPulseCount,
		TimesConsistent:      consistent,
		IsValid:              valid,
		MinTxFreq:            row.MinTxFreq,
		MaxTxFreq:            row.MaxTxFreq,
		CrossCorrelationFlag: row.CrossCorrelationFlag,
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(field string, v int) (bool, error) {
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, &ValidationError{
		Field:   field,
		Value:   fmt.Sprint(v),
		Message: fmt.Sprintf("%s must be 0 or 1, got %d", field, v),
	}
}
