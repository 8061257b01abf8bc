package models

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRow_RoundTrip(t *testing.T) {
	rec := Record{
		StationID:            65,
		StartTime:            time.Date(2021, 6, 30, 23, 58, 1, 123456000, time.UTC),
		EndTime:              time.Date(2021, 7, 1, 0, 0, 0, 999999000, time.UTC),
		CommandName:          "normalscan",
		CommandArgs:          "-xcf 1 -fast",
		ControlProgramID:     151,
		MinPulseCount:        -1,
		TimesConsistent:      false,
		IsValid:              true,
		MinTxFreq:            10200,
		MaxTxFreq:            12300,
		CrossCorrelationFlag: 1,
	}

	row := EncodeRecord(rec)
	assert.Equal(t, "2021-06-30T23:58:01.123456", row.StartISO)
	assert.Equal(t, 0, row.TimesConsistent)
	assert.Equal(t, 1, row.IsValid)

	got, err := row.Decode()
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestEncodeRecord_TruncatesToMicroseconds(t *testing.T) {
	rec := Record{
		StartTime: time.Date(2021, 6, 30, 1, 2, 3, 123456789, time.UTC),
		EndTime:   time.Date(2021, 6, 30, 1, 2, 4, 0, time.UTC),
	}

	got, err := EncodeRecord(rec).Decode()
	require.NoError(t, err)
	assert.Equal(t, rec.StartTime.Truncate(time.Microsecond), got.StartTime)
}

func TestEncodeRecord_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	rec := Record{StartTime: time.Date(2021, 6, 30, 2, 0, 0, 0, loc)}

	assert.Equal(t, "2021-06-30T00:00:00.000000", EncodeRecord(rec).StartISO)
}

func TestFormatTime_SortsChronologically(t *testing.T) {
	times := []time.Time{
		time.Date(2021, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 2, 1, 10, 0, 0, 5000, time.UTC),
		time.Date(2021, 2, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	encoded := make([]string, len(times))
	for i, ts := range times {
		encoded[i] = FormatTime(ts)
	}
	sort.Strings(encoded)

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i, ts := range times {
		assert.Equal(t, FormatTime(ts), encoded[i])
	}
}

func TestParseTime_WithoutFraction(t *testing.T) {
	ts, err := ParseTime("2014-03-01T12:00:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2014, 3, 1, 12, 0, 0, 0, time.UTC), ts)

	_, err = ParseTime("yesterday")
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestRecordRow_DecodeRejectsBadBoolean(t *testing.T) {
	row := EncodeRecord(Record{StartTime: sessionStart, EndTime: sessionStart})
	row.IsValid = 2

	_, err := row.Decode()
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "is_valid", vErr.Field)
}
