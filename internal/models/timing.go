package models

import (
	"fmt"
	"time"
)

// ConsistentGapThreshold is the largest gap, exclusive, allowed between
// consecutive epochs of a consistent session.
const ConsistentGapThreshold = 20.0

// Warning is a non-fatal correction applied while reading an epoch.
type Warning struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("epoch %d: %s: %s", w.Index, w.Field, w.Message)
}

// ReconstructTime converts the time fields of one epoch into a UTC instant.
// A microsecond value outside [0, 999999] or of a non-integer type is
// replaced with 1 and reported as a warning.
func ReconstructTime(e Epoch) (time.Time, *Warning, error) {
	return reconstructAt(0, e)
}

func reconstructAt(i int, e Epoch) (time.Time, *Warning, error) {
	var parts [6]int64
	for j, key := range []string{KeyYear, KeyMonth, KeyDay, KeyHour, KeyMinute, KeySecond} {
		v, err := e.Int(key)
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("epoch %d: %w", i, err)
		}
		parts[j] = v
	}
	yr, mo, dy, hr, mt, sc := parts[0], parts[1], parts[2], parts[3], parts[4], parts[5]

	switch {
	case yr < 1 || yr > 9999:
		return time.Time{}, nil, &MalformedTimestampError{Index: i, Message: fmt.Sprintf("year %d out of range", yr)}
	case mo < 1 || mo > 12:
		return time.Time{}, nil, &MalformedTimestampError{Index: i, Message: fmt.Sprintf("month %d out of range", mo)}
	case dy < 1 || dy > int64(daysIn(time.Month(mo), int(yr))):
		return time.Time{}, nil, &MalformedTimestampError{Index: i, Message: fmt.Sprintf("day %d out of range for %04d-%02d", dy, yr, mo)}
	case hr < 0 || hr > 23:
		return time.Time{}, nil, &MalformedTimestampError{Index: i, Message: fmt.Sprintf("hour %d out of range", hr)}
	case mt < 0 || mt > 59:
		return time.Time{}, nil, &MalformedTimestampError{Index: i, Message: fmt.Sprintf("minute %d out of range", mt)}
	case sc < 0 || sc > 59:
		return time.Time{}, nil, &MalformedTimestampError{Index: i, Message: fmt.Sprintf("second %d out of range", sc)}
	}

	raw, ok := e[KeyMicrosecond]
	if !ok {
		return time.Time{}, nil, fmt.Errorf("epoch %d: %w", i, &MissingFieldError{Key: KeyMicrosecond})
	}

	var warn *Warning
	us, isInt := asInt(raw)
	if !isInt || us < 0 || us > 999999 {
		warn = &Warning{
			Index:   i,
			Field:   KeyMicrosecond,
			Message: fmt.Sprintf("invalid microsecond value %v (%T), using 1", raw, raw),
		}
		us = 1
	}

	t := time.Date(int(yr), time.Month(mo), int(dy), int(hr), int(mt), int(sc), int(us)*1000, time.UTC)
	return t, warn, nil
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Timestamps reconstructs every epoch in input order.
func Timestamps(epochs []Epoch) ([]time.Time, []Warning, error) {
	times := make([]time.Time, len(epochs))
	var warnings []Warning
	for i, e := range epochs {
		t, w, err := reconstructAt(i, e)
		if err != nil {
			return nil, nil, err
		}
		if w != nil {
			warnings = append(warnings, *w)
		}
		times[i] = t
	}
	return times, warnings, nil
}

// SessionBounds returns the timestamps of the first and last epoch.
func SessionBounds(epochs []Epoch) (start, end time.Time, err error) {
	if len(epochs) == 0 {
		return time.Time{}, time.Time{}, ErrDegenerateSession
	}
	start, _, err = reconstructAt(0, epochs[0])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, _, err = reconstructAt(len(epochs)-1, epochs[len(epochs)-1])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// GapProfile returns the seconds between each consecutive pair of epochs,
// in the order given. Input order is not re-sorted.
func GapProfile(epochs []Epoch) ([]float64, error) {
	times, _, err := Timestamps(epochs)
	if err != nil {
		return nil, err
	}
	return gaps(times), nil
}

func gaps(times []time.Time) []float64 {
	if len(times) < 2 {
		return nil
	}
	out := make([]float64, len(times)-1)
	for i := 1; i < len(times); i++ {
		out[i-1] = times[i].Sub(times[i-1]).Seconds()
	}
	return out
}

// TimesConsistent reports whether every gap is strictly below
// ConsistentGapThreshold. An empty profile is consistent.
func TimesConsistent(gaps []float64) bool {
	for _, g := range gaps {
		if g >= ConsistentGapThreshold {
			return false
		}
	}
	return true
}
