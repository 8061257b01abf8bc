package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Sentinels used for fields that were inconsistent across a file's epochs
const (
	UnknownID      = -1
	UnknownCommand = ""
)

// Record summarizes one rawacf file.
type Record struct {
	StationID            int       `json:"station_id"`
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
	CommandName          string    `json:"command_name"`
	CommandArgs          string    `json:"command_args"`
	ControlProgramID     int       `json:"control_program_id"`
	MinPulseCount        int       `json:"min_pulse_count"`
	TimesConsistent      bool      `json:"times_consistent"`
	IsValid              bool      `json:"is_valid"`
	MinTxFreq            int       `json:"min_tx_freq"`
	MaxTxFreq            int       `json:"max_tx_freq"`
	CrossCorrelationFlag int       `json:"cross_correlation_flag"`
}

// Duration is the time covered by the session.
func (r Record) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

func (r Record) String() string {
	return fmt.Sprintf("stid=%d cpid=%d cmd=%q args=%q start=%s end=%s valid=%t times_consistent=%t",
		r.StationID, r.ControlProgramID, r.CommandName, r.CommandArgs,
		r.StartTime.Format(time.RFC3339Nano), r.EndTime.Format(time.RFC3339Nano),
		r.IsValid, r.TimesConsistent)
}

// Session is the result of building one file: the record together with
// the objections and corrections that shaped it.
type Session struct {
	Record     Record       `json:"record"`
	Objections ObjectionSet `json:"objections"`
	Warnings   []Warning    `json:"warnings,omitempty"`
}

// BuildRecord reduces a file's epochs to a single Record.
//
// Field inconsistencies degrade the affected attributes to their sentinels
// and clear IsValid. Fewer than two epochs returns ErrDegenerateSession and
// an unusable timestamp returns a *MalformedTimestampError. BuildRecord has
// no shared state and may be called concurrently.
func BuildRecord(epochs []Epoch) (*Session, error) {
	if len(epochs) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrDegenerateSession, len(epochs))
	}

	objections, err := CheckFields(epochs)
	if err != nil {
		return nil, err
	}

	first := epochs[0]
	rec := Record{
		StationID:            UnknownID,
		ControlProgramID:     UnknownID,
		CrossCorrelationFlag: UnknownID,
		CommandName:          UnknownCommand,
		CommandArgs:          UnknownCommand,
	}

	if !objections.Has(FieldStationID) {
		v, err := first.Int(KeyStationID)
		if err != nil {
			return nil, err
		}
		rec.StationID = int(v)
	}
	if !objections.Has(FieldControlProgramID) {
		v, err := first.Int(KeyControlProg)
		if err != nil {
			return nil, err
		}
		rec.ControlProgramID = int(v)
	}
	if !objections.Has(FieldCrossCorrelationFlag) {
		v, err := first.Int(KeyXCF)
		if err != nil {
			return nil, err
		}
		rec.CrossCorrelationFlag = int(v)
	}
	if !objections.Has(FieldOriginCommand) {
		cmd, err := first.Text(KeyOriginCommand)
		if err != nil {
			return nil, err
		}
		rec.CommandName, rec.CommandArgs = SplitCommand(cmd)
	}

	for i, e := range epochs {
		tfreq, err := e.Int(KeyTxFreq)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", i, err)
		}
		nave, err := e.Int(KeyNave)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", i, err)
		}
		if i == 0 || int(tfreq) < rec.MinTxFreq {
			rec.MinTxFreq = int(tfreq)
		}
		if i == 0 || int(tfreq) > rec.MaxTxFreq {
			rec.MaxTxFreq = int(tfreq)
		}
		if i == 0 || int(nave) < rec.MinPulseCount {
			rec.MinPulseCount = int(nave)
		}
	}

	times, warnings, err := Timestamps(epochs)
	if err != nil {
		return nil, err
	}
	rec.StartTime = times[0]
	rec.EndTime = times[len(times)-1]
	rec.TimesConsistent = TimesConsistent(gaps(times))
	rec.IsValid = len(objections) == 0

	return &Session{
		Record:     rec,
		Objections: objections,
		Warnings:   warnings,
	}, nil
}

// SplitCommand splits an origin command on its first whitespace into the
// program name and the remaining argument string.
func SplitCommand(cmd string) (name, args string) {
	i := strings.IndexFunc(cmd, unicode.IsSpace)
	if i < 0 {
		return cmd, ""
	}
	_, size := utf8.DecodeRuneInString(cmd[i:])
	return cmd[:i], cmd[i+size:]
}
