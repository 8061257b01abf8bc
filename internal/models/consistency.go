package models

import (
	"fmt"
	"sort"
)

// Field names a record attribute that can carry an objection.
type Field string

const (
	FieldControlProgramID     Field = "control_program_id"
	FieldOriginCommand        Field = "origin_command"
	FieldStationID            Field = "station_id"
	FieldCrossCorrelationFlag Field = "cross_correlation_flag"
	FieldRangeSeparation      Field = "range_separation"
	FieldTransmitPulseLength  Field = "transmit_pulse_length"
	FieldBeamNumber           Field = "beam_number"
)

// ObjectionSet maps a field to the first inconsistency found for it.
// An empty set means the file is fully consistent.
type ObjectionSet map[Field]string

// Has reports whether f failed its check.
func (o ObjectionSet) Has(f Field) bool {
	_, ok := o[f]
	return ok
}

// Fields returns the objected fields in sorted order.
func (o ObjectionSet) Fields() []Field {
	fields := make([]Field, 0, len(o))
	for f := range o {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

func (o ObjectionSet) add(f Field, msg string) {
	if _, ok := o[f]; !ok {
		o[f] = msg
	}
}

const (
	legacyBeamCount  = 16
	defaultBeamCount = 24
)

// legacyStations are the station ids that operate 16 beams.
var legacyStations = map[int64]struct{}{
	1: {}, 2: {}, 3: {}, 4: {}, 5: {}, 6: {}, 7: {}, 8: {}, 9: {}, 10: {},
	11: {}, 12: {}, 13: {}, 14: {}, 15: {}, 16: {}, 18: {}, 19: {}, 20: {},
	21: {}, 22: {}, 40: {}, 41: {}, 64: {}, 65: {}, 66: {}, 90: {}, 96: {},
}

// IsLegacyStation reports whether stid belongs to a 16-beam station.
func IsLegacyStation(stid int64) bool {
	_, ok := legacyStations[stid]
	return ok
}

// BeamLimit returns the exclusive upper bound on beam numbers for stid.
func BeamLimit(stid int64) int64 {
	if IsLegacyStation(stid) {
		return legacyBeamCount
	}
	return defaultBeamCount
}

// constantFields must hold the same value in every epoch of a file.
var constantFields = []struct {
	field Field
	key   string
}{
	{FieldControlProgramID, KeyControlProg},
	{FieldOriginCommand, KeyOriginCommand},
	{FieldStationID, KeyStationID},
	{FieldCrossCorrelationFlag, KeyXCF},
}

// CheckFields validates an epoch sequence and returns the objections found.
// Inconsistent data never produces an error; the error return is reserved
// for epochs missing a required field.
func CheckFields(epochs []Epoch) (ObjectionSet, error) {
	objections := make(ObjectionSet)
	if len(epochs) == 0 {
		return objections, nil
	}

	first := make([]any, len(constantFields))
	for j, cf := range constantFields {
		v, err := epochs[0].value(cf.key)
		if err != nil {
			return nil, err
		}
		first[j] = v
	}

	n := len(epochs)
	for i, e := range epochs {
		for j, cf := range constantFields {
			v, err := e.value(cf.key)
			if err != nil {
				return nil, fmt.Errorf("epoch %d: %w", i, err)
			}
			if v != first[j] {
				objections.add(cf.field, fmt.Sprintf(
					"%s was %v in the first epoch but %v at index %d of %d", cf.key, first[j], v, i, n))
			}
		}

		txpl, err := e.Int(KeyPulseLength)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", i, err)
		}
		rsep, err := e.Int(KeyRangeSep)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", i, err)
		}
		if floorDiv(txpl*3, 20) != rsep {
			msg := fmt.Sprintf("rsep and txpl are inconsistent with each other at index %d: rsep %d, txpl %d", i, rsep, txpl)
			objections.add(FieldRangeSeparation, msg)
			objections.add(FieldTransmitPulseLength, msg)
		}

		stid, err := e.Int(KeyStationID)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", i, err)
		}
		bmnum, err := e.Int(KeyBeamNumber)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", i, err)
		}
		if limit := BeamLimit(stid); bmnum < 0 || bmnum >= limit {
			objections.add(FieldBeamNumber, fmt.Sprintf(
				"unexpected bmnum %d at index %d, station %d allows [0, %d)", bmnum, i, stid, limit))
		}
	}

	return objections, nil
}

// floorDiv rounds toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
