package models

import (
	"fmt"
	"math"
)

// Epoch is one integration period as produced by the DMAP decoder.
// Keys are the raw DMAP scalar names.
type Epoch map[string]any

// DMAP scalar names read by the record builder
const (
	KeyStationID     = "stid"
	KeyControlProg   = "cp"
	KeyOriginCommand = "origin.command"
	KeyPulseLength   = "txpl"
	KeyRangeSep      = "rsep"
	KeyBeamNumber    = "bmnum"
	KeyXCF           = "xcf"
	KeyTxFreq        = "tfreq"
	KeyNave          = "nave"
	KeyYear          = "time.yr"
	KeyMonth         = "time.mo"
	KeyDay           = "time.dy"
	KeyHour          = "time.hr"
	KeyMinute        = "time.mt"
	KeySecond        = "time.sc"
	KeyMicrosecond   = "time.us"
)

// Int returns the named field as an int64. Every signed and unsigned
// integer width the decoder can produce is accepted.
func (e Epoch) Int(key string) (int64, error) {
	v, ok := e[key]
	if !ok {
		return 0, &MissingFieldError{Key: key}
	}
	n, ok := asInt(v)
	if !ok {
		return 0, &MissingFieldError{Key: key, Got: fmt.Sprintf("%T", v)}
	}
	return n, nil
}

// Text returns the named field as a string.
func (e Epoch) Text(key string) (string, error) {
	v, ok := e[key]
	if !ok {
		return "", &MissingFieldError{Key: key}
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", &MissingFieldError{Key: key, Got: fmt.Sprintf("%T", v)}
	}
}

// value returns a comparable form of the field: int64 for integers,
// float64 for floats, string for text.
func (e Epoch) value(key string) (any, error) {
	v, ok := e[key]
	if !ok {
		return nil, &MissingFieldError{Key: key}
	}
	if n, ok := asInt(v); ok {
		return n, nil
	}
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return nil, &MissingFieldError{Key: key, Got: fmt.Sprintf("%T", v)}
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
