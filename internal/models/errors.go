package models

import (
	"errors"
	"fmt"
)

// ErrDegenerateSession is returned when a file holds fewer than two epochs.
var ErrDegenerateSession = errors.New("degenerate session: at least 2 epochs are required")

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// MissingFieldError reports an epoch field that is absent or has a type
// the builder cannot read.
type MissingFieldError struct {
	Key string
	Got string
}

func (e *MissingFieldError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("epoch is missing field %q", e.Key)
	}
	return fmt.Sprintf("epoch field %q has unexpected type %s", e.Key, e.Got)
}

// IsTransient returns false; the file content will not change on retry.
func (e *MissingFieldError) IsTransient() bool {
	return false
}

// MalformedTimestampError reports time components that cannot form a
// valid UTC instant.
type MalformedTimestampError struct {
	Index   int
	Message string
}

func (e *MalformedTimestampError) Error() string {
	return fmt.Sprintf("malformed timestamp at epoch %d: %s", e.Index, e.Message)
}

// IsTransient returns false as malformed timestamps are permanent
func (e *MalformedTimestampError) IsTransient() bool {
	return false
}
