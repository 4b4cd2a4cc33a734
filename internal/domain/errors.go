package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrParse marks a per-row decoding failure. Recoverable.
	ErrParse = errors.New("parse row")

	// ErrInvalidLocalTime marks a Pacific civil time skipped by a
	// spring-forward transition.
	ErrInvalidLocalTime = errors.New("invalid local time")

	// ErrConversionFailed marks a row that parsed but cannot become a sample.
	// Always tallied and skipped.
	ErrConversionFailed = errors.New("conversion failed")

	// ErrClock means the host clock reads earlier than the Unix epoch. Fatal.
	ErrClock = errors.New("system clock before unix epoch")
)

// ParseError describes why one CSV row could not be decoded.
type ParseError struct {
	Line   int
	Column string // empty for structural errors
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: column %q value %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports every ParseError as ErrParse.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// InvalidLocalTimeError carries the text of a non-existent Pacific time.
type InvalidLocalTimeError struct {
	Text string
}

func (e *InvalidLocalTimeError) Error() string {
	return fmt.Sprintf("datetime %s is invalid for Pacific timezone", e.Text)
}

func (e *InvalidLocalTimeError) Is(target error) bool { return target == ErrInvalidLocalTime }

// ConversionError describes a row that could not become a WasteWaterSample.
type ConversionError struct {
	Line   int
	Reason string
	Err    error // underlying cause, may be nil
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func (e *ConversionError) Unwrap() error { return e.Err }

func (e *ConversionError) Is(target error) bool { return target == ErrConversionFailed }

// IsDataQuality reports whether err is a per-row data problem that a batch
// tallies instead of aborting on.
func IsDataQuality(err error) bool {
	return errors.Is(err, ErrParse) || errors.Is(err, ErrConversionFailed)
}
