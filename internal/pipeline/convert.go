package pipeline

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/couchcryptid/wastewater-ingest/internal/domain"
)

// ErrParseHalt wraps a row parse error when the converter is configured to
// halt on the first one. It is not a data-quality error, so a batch fed the
// element aborts and rolls back.
var ErrParseHalt = errors.New("parse error halts run")

// Converter turns a CSV stream into batch elements: parse, validate, then
// normalize each row.
type Converter struct {
	normalizer       *domain.Normalizer
	haltOnParseError bool
}

// NewConverter creates a Converter stamping samples through n.
func NewConverter(n *domain.Normalizer, haltOnParseError bool) *Converter {
	return &Converter{normalizer: n, haltOnParseError: haltOnParseError}
}

// Samples lazily converts r. Every data row yields exactly one element, so a
// batch's Total equals the number of data rows read. Structural failures
// (missing header, I/O) yield one final non-data-quality error.
func (c *Converter) Samples(r io.Reader) iter.Seq[domain.SampleResult] {
	return func(yield func(domain.SampleResult) bool) {
		for row, err := range domain.ParseRows(r) {
			if !yield(c.convert(row, err)) {
				return
			}
		}
	}
}

func (c *Converter) convert(row domain.ParsedRow, err error) domain.SampleResult {
	if err != nil {
		if c.haltOnParseError && errors.Is(err, domain.ErrParse) {
			return domain.SampleResult{Err: fmt.Errorf("%w: %v", ErrParseHalt, err)}
		}
		return domain.SampleResult{Err: err}
	}
	if err := row.Validate(); err != nil {
		return domain.SampleResult{Err: err}
	}
	sample, err := c.normalizer.Normalize(row)
	if err != nil {
		return domain.SampleResult{Err: fmt.Errorf("line %d: %w", row.Line, err)}
	}
	return domain.SampleResult{Sample: sample}
}
