package domain

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"
)

// Column headers of the DOH wastewater CSV.
const (
	ColSampleCollectionDate    = "Sample Collection Date"
	ColSiteName                = "Site Name"
	ColCounty                  = "County"
	ColPathogenTarget          = "PCR Pathogen Target"
	ColGeneTarget              = "PCR Gene Target"
	ColNormalizedConcentration = "Normalized Pathogen Concentration (gene copies/person/day)"
	ColDateUpdated             = "Date/Time Updated"
)

var requiredColumns = []string{
	ColSampleCollectionDate,
	ColSiteName,
	ColCounty,
	ColPathogenTarget,
	ColGeneTarget,
	ColNormalizedConcentration,
	ColDateUpdated,
}

// columnIndex maps a required column name to its position in the header.
type columnIndex map[string]int

// ParseRows decodes a CSV stream with a header row into ParsedRows, lazily and
// in input order. Row-level problems are yielded as *ParseError and the stream
// continues. A missing header or an I/O failure is yielded as a plain error
// and ends the stream.
func ParseRows(r io.Reader) iter.Seq2[ParsedRow, error] {
	return func(yield func(ParsedRow, error) bool) {
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1 // width is checked per row

		header, err := cr.Read()
		if err != nil {
			yield(ParsedRow{}, fmt.Errorf("read csv header: %w", err))
			return
		}
		idx, err := indexColumns(header)
		if err != nil {
			yield(ParsedRow{}, err)
			return
		}

		for {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				var csvErr *csv.ParseError
				if !errors.As(err, &csvErr) {
					yield(ParsedRow{}, fmt.Errorf("read csv: %w", err))
					return
				}
				if !yield(ParsedRow{}, &ParseError{Line: csvErr.StartLine, Err: csvErr.Err}) {
					return
				}
				continue
			}

			line, _ := cr.FieldPos(0)
			row, err := parseRecord(rec, len(header), idx, line)
			if !yield(row, err) {
				return
			}
		}
	}
}

// indexColumns locates every required column by name.
func indexColumns(header []string) (columnIndex, error) {
	idx := make(columnIndex, len(requiredColumns))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		idx[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := idx[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csv header missing columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseRecord(rec []string, width int, idx columnIndex, line int) (ParsedRow, error) {
	if len(rec) != width {
		return ParsedRow{}, &ParseError{
			Line: line,
			Err:  fmt.Errorf("expected %d fields, got %d", width, len(rec)),
		}
	}

	field := func(col string) string { return rec[idx[col]] }

	collected, err := time.Parse(DateLayout, strings.TrimSpace(field(ColSampleCollectionDate)))
	if err != nil {
		return ParsedRow{}, &ParseError{Line: line, Column: ColSampleCollectionDate, Value: field(ColSampleCollectionDate), Err: err}
	}

	concentration, err := strconv.ParseFloat(strings.TrimSpace(field(ColNormalizedConcentration)), 64)
	if err != nil {
		return ParsedRow{}, &ParseError{Line: line, Column: ColNormalizedConcentration, Value: field(ColNormalizedConcentration), Err: err}
	}

	updatedRaw := strings.TrimSpace(field(ColDateUpdated))
	updated, err := ResolvePacific(updatedRaw)
	if err != nil {
		return ParsedRow{}, &ParseError{Line: line, Column: ColDateUpdated, Value: updatedRaw, Err: err}
	}

	return ParsedRow{
		Line:                    line,
		SampleCollectionDate:    collected,
		SiteName:                field(ColSiteName),
		County:                  field(ColCounty),
		PathogenTarget:          field(ColPathogenTarget),
		GeneTarget:              field(ColGeneTarget),
		NormalizedConcentration: concentration,
		DateUpdatedRaw:          updatedRaw,
		DateUpdated:             updated,
	}, nil
}
