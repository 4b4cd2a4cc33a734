// Command validate checks a downloaded DOH wastewater CSV offline. It parses
// every row, reports parse and conversion failures (including Pacific times
// skipped by daylight saving), and optionally inserts the file into a scratch
// SQLite store to print the resulting batch report.
//
// Usage:
//
//	go run ./cmd/validate -csv Downloadable_Wastewater.csv [-db scratch.sqlite] [-max-errors 20]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/wastewater-ingest/internal/domain"
	"github.com/couchcryptid/wastewater-ingest/internal/pipeline"
	"github.com/couchcryptid/wastewater-ingest/internal/store"
	"github.com/jonboulle/clockwork"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	count  int
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	csvPath := flag.String("csv", "", "path to a downloaded wastewater CSV")
	dbPath := flag.String("db", "", "optional scratch SQLite file to insert into")
	maxErrors := flag.Int("max-errors", 20, "detailed errors to print per phase")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open csv: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	if code := run(context.Background(), os.Stdout, f, *dbPath, *maxErrors); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, out io.Writer, csv io.ReadSeeker, dbPath string, maxErrors int) int {
	fmt.Fprintln(out, "=== Wastewater CSV Validation ===")
	fmt.Fprintln(out)

	parsing, tz, conversion, fatal := validateRows(csv)
	if fatal != nil {
		fmt.Fprintf(out, "FATAL: %v\n", fatal)
		return 1
	}
	phases := []*phase{parsing, tz, conversion}

	if dbPath != "" {
		if _, err := csv.Seek(0, io.SeekStart); err != nil {
			fmt.Fprintf(out, "FATAL: rewind csv: %v\n", err)
			return 1
		}
		insert, err := insertScratch(ctx, out, csv, dbPath)
		if err != nil {
			fmt.Fprintf(out, "FATAL: %v\n", err)
			return 1
		}
		phases = append(phases, insert)
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-32s %6d rows  %s\n", p.name, p.count, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == maxErrors {
				fmt.Fprintf(out, "  ... %d more\n", len(p.errors)-maxErrors)
				break
			}
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// validateRows parses every row and sorts failures into phases. A
// structural failure (missing header, unreadable input) is returned as fatal.
func validateRows(r io.Reader) (parsing, tz, conversion *phase, fatal error) {
	parsing = &phase{name: "Row parsing"}
	tz = &phase{name: "Pacific time resolution"}
	conversion = &phase{name: "Sample conversion"}

	for row, err := range domain.ParseRows(r) {
		if err != nil {
			if !errors.Is(err, domain.ErrParse) {
				return nil, nil, nil, err
			}
			parsing.count++
			if errors.Is(err, domain.ErrInvalidLocalTime) {
				tz.errorf("%v", err)
				continue
			}
			parsing.errorf("%v", err)
			continue
		}
		parsing.count++
		tz.count++
		conversion.count++
		if err := row.Validate(); err != nil {
			conversion.errorf("%v", err)
		}
	}
	return parsing, tz, conversion, nil
}

// insertScratch runs a full batch into a scratch store and reports the tallies.
func insertScratch(ctx context.Context, out io.Writer, r io.Reader, dbPath string) (*phase, error) {
	st, err := store.Open(ctx, store.Options{
		SQLitePath: dbPath,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return nil, err
	}
	defer st.Close()

	conv := pipeline.NewConverter(domain.NewNormalizer(clockwork.NewRealClock()), false)
	report, err := st.InsertBatch(ctx, conv.Samples(r))
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	p := &phase{name: "Store insert", count: report.Total}
	if report.Inserted+report.SkippedDuplicate+report.FailedConversion != report.Total {
		p.errorf("report does not balance: %+v", report)
	}
	if report.FailedConversion > 0 {
		p.errorf("%d rows failed conversion", report.FailedConversion)
	}
	fmt.Fprintf(out, "Store: inserted=%d skipped_duplicate=%d failed_conversion=%d total=%d\n",
		report.Inserted, report.SkippedDuplicate, report.FailedConversion, report.Total)
	return p, nil
}
