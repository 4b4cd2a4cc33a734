// Command genmock writes a synthetic wastewater CSV in the DOH download
// format. The output is deterministic for a given seed, repeats history the
// way the real file is republished, and can include rows whose update time
// falls on a daylight saving transition.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/wastewater.csv -days 28 -dst
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/wastewater-ingest/internal/domain"
)

type site struct {
	name   string
	county string
	base   float64 // typical concentration, sites are not comparable
}

var sites = []site{
	{name: "Renton", county: "King", base: 180_000},
	{name: "West Point", county: "King", base: 240_000},
	{name: "Tacoma Central", county: "Pierce", base: 95_000},
	{name: "Spokane", county: "Spokane", base: 60_000},
}

var targets = []struct{ pathogen, gene string }{
	{"SARS-CoV-2", "N1"},
	{"SARS-CoV-2", "N2"},
	{"Influenza A", "M"},
	{"RSV", "N"},
}

type options struct {
	start time.Time
	days  int
	seed  uint64
	dst   bool
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the CSV fixture")
	start := flag.String("start", "2024-10-20", "first sample collection date")
	days := flag.Int("days", 28, "number of collection days")
	seed := flag.Uint64("seed", 1, "random seed")
	dst := flag.Bool("dst", false, "add rows updated at ambiguous and skipped Pacific times")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	startDate, err := time.Parse(domain.DateLayout, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := generate(f, options{start: startDate, days: *days, seed: *seed, dst: *dst})
	if err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d rows to %s", n, *out)
	return nil
}

// generate writes the header and one row per site, target, and day. Update
// times advance weekly so earlier rows look republished.
func generate(w io.Writer, opts options) (int, error) {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	cw := csv.NewWriter(w)

	header := []string{
		domain.ColSampleCollectionDate,
		domain.ColSiteName,
		domain.ColCounty,
		domain.ColPathogenTarget,
		domain.ColGeneTarget,
		domain.ColNormalizedConcentration,
		domain.ColDateUpdated,
	}
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	rows := 0
	for d := range opts.days {
		collected := opts.start.AddDate(0, 0, d)
		updated := collected.AddDate(0, 0, 7-int(collected.Weekday())).Add(9*time.Hour + 30*time.Minute)
		for _, s := range sites {
			for _, tgt := range targets {
				value := s.base * (0.5 + rng.Float64()) * float64(1+len(tgt.pathogen)%3)
				if err := cw.Write([]string{
					collected.Format(domain.DateLayout),
					s.name,
					s.county,
					tgt.pathogen,
					tgt.gene,
					strconv.FormatFloat(value, 'f', 2, 64),
					updated.Format(domain.UpdatedLayout) + ".000000",
				}); err != nil {
					return rows, err
				}
				rows++
			}
		}
	}

	if opts.dst {
		for _, edge := range []string{
			"2024-11-03 01:30:00.000000", // ambiguous, resolves to PST
			"2024-03-10 02:30:00.000000", // skipped, rejected by the parser
		} {
			if err := cw.Write([]string{
				edge[:len(domain.DateLayout)], "DST Check", "King", "SARS-CoV-2", "N1", "1000.00", edge,
			}); err != nil {
				return rows, err
			}
			rows++
		}
	}

	cw.Flush()
	return rows, cw.Error()
}
