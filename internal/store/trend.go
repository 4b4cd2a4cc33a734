package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/wastewater-ingest/internal/domain"
)

const sampleColumns = `sample_collection_date, site_name, county, pcr_pathogen_target, pcr_gene_target,
	normalized_pathogen_concentration, date_updated, poll_timestamp`

// Rows sharing a collection date are ordered by county then gene target so
// the pick is deterministic.
const trendQuery = `SELECT ` + sampleColumns + `
	FROM ` + table + `
	WHERE site_name = ? AND pcr_pathogen_target = ?
	ORDER BY sample_collection_date DESC, county, pcr_gene_target
	LIMIT 2`

// Trend returns the latest and previous samples for a location (site name)
// and pathogen target, most recent collection date first. It reports
// TrendNoData when nothing matches and TrendNoPriorData when only one row
// does; neither is an error.
func (s *Store) Trend(ctx context.Context, location, pathogen string) (domain.Trend, error) {
	trend := domain.Trend{Pair: domain.Pair{Location: location, PathogenTarget: pathogen}}

	rows, err := s.reader.QueryContext(ctx, s.dialect.rebind(trendQuery), location, pathogen)
	if err != nil {
		return trend, storageErr("query trend", err)
	}
	defer rows.Close()

	var found []domain.WasteWaterSample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return trend, err
		}
		found = append(found, sample)
	}
	if err := rows.Err(); err != nil {
		return trend, storageErr("query trend", err)
	}

	switch len(found) {
	case 0:
		trend.Status = domain.TrendNoData
	case 1:
		trend.Status = domain.TrendNoPriorData
		trend.Latest = &found[0]
	default:
		trend.Status = domain.TrendOK
		trend.Latest, trend.Previous = &found[0], &found[1]
		diff := found[0].NormalizedConcentration - found[1].NormalizedConcentration
		trend.Difference = &diff
	}
	return trend, nil
}

// Trends evaluates Trend for each pair in order, stopping at the first error.
func (s *Store) Trends(ctx context.Context, pairs []domain.Pair) ([]domain.Trend, error) {
	out := make([]domain.Trend, 0, len(pairs))
	for _, p := range pairs {
		t, err := s.Trend(ctx, p.Location, p.PathogenTarget)
		if err != nil {
			return nil, fmt.Errorf("trend %s/%s: %w", p.Location, p.PathogenTarget, err)
		}
		out = append(out, t)
	}
	return out, nil
}

const pairsQuery = `SELECT DISTINCT site_name, pcr_pathogen_target
	FROM ` + table + `
	ORDER BY site_name, pcr_pathogen_target`

// Pairs lists every stored (site name, pathogen target) combination. When
// pathogens is non-empty only those targets are returned.
func (s *Store) Pairs(ctx context.Context, pathogens ...string) ([]domain.Pair, error) {
	rows, err := s.reader.QueryContext(ctx, pairsQuery)
	if err != nil {
		return nil, storageErr("query pairs", err)
	}
	defer rows.Close()

	var pairs []domain.Pair
	for rows.Next() {
		var p domain.Pair
		if err := rows.Scan(&p.Location, &p.PathogenTarget); err != nil {
			return nil, storageErr("scan pair", err)
		}
		if len(pathogens) > 0 && !slices.Contains(pathogens, p.PathogenTarget) {
			continue
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query pairs", err)
	}
	return pairs, nil
}

// Count returns the number of stored samples.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, storageErr("count samples", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(r rowScanner) (domain.WasteWaterSample, error) {
	var (
		s       domain.WasteWaterSample
		date    string
		updated string
		polled  int64
	)
	if err := r.Scan(&date, &s.SiteName, &s.County, &s.PathogenTarget, &s.GeneTarget,
		&s.NormalizedConcentration, &updated, &polled); err != nil {
		return s, storageErr("scan sample", err)
	}

	var err error
	if s.SampleCollectionDate, err = time.Parse(domain.DateLayout, date); err != nil {
		return s, storageErr("decode sample_collection_date", err)
	}
	dateUpdated, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return s, storageErr("decode date_updated", err)
	}
	s.DateUpdated = dateUpdated.In(domain.Pacific())
	s.PollTimestamp = time.Unix(polled, 0).UTC()
	return s, nil
}
