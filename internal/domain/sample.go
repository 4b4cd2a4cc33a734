package domain

import (
	"time"
)

// DateLayout is the civil date format of "Sample Collection Date".
const DateLayout = "2006-01-02"

// ParsedRow is one decoded CSV data row. It lives for a single parse step.
type ParsedRow struct {
	Line                    int
	SampleCollectionDate    time.Time // civil date at UTC midnight
	SiteName                string
	County                  string
	PathogenTarget          string
	GeneTarget              string
	NormalizedConcentration float64 // gene copies/person/day

	DateUpdatedRaw string    // naive Pacific civil time as published
	DateUpdated    time.Time // DateUpdatedRaw resolved in America/Los_Angeles
}

// NaturalKey identifies one real-world measurement.
type NaturalKey struct {
	SampleCollectionDate time.Time
	SiteName             string
	County               string
	PathogenTarget       string
	GeneTarget           string
}

// String renders the key in column order; used for logging and cache keys.
func (k NaturalKey) String() string {
	return k.SampleCollectionDate.Format(DateLayout) + "|" + k.SiteName + "|" + k.County + "|" + k.PathogenTarget + "|" + k.GeneTarget
}

// WasteWaterSample is the persisted form of a measurement.
type WasteWaterSample struct {
	SampleCollectionDate    time.Time `json:"sample_collection_date"`
	SiteName                string    `json:"site_name"`
	County                  string    `json:"county"`
	PathogenTarget          string    `json:"pcr_pathogen_target"`
	GeneTarget              string    `json:"pcr_gene_target"`
	NormalizedConcentration float64   `json:"normalized_pathogen_concentration"`
	DateUpdated             time.Time `json:"date_updated"`

	// PollTimestamp is when this pipeline first ingested the row. It is
	// written once and never updated.
	PollTimestamp time.Time `json:"poll_timestamp"`
}

// Key returns the sample's natural key.
func (s WasteWaterSample) Key() NaturalKey {
	return NaturalKey{
		SampleCollectionDate: s.SampleCollectionDate,
		SiteName:             s.SiteName,
		County:               s.County,
		PathogenTarget:       s.PathogenTarget,
		GeneTarget:           s.GeneTarget,
	}
}

// SampleResult is one element of a batch: either a sample or the error that
// prevented producing one.
type SampleResult struct {
	Sample WasteWaterSample
	Err    error
}

// Pair is a (location, pathogen target) combination tracked for trends.
type Pair struct {
	Location       string `json:"location"`
	PathogenTarget string `json:"pathogen_target"`
}

// TrendStatus distinguishes an empty filter from a filter with a single row.
type TrendStatus int

const (
	TrendNoData      TrendStatus = iota // no rows matched
	TrendNoPriorData                    // exactly one row matched
	TrendOK                             // latest and previous both present
)

func (s TrendStatus) String() string {
	switch s {
	case TrendNoData:
		return "no_data"
	case TrendNoPriorData:
		return "no_prior_data"
	case TrendOK:
		return "ok"
	default:
		return "unknown"
	}
}

// Trend is the latest-vs-previous comparison for one pair.
type Trend struct {
	Pair
	Status   TrendStatus
	Latest   *WasteWaterSample
	Previous *WasteWaterSample

	// Difference is Latest minus Previous; nil unless Status is TrendOK.
	Difference *float64
}

// TrendReport is the outbound shape handed to notifiers.
type TrendReport struct {
	Location       string   `json:"location"`
	PathogenTarget string   `json:"pathogen_target"`
	NoData         bool     `json:"no_data,omitempty"`
	LatestValue    *float64 `json:"latest_value,omitempty"`
	LatestDate     string   `json:"latest_date,omitempty"`
	Difference     *float64 `json:"difference,omitempty"`
	PreviousDate   string   `json:"previous_date,omitempty"`
}

// Report flattens a Trend for delivery.
func (t Trend) Report() TrendReport {
	r := TrendReport{Location: t.Location, PathogenTarget: t.PathogenTarget}
	if t.Latest == nil {
		r.NoData = true
		return r
	}
	v := t.Latest.NormalizedConcentration
	r.LatestValue = &v
	r.LatestDate = t.Latest.SampleCollectionDate.Format(DateLayout)
	if t.Previous != nil {
		r.PreviousDate = t.Previous.SampleCollectionDate.Format(DateLayout)
		r.Difference = t.Difference
	}
	return r
}

// TrendNotification is one delivery of trend reports after a run that
// stored new samples.
type TrendNotification struct {
	RunID       string        `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Inserted    int           `json:"inserted"`
	Trends      []TrendReport `json:"trends"`
}
