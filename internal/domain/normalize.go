package domain

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Normalizer turns parsed rows into samples stamped with a poll time.
// Poll times are truncated to the second and never go backwards for the life
// of one Normalizer, even if the wall clock is stepped back.
type Normalizer struct {
	clock clockwork.Clock

	mu   sync.Mutex
	last time.Time
}

// NewNormalizer creates a Normalizer reading c. Pass nil for the real clock.
func NewNormalizer(c clockwork.Clock) *Normalizer {
	return &Normalizer{clock: defaultClock(c)}
}

// Normalize converts row to a WasteWaterSample. The only failure is ErrClock.
func (n *Normalizer) Normalize(row ParsedRow) (WasteWaterSample, error) {
	polled, err := n.pollTimestamp()
	if err != nil {
		return WasteWaterSample{}, err
	}

	return WasteWaterSample{
		SampleCollectionDate:    row.SampleCollectionDate,
		SiteName:                row.SiteName,
		County:                  row.County,
		PathogenTarget:          row.PathogenTarget,
		GeneTarget:              row.GeneTarget,
		NormalizedConcentration: row.NormalizedConcentration,
		DateUpdated:             row.DateUpdated.In(pacific),
		PollTimestamp:           polled,
	}, nil
}

func (n *Normalizer) pollTimestamp() (time.Time, error) {
	now, err := wallNow(n.clock)
	if err != nil {
		return time.Time{}, err
	}
	now = now.Truncate(time.Second)

	n.mu.Lock()
	defer n.mu.Unlock()
	if now.Before(n.last) {
		return n.last, nil
	}
	n.last = now
	return now, nil
}

// Validate rejects rows that decoded but cannot form a usable sample: a
// missing collection date or a non-finite concentration. Text fields are kept
// exactly as published, empty or not.
func (r ParsedRow) Validate() error {
	if r.SampleCollectionDate.IsZero() {
		return &ConversionError{Line: r.Line, Reason: "missing " + ColSampleCollectionDate}
	}
	if math.IsNaN(r.NormalizedConcentration) || math.IsInf(r.NormalizedConcentration, 0) {
		return &ConversionError{Line: r.Line, Reason: "non-finite concentration"}
	}
	return nil
}
