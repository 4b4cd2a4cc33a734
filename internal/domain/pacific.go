package domain

import (
	"fmt"
	"sort"
	"time"
	_ "time/tzdata" // embedded zone data; resolution must not depend on the host
)

// UpdatedLayout is the naive layout of "Date/Time Updated". The feed
// publishes microseconds, but the fraction is optional: time.Parse accepts
// any fractional seconds after the seconds field, or none.
const UpdatedLayout = "2006-01-02 15:04:05"

var pacific = mustLoadLocation("America/Los_Angeles")

// Pacific returns the America/Los_Angeles location.
func Pacific() *time.Location { return pacific }

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %s: %v", name, err))
	}
	return loc
}

// ResolvePacific parses a naive "YYYY-MM-DD HH:MM:SS.ffffff" timestamp and
// interprets it as Pacific civil time. An ambiguous time resolves to the
// later instant; a skipped time returns *InvalidLocalTimeError.
func ResolvePacific(text string) (time.Time, error) {
	naive, err := time.Parse(UpdatedLayout, text)
	if err != nil {
		return time.Time{}, err
	}

	instants := localInstants(naive, pacific)
	switch len(instants) {
	case 0:
		return time.Time{}, &InvalidLocalTimeError{Text: text}
	case 1:
		return instants[0], nil
	default:
		return instants[len(instants)-1], nil
	}
}

// localInstants returns, in ascending order, every instant whose wall clock in
// loc equals the wall clock of naive. naive's own zone is ignored.
func localInstants(naive time.Time, loc *time.Location) []time.Time {
	wall := time.Date(naive.Year(), naive.Month(), naive.Day(),
		naive.Hour(), naive.Minute(), naive.Second(), naive.Nanosecond(), time.UTC)

	// Offsets in force a day either side cover any transition touching wall.
	seen := make(map[int]struct{}, 2)
	var out []time.Time
	for _, probe := range []time.Time{wall.Add(-24 * time.Hour), wall, wall.Add(24 * time.Hour)} {
		_, offset := probe.In(loc).Zone()
		if _, ok := seen[offset]; ok {
			continue
		}
		seen[offset] = struct{}{}

		candidate := wall.Add(-time.Duration(offset) * time.Second).In(loc)
		if sameWallClock(candidate, wall) {
			out = append(out, candidate)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func sameWallClock(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ah, amin, as := a.Clock()
	bh, bmin, bs := b.Clock()
	return ay == by && am == bm && ad == bd &&
		ah == bh && amin == bmin && as == bs &&
		a.Nanosecond() == b.Nanosecond()
}
