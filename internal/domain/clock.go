package domain

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// unixEpoch is the earliest wall-clock reading accepted as a poll time.
var unixEpoch = time.Unix(0, 0).UTC()

// defaultClock is used when a constructor is handed a nil clock.
func defaultClock(c clockwork.Clock) clockwork.Clock {
	if c == nil {
		return clockwork.NewRealClock()
	}
	return c
}

// wallNow reads c and rejects readings before the Unix epoch.
func wallNow(c clockwork.Clock) (time.Time, error) {
	now := c.Now().UTC()
	if now.Before(unixEpoch) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrClock, now.Format(time.RFC3339))
	}
	return now, nil
}
