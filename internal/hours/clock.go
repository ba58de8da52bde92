// Package hours implements the business-hours gate: a pure decision on
// whether "now", resolved in a configured IANA timezone, falls inside an
// allowed day/time window.
package hours

import (
	"time"
)

// Clock abstracts wall-clock time so gates can be tested with fixed
// instants.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the real time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns the configured instant.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time {
	return c.Instant
}
