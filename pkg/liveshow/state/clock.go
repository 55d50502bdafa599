package state

import "time"

// AuctionClock is the tagged union of the two time models an auction can
// run under. Exactly one variant is meaningful for a given auction; the
// backend never populates both.
type AuctionClock interface {
	// Deadline reports the absolute end of the auction and whether one
	// applies at all.
	Deadline() (time.Time, bool)
}

// Scheduled runs between two absolute timestamps.
type Scheduled struct {
	Start time.Time
	End   time.Time
}

func (s Scheduled) Deadline() (time.Time, bool) { return s.End, true }

// DurationBased runs for a fixed duration from the moment it started.
type DurationBased struct {
	StartedAt time.Time
	Duration  time.Duration
}

func (d DurationBased) Deadline() (time.Time, bool) { return d.StartedAt.Add(d.Duration), true }

// Unscheduled has no deadline; the auction ends only on an explicit
// auction-ended event.
type Unscheduled struct{}

func (Unscheduled) Deadline() (time.Time, bool) { return time.Time{}, false }

// TimeLeft derives the remaining time from wall-clock now. It is computed
// fresh on every call, never counted down locally, so it is correct
// immediately after a long suspension. Never negative.
func TimeLeft(c AuctionClock, now time.Time) (time.Duration, bool) {
	deadline, ok := c.Deadline()
	if !ok {
		return 0, false
	}

	left := deadline.Sub(now)
	if left < 0 {
		left = 0
	}

	return left, true
}
