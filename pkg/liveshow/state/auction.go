package state

import "time"

type AuctionStatus string

const (
	AuctionNotStarted AuctionStatus = "not_started"
	AuctionActive     AuctionStatus = "active"
	AuctionEnded      AuctionStatus = "ended"
)

type Bid struct {
	BidderID   string
	BidderName string
	Amount     int64
	Timestamp  time.Time
}

// Auction is the client-local view of one auction, folded from the event
// stream. Bids holds the accepted history in arrival order.
type Auction struct {
	ID            string
	ProductID     string
	BasePrice     int64
	IncreaseBidBy int64

	Clock AuctionClock

	Bids []Bid

	// EndedExplicitly is set by an auction-ended event; ending is
	// otherwise derived from the clock.
	EndedExplicitly bool
	WinnerID        string
	WinnerName      string
	WinningPrice    int64
}

// CurrentPrice is the commutative-max fold over bid amounts: the result
// does not depend on the arrival order of bid events.
func (a *Auction) CurrentPrice() int64 {
	price := a.BasePrice
	for _, b := range a.Bids {
		if b.Amount > price {
			price = b.Amount
		}
	}

	return price
}

// LeadingBid is the highest bid; among equal amounts the earliest
// timestamp stands.
func (a *Auction) LeadingBid() (Bid, bool) {
	var lead Bid
	found := false

	for _, b := range a.Bids {
		if !found || b.Amount > lead.Amount || (b.Amount == lead.Amount && b.Timestamp.Before(lead.Timestamp)) {
			lead = b
			found = true
		}
	}

	return lead, found
}

// Ended is a pure function of current fields and wall-clock now; it is
// recomputed on every tick rather than cached so the terminal state shows
// up within one tick of the deadline with no new inbound event.
func (a *Auction) Ended(now time.Time) bool {
	if a.EndedExplicitly {
		return true
	}

	deadline, ok := a.Clock.Deadline()
	if !ok {
		return false
	}

	return !now.Before(deadline)
}

func (a *Auction) Status(now time.Time) AuctionStatus {
	if a.Ended(now) {
		return AuctionEnded
	}

	if s, ok := a.Clock.(Scheduled); ok && now.Before(s.Start) {
		return AuctionNotStarted
	}

	return AuctionActive
}

// TimeLeft derives the remaining run time; ok is false when the auction
// has no deadline.
func (a *Auction) TimeLeft(now time.Time) (time.Duration, bool) {
	if a.EndedExplicitly {
		return 0, true
	}

	return TimeLeft(a.Clock, now)
}

func (a *Auction) clone() *Auction {
	cp := *a
	cp.Bids = make([]Bid, len(a.Bids))
	copy(cp.Bids, a.Bids)

	return &cp
}
