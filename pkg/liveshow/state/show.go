package state

import (
	"encoding/json"
	"time"

	"github.com/overbid/liveshow/pkg/liveshow/events"
)

// PendingStatus tracks a locally-emitted action until the backend answers.
type PendingStatus string

const (
	PendingUnconfirmed PendingStatus = "pending"
	PendingConfirmed   PendingStatus = "confirmed"
	PendingRejected    PendingStatus = "rejected"
)

// PendingBid is an optimistic local bid. Displayed price derives only from
// confirmed bids, so a rejection rolls back by simply dropping the pending
// entry.
type PendingBid struct {
	Bid    Bid
	Status PendingStatus
	Reason string
}

type ChatMessage struct {
	SenderID string
	Sender   string
	Text     string
	SentAt   time.Time
}

// maxChatHistory bounds the retained chat log.
const maxChatHistory = 200

// ShowState is the derived commerce state of one show. It is owned by the
// currently mounted show view and disposed on navigation; there is no
// cross-show cache.
type ShowState struct {
	ShowID string

	Auction  *Auction
	Giveaway *Giveaway

	PinnedProductID string
	PinnedAuctionID string

	AudioMuted bool
	RoomEnded  bool

	Messages []ChatMessage

	PendingBid *PendingBid

	// LastSeq is the highest backend sequence number applied; events at
	// or below it are replays and are ignored.
	LastSeq uint64
}

func NewShowState(showID string) ShowState {
	return ShowState{ShowID: showID}
}

// OptimisticPrice is the price to display while a local bid is pending.
func (s *ShowState) OptimisticPrice() int64 {
	if s.Auction == nil {
		return 0
	}

	price := s.Auction.CurrentPrice()
	if s.PendingBid != nil && s.PendingBid.Status == PendingUnconfirmed && s.PendingBid.Bid.Amount > price {
		price = s.PendingBid.Bid.Amount
	}

	return price
}

// WithLocalBid records an optimistic bid before the place-bid intent is
// emitted.
func WithLocalBid(cur ShowState, bid Bid) ShowState {
	cur.PendingBid = &PendingBid{Bid: bid, Status: PendingUnconfirmed}
	return cur
}

// Apply folds one inbound event into the state and returns the next state.
// Unknown event types leave the state untouched. The fold never reorders
// or buffers; out-of-order delivery is mitigated only by the seq guard and
// the commutative-max price derivation.
func Apply(cur ShowState, env events.Envelope) ShowState {
	if env.Seq != 0 {
		if env.Seq <= cur.LastSeq {
			return cur
		}
		cur.LastSeq = env.Seq
	}

	switch env.Type {
	case events.TypeBidUpdated:
		var p events.PlaceBid
		if json.Unmarshal(env.Data, &p) != nil {
			return cur
		}
		return applyBid(cur, p)

	case events.TypeAuctionStarted:
		var p events.AuctionStarted
		if json.Unmarshal(env.Data, &p) != nil {
			return cur
		}
		return applyAuctionStarted(cur, p)

	case events.TypeAuctionEnded:
		var p events.AuctionEnded
		if json.Unmarshal(env.Data, &p) != nil {
			return cur
		}
		return applyAuctionEnded(cur, p)

	case events.TypeAuctionTimeExtended:
		var p events.AuctionTimeExtended
		if json.Unmarshal(env.Data, &p) != nil {
			return cur
		}
		return applyTimeExtended(cur, p)

	case events.TypeStartedGiveaway:
		var p events.StartedGiveaway
		if json.Unmarshal(env.Data, &p) != nil {
			return cur
		}
		cur.Giveaway = &Giveaway{
			ID:           p.GiveawayID,
			ProductID:    p.ProductID,
			Participants: make(map[string]struct{}),
			Bookmarks:    make(map[string]struct{}),
			StartedAt:    p.StartedAt,
		}
		return cur

	case events.TypeJoinedGiveaway:
		var p events.JoinGiveaway
		if json.Unmarshal(env.Data, &p) != nil {
			return cur
		}
		return applyGiveawayJoin(cur, p)

	case events.TypeEndedGiveaway:
		var p events.EndedGiveaway
		if json.Unmarshal(env.Data, &p) != nil {
			return cur
		}
		if cur.Giveaway == nil || cur.Giveaway.ID != p.GiveawayID {
			return cur
		}
		g := cur.Giveaway.clone()
		g.EndedAt = p.EndedAt
		g.WinnerID = p.WinnerID
		cur.Giveaway = g
		return cur

	case events.TypeProductPinned:
		var p events.PinProduct
		if json.Unmarshal(env.Data, &p) != nil {
			return cur
		}
		if p.Pinned {
			cur.PinnedProductID = p.ProductID
		} else if cur.PinnedProductID == p.ProductID {
			cur.PinnedProductID = ""
		}
		return cur

	case events.TypeAuctionPinned:
		var p events.PinAuction
		if json.Unmarshal(env.Data, &p) != nil {
			return cur
		}
		if p.Pinned {
			cur.PinnedAuctionID = p.AuctionID
		} else if cur.PinnedAuctionID == p.AuctionID {
			cur.PinnedAuctionID = ""
		}
		return cur

	case events.TypeMessageCreated:
		var p events.MessageCreated
		if json.Unmarshal(env.Data, &p) != nil {
			return cur
		}
		msgs := make([]ChatMessage, len(cur.Messages), len(cur.Messages)+1)
		copy(msgs, cur.Messages)
		msgs = append(msgs, ChatMessage{
			SenderID: p.SenderID,
			Sender:   p.Sender,
			Text:     p.Text,
			SentAt:   p.CreatedAt,
		})
		if len(msgs) > maxChatHistory {
			msgs = msgs[len(msgs)-maxChatHistory:]
		}
		cur.Messages = msgs
		return cur

	case events.TypeAudioMuted:
		var p events.AudioMuted
		if json.Unmarshal(env.Data, &p) != nil {
			return cur
		}
		cur.AudioMuted = p.Muted
		return cur

	case events.TypeRoomEnded:
		cur.RoomEnded = true
		return cur

	case events.TypeAuctionError:
		var p events.AuctionError
		if json.Unmarshal(env.Data, &p) != nil {
			return cur
		}
		if cur.PendingBid != nil && cur.PendingBid.Status == PendingUnconfirmed {
			pb := *cur.PendingBid
			pb.Status = PendingRejected
			pb.Reason = p.Message
			cur.PendingBid = &pb
		}
		return cur

	default:
		return cur
	}
}

func applyBid(cur ShowState, p events.PlaceBid) ShowState {
	if cur.Auction == nil || cur.Auction.ID != p.AuctionID {
		return cur
	}

	bid := Bid{
		BidderID:   p.BidderID,
		BidderName: p.BidderName,
		Amount:     p.Amount,
		Timestamp:  p.Timestamp,
	}

	a := cur.Auction.clone()

	// Replay protection for transports without seq: an exact duplicate
	// does not grow the history.
	for _, b := range a.Bids {
		if b.BidderID == bid.BidderID && b.Amount == bid.Amount && b.Timestamp.Equal(bid.Timestamp) {
			return cur
		}
	}

	a.Bids = append(a.Bids, bid)
	cur.Auction = a

	if cur.PendingBid != nil && cur.PendingBid.Status == PendingUnconfirmed &&
		cur.PendingBid.Bid.BidderID == bid.BidderID && cur.PendingBid.Bid.Amount == bid.Amount {
		pb := *cur.PendingBid
		pb.Status = PendingConfirmed
		cur.PendingBid = &pb
	}

	return cur
}

func applyAuctionStarted(cur ShowState, p events.AuctionStarted) ShowState {
	var clock AuctionClock = Unscheduled{}

	switch {
	case p.EndsAt != nil:
		start := p.StartedAt
		if p.StartsAt != nil {
			start = *p.StartsAt
		}
		clock = Scheduled{Start: start, End: *p.EndsAt}
	case p.DurationMinutes > 0:
		clock = DurationBased{
			StartedAt: p.StartedAt,
			Duration:  time.Duration(p.DurationMinutes) * time.Minute,
		}
	}

	cur.Auction = &Auction{
		ID:            p.AuctionID,
		ProductID:     p.ProductID,
		BasePrice:     p.BasePrice,
		IncreaseBidBy: p.IncreaseBidBy,
		Clock:         clock,
	}
	cur.PendingBid = nil

	return cur
}

func applyAuctionEnded(cur ShowState, p events.AuctionEnded) ShowState {
	if cur.Auction == nil || cur.Auction.ID != p.AuctionID {
		return cur
	}

	a := cur.Auction.clone()
	a.EndedExplicitly = true
	a.WinnerID = p.WinnerID
	a.WinnerName = p.WinnerName
	a.WinningPrice = p.WinningPrice
	cur.Auction = a

	return cur
}

// applyTimeExtended moves only the end boundary; accumulated bid history
// is untouched.
func applyTimeExtended(cur ShowState, p events.AuctionTimeExtended) ShowState {
	if cur.Auction == nil || cur.Auction.ID != p.AuctionID {
		return cur
	}

	a := cur.Auction.clone()

	switch c := a.Clock.(type) {
	case Scheduled:
		a.Clock = Scheduled{Start: c.Start, End: p.EndsAt}
	case DurationBased:
		a.Clock = DurationBased{StartedAt: c.StartedAt, Duration: p.EndsAt.Sub(c.StartedAt)}
	default:
		a.Clock = Scheduled{End: p.EndsAt}
	}

	cur.Auction = a

	return cur
}

func applyGiveawayJoin(cur ShowState, p events.JoinGiveaway) ShowState {
	if cur.Giveaway == nil || cur.Giveaway.ID != p.GiveawayID || cur.Giveaway.Ended() {
		return cur
	}

	if cur.Giveaway.HasEntered(p.ParticipantID) && !p.Bookmarked {
		return cur
	}

	g := cur.Giveaway.clone()
	g.Participants[p.ParticipantID] = struct{}{}
	if p.Bookmarked {
		g.Bookmarks[p.ParticipantID] = struct{}{}
	}
	cur.Giveaway = g

	return cur
}
