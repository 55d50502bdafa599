package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/overbid/liveshow/internal/application/constant"
	"github.com/overbid/liveshow/internal/application/metric"
	"github.com/overbid/liveshow/internal/infra/adapters/memory"
	"github.com/overbid/liveshow/internal/infra/adapters/postgres/repository"
	"github.com/overbid/liveshow/pkg/liveshow/events"
	"github.com/overbid/liveshow/pkg/liveshow/state"
)

// softCloseWindow is the countdown extension rule: a bid landing inside
// this window pushes the end boundary out by the same amount.
const softCloseWindow = 30 * time.Second

// CommerceUsecase is the authoritative side of the commerce event
// channel: it validates intents, folds them into per-show live state, and
// broadcasts the resulting events to every room member in emission order
// with a per-show monotonic sequence number.
type CommerceUsecase interface {
	HandleJoin(ctx context.Context, showID uuid.UUID, member memory.Member) error
	HandleLeave(ctx context.Context, showID uuid.UUID, userID uuid.UUID)

	HandleIntent(ctx context.Context, showID uuid.UUID, member memory.Member, env events.Envelope)
}

type commerceUsecase struct {
	showRepo    repository.ShowRepository
	productRepo repository.ProductRepository

	liveRepo    memory.LiveStateRepository
	membersRepo memory.RoomMembersRepository
	wsRepo      memory.WebsocketConnectionRepository
}

func NewCommerceUsecase(
	showRepo repository.ShowRepository,
	productRepo repository.ProductRepository,
	liveRepo memory.LiveStateRepository,
	membersRepo memory.RoomMembersRepository,
	wsRepo memory.WebsocketConnectionRepository,
) CommerceUsecase {
	return &commerceUsecase{
		showRepo:    showRepo,
		productRepo: productRepo,
		liveRepo:    liveRepo,
		membersRepo: membersRepo,
		wsRepo:      wsRepo,
	}
}

func (c *commerceUsecase) HandleJoin(ctx context.Context, showID uuid.UUID, member memory.Member) error {
	c.membersRepo.AddMember(ctx, showID, member)

	count := c.membersRepo.Count(ctx, showID)
	if err := c.showRepo.SetViewerCount(ctx, showID, count); err != nil {
		slog.Warn("persist viewer count", slog.Any(constant.Error, err))
	}

	c.broadcast(ctx, showID, events.TypeUserConnected, events.UserConnected{
		UserID:   member.UserID.String(),
		UserName: member.UserName,
	})

	return nil
}

func (c *commerceUsecase) HandleLeave(ctx context.Context, showID uuid.UUID, userID uuid.UUID) {
	c.membersRepo.RemoveMember(ctx, showID, userID)

	count := c.membersRepo.Count(ctx, showID)
	if err := c.showRepo.SetViewerCount(ctx, showID, count); err != nil {
		slog.Warn("persist viewer count", slog.Any(constant.Error, err))
	}
}

// hostOnly is the set of intents only the room host may emit. The role
// comes from the verified token claims; client-side gating is advisory
// and this check is the final authority.
var hostOnly = map[string]bool{
	events.TypeStartAuction:  true,
	events.TypePinProduct:    true,
	events.TypePinAuction:    true,
	events.TypeStartGiveaway: true,
	events.TypeDrawGiveaway:  true,
	events.TypeRally:         true,
	events.TypeEndRoom:       true,
}

func (c *commerceUsecase) HandleIntent(ctx context.Context, showID uuid.UUID, member memory.Member, env events.Envelope) {
	slog.Info("commerce intent",
		slog.String(constant.Event, env.Type),
		slog.Any(constant.ShowID, showID),
		slog.Any(constant.ViewerID, member.UserID),
	)

	if hostOnly[env.Type] && member.Role != RoleHost {
		c.reject(member.UserID, events.CodeForbidden, "host-only action")
		return
	}

	switch env.Type {
	case events.TypePlaceBid:
		var p events.PlaceBid
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.reject(member.UserID, events.CodeBadPayload, "malformed bid")
			return
		}
		c.handlePlaceBid(ctx, showID, member, p)

	case events.TypeStartAuction:
		var p events.StartAuction
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.reject(member.UserID, events.CodeBadPayload, "malformed auction")
			return
		}
		c.handleStartAuction(ctx, showID, member, p)

	case events.TypePinProduct:
		var p events.PinProduct
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.reject(member.UserID, events.CodeBadPayload, "malformed pin")
			return
		}
		c.handlePinProduct(ctx, showID, p)

	case events.TypePinAuction:
		var p events.PinAuction
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.reject(member.UserID, events.CodeBadPayload, "malformed pin")
			return
		}
		c.handlePinAuction(ctx, showID, p)

	case events.TypeStartGiveaway:
		var p events.StartGiveaway
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.reject(member.UserID, events.CodeBadPayload, "malformed giveaway")
			return
		}
		c.handleStartGiveaway(ctx, showID, p)

	case events.TypeJoinGiveaway:
		var p events.JoinGiveaway
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.reject(member.UserID, events.CodeBadPayload, "malformed giveaway join")
			return
		}
		// Entrants are identified by their verified id, not the payload.
		p.ParticipantID = member.UserID.String()
		c.handleJoinGiveaway(ctx, showID, member, p)

	case events.TypeDrawGiveaway:
		var p events.StartGiveaway
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.reject(member.UserID, events.CodeBadPayload, "malformed draw")
			return
		}
		c.handleDrawGiveaway(ctx, showID, member, p.GiveawayID)

	case events.TypeFollowUser:
		var p events.FollowUser
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.reject(member.UserID, events.CodeBadPayload, "malformed follow")
			return
		}
		c.broadcast(ctx, showID, events.TypeUserFollowed, p)

	case events.TypeRally:
		var p events.Rally
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.reject(member.UserID, events.CodeBadPayload, "malformed rally")
			return
		}
		c.handleRally(ctx, showID, member, p)

	case events.TypeCreateMessage:
		var p events.CreateMessage
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.reject(member.UserID, events.CodeBadPayload, "malformed message")
			return
		}
		p.SenderID = member.UserID.String()
		p.Sender = member.UserName
		c.broadcast(ctx, showID, events.TypeMessageCreated, events.MessageCreated{
			CreateMessage: p,
			CreatedAt:     time.Now().UTC(),
		})

	case events.TypeEndRoom:
		c.handleEndRoom(ctx, showID)

	case events.TypeUserConnected:
		// Already announced by HandleJoin.

	default:
		slog.Warn("unknown intent", slog.String(constant.Event, env.Type))
	}
}

func (c *commerceUsecase) handlePlaceBid(ctx context.Context, showID uuid.UUID, member memory.Member, p events.PlaceBid) {
	live := c.liveRepo.GetOrCreate(showID)
	now := time.Now().UTC()

	var (
		rejected   string
		rejectCode string
		extendedTo time.Time
		accepted   events.PlaceBid
	)

	live.Fold(func(l *memory.ShowLive) {
		if l.Auction == nil || l.Auction.ID != p.AuctionID {
			rejectCode, rejected = events.CodeNotActive, "no such active auction"
			return
		}

		if l.Auction.Ended(now) {
			rejectCode, rejected = events.CodeAlreadyOver, "auction already ended"
			return
		}

		if p.Amount < minAcceptableBid(l.Auction) {
			rejectCode, rejected = events.CodeBidTooLow, fmt.Sprintf("minimum acceptable bid is %d", minAcceptableBid(l.Auction))
			return
		}

		accepted = events.PlaceBid{
			AuctionID:  p.AuctionID,
			Amount:     p.Amount,
			BidderID:   member.UserID.String(),
			BidderName: member.UserName,
			Timestamp:  now,
		}

		l.Auction.Bids = append(l.Auction.Bids, state.Bid{
			BidderID:   accepted.BidderID,
			BidderName: accepted.BidderName,
			Amount:     accepted.Amount,
			Timestamp:  accepted.Timestamp,
		})

		// Soft close: a bid inside the final window pushes the end out.
		if deadline, ok := l.Auction.Clock.Deadline(); ok && deadline.Sub(now) < softCloseWindow {
			extendedTo = deadline.Add(softCloseWindow)
			l.Auction.Clock = extendClock(l.Auction.Clock, extendedTo)
		}
	})

	if rejected != "" {
		metric.RecordBidRejected()
		c.reject(member.UserID, rejectCode, rejected)
		return
	}

	c.broadcast(ctx, showID, events.TypeBidUpdated, accepted)

	if !extendedTo.IsZero() {
		c.broadcast(ctx, showID, events.TypeAuctionTimeExtended, events.AuctionTimeExtended{
			AuctionID: p.AuctionID,
			EndsAt:    extendedTo,
		})
		c.scheduleAuctionEnd(ctx, showID, p.AuctionID, extendedTo)
	}
}

// minAcceptableBid: the base price opens the bidding; after that each bid
// must clear the current price by the configured increment.
func minAcceptableBid(a *state.Auction) int64 {
	if len(a.Bids) == 0 {
		return a.BasePrice
	}

	increment := a.IncreaseBidBy
	if increment <= 0 {
		increment = 1
	}

	return a.CurrentPrice() + increment
}

func extendClock(clock state.AuctionClock, endsAt time.Time) state.AuctionClock {
	switch cl := clock.(type) {
	case state.Scheduled:
		return state.Scheduled{Start: cl.Start, End: endsAt}
	case state.DurationBased:
		return state.DurationBased{StartedAt: cl.StartedAt, Duration: endsAt.Sub(cl.StartedAt)}
	default:
		return state.Scheduled{End: endsAt}
	}
}

func (c *commerceUsecase) handleStartAuction(ctx context.Context, showID uuid.UUID, member memory.Member, p events.StartAuction) {
	live := c.liveRepo.GetOrCreate(showID)
	now := time.Now().UTC()

	var clock state.AuctionClock = state.Unscheduled{}
	switch {
	case p.EndsAt != nil:
		start := now
		if p.StartsAt != nil {
			start = *p.StartsAt
		}
		clock = state.Scheduled{Start: start, End: *p.EndsAt}
	case p.DurationMinutes > 0:
		clock = state.DurationBased{StartedAt: now, Duration: time.Duration(p.DurationMinutes) * time.Minute}
	}

	var alreadyRunning bool
	live.Fold(func(l *memory.ShowLive) {
		if l.Auction != nil && !l.Auction.Ended(now) {
			alreadyRunning = true
			return
		}

		l.Auction = &state.Auction{
			ID:            p.AuctionID,
			ProductID:     p.ProductID,
			BasePrice:     p.BasePrice,
			IncreaseBidBy: p.IncreaseBidBy,
			Clock:         clock,
		}
	})

	if alreadyRunning {
		c.reject(member.UserID, events.CodeNotActive, "an auction is already running")
		return
	}

	c.broadcast(ctx, showID, events.TypeAuctionStarted, events.AuctionStarted{
		StartAuction: p,
		StartedAt:    now,
	})

	if deadline, ok := clock.Deadline(); ok {
		c.scheduleAuctionEnd(ctx, showID, p.AuctionID, deadline)
	}
}

// scheduleAuctionEnd arms the end-of-auction broadcast. Rescheduling on
// extension is handled by re-checking the live deadline when the timer
// fires: a stale timer finds the deadline moved and does nothing.
func (c *commerceUsecase) scheduleAuctionEnd(ctx context.Context, showID uuid.UUID, auctionID string, deadline time.Time) {
	time.AfterFunc(time.Until(deadline)+50*time.Millisecond, func() {
		c.finishAuction(ctx, showID, auctionID)
	})
}

func (c *commerceUsecase) finishAuction(ctx context.Context, showID uuid.UUID, auctionID string) {
	// The room may have ended since the timer was armed.
	live, ok := c.liveRepo.Get(showID)
	if !ok {
		return
	}

	now := time.Now().UTC()

	var (
		done   bool
		result events.AuctionEnded
	)

	live.Fold(func(l *memory.ShowLive) {
		if l.Auction == nil || l.Auction.ID != auctionID || l.Auction.EndedExplicitly {
			return
		}

		// Deadline may have moved since this timer was armed.
		if !l.Auction.Ended(now) {
			return
		}

		l.Auction.EndedExplicitly = true

		result = events.AuctionEnded{AuctionID: auctionID}
		if lead, ok := l.Auction.LeadingBid(); ok {
			result.WinnerID = lead.BidderID
			result.WinnerName = lead.BidderName
			result.WinningPrice = lead.Amount
			l.Auction.WinnerID = lead.BidderID
			l.Auction.WinnerName = lead.BidderName
			l.Auction.WinningPrice = lead.Amount
		}

		done = true
	})

	if done {
		c.broadcast(ctx, showID, events.TypeAuctionEnded, result)
	}
}

func (c *commerceUsecase) handlePinProduct(ctx context.Context, showID uuid.UUID, p events.PinProduct) {
	live := c.liveRepo.GetOrCreate(showID)

	live.Fold(func(l *memory.ShowLive) {
		if p.Pinned {
			l.PinnedProductID = p.ProductID
		} else if l.PinnedProductID == p.ProductID {
			l.PinnedProductID = ""
		}
	})

	if productID, err := uuid.Parse(p.ProductID); err == nil {
		if err := c.productRepo.SetPinned(ctx, productID, p.Pinned); err != nil {
			slog.Warn("persist pinned product", slog.Any(constant.Error, err))
		}
	}

	c.broadcast(ctx, showID, events.TypeProductPinned, p)
}

func (c *commerceUsecase) handlePinAuction(ctx context.Context, showID uuid.UUID, p events.PinAuction) {
	live := c.liveRepo.GetOrCreate(showID)

	live.Fold(func(l *memory.ShowLive) {
		if p.Pinned {
			l.PinnedAuctionID = p.AuctionID
		} else if l.PinnedAuctionID == p.AuctionID {
			l.PinnedAuctionID = ""
		}
	})

	c.broadcast(ctx, showID, events.TypeAuctionPinned, p)
}

func (c *commerceUsecase) handleStartGiveaway(ctx context.Context, showID uuid.UUID, p events.StartGiveaway) {
	live := c.liveRepo.GetOrCreate(showID)
	now := time.Now().UTC()

	live.Fold(func(l *memory.ShowLive) {
		l.Giveaway = &state.Giveaway{
			ID:           p.GiveawayID,
			ProductID:    p.ProductID,
			Participants: make(map[string]struct{}),
			Bookmarks:    make(map[string]struct{}),
			StartedAt:    now,
		}
		l.GiveawayDone = false
	})

	c.broadcast(ctx, showID, events.TypeStartedGiveaway, events.StartedGiveaway{
		StartGiveaway: p,
		StartedAt:     now,
	})
}

func (c *commerceUsecase) handleJoinGiveaway(ctx context.Context, showID uuid.UUID, member memory.Member, p events.JoinGiveaway) {
	live := c.liveRepo.GetOrCreate(showID)

	var rejected string
	live.Fold(func(l *memory.ShowLive) {
		if l.Giveaway == nil || l.Giveaway.ID != p.GiveawayID || l.Giveaway.Ended() {
			rejected = "no active giveaway"
			return
		}

		// Set semantics: a duplicate join changes nothing.
		l.Giveaway.Participants[p.ParticipantID] = struct{}{}
		if p.Bookmarked {
			l.Giveaway.Bookmarks[p.ParticipantID] = struct{}{}
		}
	})

	if rejected != "" {
		c.reject(member.UserID, events.CodeNotActive, rejected)
		return
	}

	c.broadcast(ctx, showID, events.TypeJoinedGiveaway, p)
}

func (c *commerceUsecase) handleDrawGiveaway(ctx context.Context, showID uuid.UUID, member memory.Member, giveawayID string) {
	live := c.liveRepo.GetOrCreate(showID)
	now := time.Now().UTC()

	var (
		rejected string
		winnerID string
	)

	live.Fold(func(l *memory.ShowLive) {
		if l.Giveaway == nil || l.Giveaway.ID != giveawayID {
			rejected = "no such giveaway"
			return
		}

		// At most one winner, ever.
		if l.GiveawayDone || l.Giveaway.Ended() {
			rejected = "giveaway already drawn"
			return
		}

		entrants := make([]string, 0, len(l.Giveaway.Participants))
		for id := range l.Giveaway.Participants {
			entrants = append(entrants, id)
		}

		if len(entrants) > 0 {
			winnerID = entrants[rand.Intn(len(entrants))]
		}

		l.Giveaway.EndedAt = now
		l.Giveaway.WinnerID = winnerID
		l.GiveawayDone = true
	})

	if rejected != "" {
		c.reject(member.UserID, events.CodeAlreadyOver, rejected)
		return
	}

	c.broadcast(ctx, showID, events.TypeEndedGiveaway, events.EndedGiveaway{
		GiveawayID: giveawayID,
		WinnerID:   winnerID,
		EndedAt:    now,
	})
}

// handleRally re-validates the target room server-side as well: clients
// check before emitting, but the fold is the last gate against moving
// viewers into a dead room.
func (c *commerceUsecase) handleRally(ctx context.Context, showID uuid.UUID, member memory.Member, p events.Rally) {
	targetID, err := uuid.Parse(p.ToRoom)
	if err != nil {
		c.reject(member.UserID, events.CodeBadPayload, "invalid target room")
		return
	}

	target, err := c.showRepo.GetByID(ctx, targetID)
	if err != nil || !target.Live() {
		c.reject(member.UserID, events.CodeNotActive, "target room is no longer live")
		return
	}

	p.ViewerCount = c.membersRepo.Count(ctx, showID)

	c.broadcast(ctx, showID, events.TypeRally, p)
}

func (c *commerceUsecase) handleEndRoom(ctx context.Context, showID uuid.UUID) {
	if err := c.showRepo.SetEnded(ctx, showID); err != nil {
		slog.Error("mark show ended", slog.Any(constant.Error, err))
	}

	c.broadcast(ctx, showID, events.TypeRoomEnded, events.RoomEnded{RoomID: showID.String()})

	c.liveRepo.Remove(showID)
}

// broadcast assigns the next sequence number and writes the event to every
// room member. Seq assignment and the fan-out run under the show's
// broadcast lock so concurrent broadcasts cannot hand a member a higher
// seq before a lower one.
func (c *commerceUsecase) broadcast(ctx context.Context, showID uuid.UUID, eventType string, payload any) {
	env, err := events.Marshal(eventType, payload)
	if err != nil {
		slog.Error("marshal broadcast", slog.Any(constant.Error, err))
		return
	}

	metric.RecordCommerceEvent(eventType)

	c.liveRepo.GetOrCreate(showID).Broadcast(func(seq uint64) {
		env.Seq = seq

		for _, member := range c.membersRepo.GetMembers(ctx, showID) {
			c.wsRepo.Write(member.UserID, env)
		}
	})
}

func (c *commerceUsecase) reject(userID uuid.UUID, code, message string) {
	env, err := events.Marshal(events.TypeAuctionError, events.AuctionError{
		Error:   "rejected",
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}

	c.wsRepo.Write(userID, env)
}
