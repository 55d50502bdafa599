// Package channel implements the bidirectional commerce event channel for
// one show room: inbound state-change events fan out to registered
// handlers, outbound intents are fire-and-forget emits whose only
// confirmation is a later inbound event.
package channel

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/overbid/liveshow/pkg/liveshow/events"
)

// ErrNotStarted is returned when an intent is emitted before Start. This
// is programmer misuse, not a runtime condition to recover from.
var ErrNotStarted = errors.New("channel: emit before Start")

// Handlers is the fixed set of named inbound event handlers one feature
// binds. Nil entries are simply not interested in that event type.
type Handlers struct {
	OnBidUpdated          func(events.PlaceBid)
	OnAuctionStarted      func(events.AuctionStarted)
	OnAuctionEnded        func(events.AuctionEnded)
	OnAuctionTimeExtended func(events.AuctionTimeExtended)
	OnStartedGiveaway     func(events.StartedGiveaway)
	OnJoinedGiveaway      func(events.JoinGiveaway)
	OnEndedGiveaway       func(events.EndedGiveaway)
	OnProductPinned       func(events.PinProduct)
	OnAuctionPinned       func(events.PinAuction)
	OnMessageCreated      func(events.MessageCreated)
	OnAudioMuted          func(events.AudioMuted)
	OnRoomEnded           func(events.RoomEnded)
	OnAuctionError        func(events.AuctionError)

	// OnRaw sees every envelope, handled or not. Used by the state
	// machine's reducer wiring.
	OnRaw func(events.Envelope)
}

type subscription struct {
	id       int
	handlers Handlers
}

// Channel multiplexes subscriptions over one shared transport. Closing a
// subscription removes exactly its bindings; the transport stays up for
// other features.
type Channel struct {
	transport Transport

	mu      sync.Mutex
	subs    []*subscription
	nextID  int
	started bool
	done    chan struct{}
}

func New(transport Transport) *Channel {
	return &Channel{
		transport: transport,
		done:      make(chan struct{}),
	}
}

// Start launches the shared read loop. The loop runs until the transport
// errors or the channel is closed.
func (c *Channel) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.readLoop()
}

func (c *Channel) readLoop() {
	defer close(c.done)

	for {
		env, err := c.transport.Receive()
		if err != nil {
			slog.Error("commerce channel read", slog.Any("error", err))
			return
		}

		c.dispatch(env)
	}
}

// Done is closed when the read loop exits.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Subscribe binds handlers and returns the function that removes exactly
// those bindings. It never tears down the shared transport.
func (c *Channel) Subscribe(h Handlers) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	sub := &subscription{id: c.nextID, handlers: h}
	c.subs = append(c.subs, sub)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		for i, s := range c.subs {
			if s.id == sub.id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Close tears down the transport. Only the owner of the transport calls
// this; feature code uses the unsubscribe function instead.
func (c *Channel) Close() error {
	return c.transport.Close()
}

// dispatch logs the event and hands it to at most one handler per
// subscription. Unhandled event types are ignored, not errors.
func (c *Channel) dispatch(env events.Envelope) {
	slog.Debug("commerce event",
		slog.String("event", env.Type),
		slog.Uint64("seq", env.Seq),
	)

	c.mu.Lock()
	subs := make([]*subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		if sub.handlers.OnRaw != nil {
			sub.handlers.OnRaw(env)
		}

		deliver(env, sub.handlers)
	}
}

func deliver(env events.Envelope, h Handlers) {
	switch env.Type {
	case events.TypeBidUpdated:
		decodeInto(env, h.OnBidUpdated)
	case events.TypeAuctionStarted:
		decodeInto(env, h.OnAuctionStarted)
	case events.TypeAuctionEnded:
		decodeInto(env, h.OnAuctionEnded)
	case events.TypeAuctionTimeExtended:
		decodeInto(env, h.OnAuctionTimeExtended)
	case events.TypeStartedGiveaway:
		decodeInto(env, h.OnStartedGiveaway)
	case events.TypeJoinedGiveaway:
		decodeInto(env, h.OnJoinedGiveaway)
	case events.TypeEndedGiveaway:
		decodeInto(env, h.OnEndedGiveaway)
	case events.TypeProductPinned:
		decodeInto(env, h.OnProductPinned)
	case events.TypeAuctionPinned:
		decodeInto(env, h.OnAuctionPinned)
	case events.TypeMessageCreated:
		decodeInto(env, h.OnMessageCreated)
	case events.TypeAudioMuted:
		decodeInto(env, h.OnAudioMuted)
	case events.TypeRoomEnded:
		decodeInto(env, h.OnRoomEnded)
	case events.TypeAuctionError:
		decodeInto(env, h.OnAuctionError)
	}
}

func decodeInto[T any](env events.Envelope, handler func(T)) {
	if handler == nil {
		return
	}

	var payload T
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		slog.Warn("commerce event decode",
			slog.String("event", env.Type),
			slog.Any("error", err),
		)
		return
	}

	handler(payload)
}

// emit sends one intent. There is no success signal: confirmation only
// arrives as a later inbound event or an auction-error.
func (c *Channel) emit(eventType string, payload any) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	if !started {
		return ErrNotStarted
	}

	env, err := events.Marshal(eventType, payload)
	if err != nil {
		return err
	}

	return c.transport.Send(env)
}

// PlaceBid emits a bid intent. The caller treats it as optimistic and
// reconciles against the next bid-updated or auction-error event.
func (c *Channel) PlaceBid(auctionID string, amount int64, bidderID, bidderName string) error {
	return c.emit(events.TypePlaceBid, events.PlaceBid{
		AuctionID:  auctionID,
		Amount:     amount,
		BidderID:   bidderID,
		BidderName: bidderName,
		Timestamp:  time.Now().UTC(),
	})
}

// StartAuction is host-only; the caller gates on the session manager's
// capability flags before emitting. The backend is the final authority and
// answers a non-host with auction-error.
func (c *Channel) StartAuction(auction events.StartAuction) error {
	return c.emit(events.TypeStartAuction, auction)
}

func (c *Channel) PinProduct(productID, roomID string, pinned bool) error {
	return c.emit(events.TypePinProduct, events.PinProduct{
		ProductID: productID,
		RoomID:    roomID,
		Pinned:    pinned,
	})
}

func (c *Channel) PinAuction(auctionID, roomID string, pinned bool) error {
	return c.emit(events.TypePinAuction, events.PinAuction{
		AuctionID: auctionID,
		RoomID:    roomID,
		Pinned:    pinned,
	})
}

func (c *Channel) StartGiveaway(giveawayID, productID string) error {
	return c.emit(events.TypeStartGiveaway, events.StartGiveaway{
		GiveawayID: giveawayID,
		ProductID:  productID,
	})
}

func (c *Channel) JoinGiveaway(giveawayID, participantID string, bookmarked bool) error {
	return c.emit(events.TypeJoinGiveaway, events.JoinGiveaway{
		GiveawayID:    giveawayID,
		ParticipantID: participantID,
		Bookmarked:    bookmarked,
	})
}

func (c *Channel) DrawGiveaway(giveawayID string) error {
	return c.emit(events.TypeDrawGiveaway, events.StartGiveaway{GiveawayID: giveawayID})
}

func (c *Channel) FollowUser(userID, followerID string) error {
	return c.emit(events.TypeFollowUser, events.FollowUser{
		UserID:     userID,
		FollowerID: followerID,
	})
}

// Rally redirects all viewers of fromRoom to toRoom. The raid coordinator
// re-validates the target before calling this.
func (c *Channel) Rally(fromRoom, toRoom, hostName, hostID string, viewerCount int) error {
	return c.emit(events.TypeRally, events.Rally{
		FromRoom:    fromRoom,
		ToRoom:      toRoom,
		HostName:    hostName,
		HostID:      hostID,
		ViewerCount: viewerCount,
	})
}

func (c *Channel) CreateMessage(roomID, senderID, sender, text string) error {
	return c.emit(events.TypeCreateMessage, events.CreateMessage{
		RoomID:   roomID,
		SenderID: senderID,
		Sender:   sender,
		Text:     text,
	})
}

func (c *Channel) EndRoom(roomID string) error {
	return c.emit(events.TypeEndRoom, events.RoomEnded{RoomID: roomID})
}

func (c *Channel) UserConnected(userID, userName string) error {
	return c.emit(events.TypeUserConnected, events.UserConnected{
		UserID:   userID,
		UserName: userName,
	})
}
