// Package events defines the wire format of the commerce event channel.
//
// Every frame is an Envelope whose Data field holds one of the payload
// types below. Outbound intents and inbound state-change events share the
// same envelope; the Type string decides which payload applies.
package events

import (
	"encoding/json"
	"time"
)

// Envelope is the common frame for every commerce channel message.
// Seq is a per-show monotonic sequence number attached by the backend to
// broadcast events; it is zero on client-emitted intents.
type Envelope struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq,omitempty"`
	Data json.RawMessage `json:"data"`
}

// Intent types emitted by clients.
const (
	TypePlaceBid      = "place-bid"
	TypeStartAuction  = "start-auction"
	TypePinProduct    = "pin-product"
	TypePinAuction    = "pin-auction"
	TypeStartGiveaway = "start-giveaway"
	TypeJoinGiveaway  = "join-giveaway"
	TypeDrawGiveaway  = "draw-giveaway"
	TypeFollowUser    = "follow-user"
	TypeRally         = "rally"
	TypeCreateMessage = "createMessage"
	TypeEndRoom       = "end-room"
	TypeUserConnected = "user-connected"
)

// Event types broadcast by the backend.
const (
	TypeBidUpdated          = "bid-updated"
	TypeAuctionStarted      = "auction-started"
	TypeAuctionEnded        = "auction-ended"
	TypeAuctionTimeExtended = "auction-time-extended"
	TypeStartedGiveaway     = "started-giveaway"
	TypeJoinedGiveaway      = "joined-giveaway"
	TypeEndedGiveaway       = "ended-giveaway"
	TypeProductPinned       = "product-pinned"
	TypeAuctionPinned       = "auction-pinned"
	TypeMessageCreated      = "message-created"
	TypeUserFollowed        = "user-followed"
	TypeAudioMuted          = "audio-muted"
	TypeRoomEnded           = "room-ended"
	TypeAuctionError        = "auction-error"
)

// PlaceBid is the payload of a place-bid intent and, echoed back with the
// accepted values, of a bid-updated event.
type PlaceBid struct {
	AuctionID  string    `json:"auction_id"`
	Amount     int64     `json:"amount"`
	BidderID   string    `json:"bidder_id"`
	BidderName string    `json:"bidder_name"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// StartAuction carries the full auction definition. Exactly one of the two
// time models is populated: EndsAt for a scheduled auction, DurationMinutes
// for one that runs relative to its start.
type StartAuction struct {
	AuctionID       string     `json:"auction_id"`
	ProductID       string     `json:"product_id"`
	BasePrice       int64      `json:"base_price"`
	IncreaseBidBy   int64      `json:"increase_bid_by,omitempty"`
	StartsAt        *time.Time `json:"starts_at,omitempty"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
}

type AuctionStarted struct {
	StartAuction
	StartedAt time.Time `json:"started_at"`
}

type AuctionEnded struct {
	AuctionID    string `json:"auction_id"`
	WinnerID     string `json:"winner_id,omitempty"`
	WinnerName   string `json:"winner_name,omitempty"`
	WinningPrice int64  `json:"winning_price,omitempty"`
}

// AuctionTimeExtended moves only the end boundary of a running auction.
type AuctionTimeExtended struct {
	AuctionID string    `json:"auction_id"`
	EndsAt    time.Time `json:"ends_at"`
}

type PinProduct struct {
	ProductID string `json:"product_id"`
	RoomID    string `json:"room_id"`
	Pinned    bool   `json:"pinned"`
}

type PinAuction struct {
	AuctionID string `json:"auction_id"`
	RoomID    string `json:"room_id"`
	Pinned    bool   `json:"pinned"`
}

type StartGiveaway struct {
	GiveawayID string `json:"giveaway_id"`
	ProductID  string `json:"product_id,omitempty"`
}

type StartedGiveaway struct {
	StartGiveaway
	StartedAt time.Time `json:"started_at"`
}

type JoinGiveaway struct {
	GiveawayID    string `json:"giveaway_id"`
	ParticipantID string `json:"participant_id"`
	Bookmarked    bool   `json:"bookmarked,omitempty"`
}

type EndedGiveaway struct {
	GiveawayID string    `json:"giveaway_id"`
	WinnerID   string    `json:"winner_id,omitempty"`
	EndedAt    time.Time `json:"ended_at"`
}

type FollowUser struct {
	UserID     string `json:"user_id"`
	FollowerID string `json:"follower_id"`
}

// Rally redirects all viewers of FromRoom to ToRoom. ViewerCount is the
// initiator's snapshot at confirmation time.
type Rally struct {
	FromRoom    string `json:"from_room"`
	ToRoom      string `json:"to_room"`
	HostName    string `json:"host_name"`
	HostID      string `json:"host_id"`
	ViewerCount int    `json:"viewer_count"`
}

type CreateMessage struct {
	RoomID   string `json:"room_id"`
	SenderID string `json:"sender_id"`
	Sender   string `json:"sender"`
	Text     string `json:"text"`
}

type MessageCreated struct {
	CreateMessage
	CreatedAt time.Time `json:"created_at"`
}

type UserConnected struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

type AudioMuted struct {
	RoomID string `json:"room_id"`
	Muted  bool   `json:"muted"`
}

type RoomEnded struct {
	RoomID string `json:"room_id"`
}

// AuctionError is sent only to the client whose intent was rejected.
type AuctionError struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Rejection codes carried in AuctionError.Code.
const (
	CodeForbidden   = "forbidden"
	CodeBidTooLow   = "bid_too_low"
	CodeNotActive   = "not_active"
	CodeAlreadyOver = "already_over"
	CodeBadPayload  = "bad_payload"
)

// Marshal wraps a payload into an envelope of the given type.
func Marshal(eventType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{Type: eventType, Data: data}, nil
}
