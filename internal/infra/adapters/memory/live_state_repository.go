package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/overbid/liveshow/pkg/liveshow/state"
)

// ShowLive is the authoritative in-memory commerce state of one show. The
// repository hands out the same instance for a show; callers lock it
// around a fold so events get strictly increasing sequence numbers.
type ShowLive struct {
	mu      sync.Mutex
	bcastMu sync.Mutex

	ShowID uuid.UUID
	Seq    uint64

	Auction      *state.Auction
	Giveaway     *state.Giveaway
	GiveawayDone bool

	PinnedProductID string
	PinnedAuctionID string
}

// Fold runs fn with the live state locked.
func (l *ShowLive) Fold(fn func(*ShowLive)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fn(l)
}

// nextSeq hands out the next broadcast sequence number; strictly
// increasing per show.
func (l *ShowLive) nextSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.Seq++

	return l.Seq
}

// Broadcast hands send the next sequence number and holds the broadcast
// lock until send returns. Two concurrent broadcasts for the same show
// cannot interleave their fan-outs, so every member receives sequence
// numbers in emission order.
func (l *ShowLive) Broadcast(send func(seq uint64)) {
	l.bcastMu.Lock()
	defer l.bcastMu.Unlock()

	send(l.nextSeq())
}

// LiveStateRepository owns the live commerce state per show. State exists
// only while the show runs; Remove drops it at end-of-room.
type LiveStateRepository interface {
	GetOrCreate(showID uuid.UUID) *ShowLive

	// Get never creates. Callers that may run after end-of-room, like
	// auction timers, use it so a removed show stays removed.
	Get(showID uuid.UUID) (*ShowLive, bool)

	Remove(showID uuid.UUID)
}

type liveStateRepository struct {
	states map[uuid.UUID]*ShowLive
	mu     sync.Mutex
}

func NewLiveStateRepository() LiveStateRepository {
	return &liveStateRepository{
		states: make(map[uuid.UUID]*ShowLive),
	}
}

func (r *liveStateRepository) GetOrCreate(showID uuid.UUID) *ShowLive {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.states[showID]; ok {
		return st
	}

	st := &ShowLive{ShowID: showID}
	r.states[showID] = st

	return st
}

func (r *liveStateRepository) Get(showID uuid.UUID) (*ShowLive, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[showID]

	return st, ok
}

func (r *liveStateRepository) Remove(showID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, showID)
}
