package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/overbid/liveshow/internal/domain/models"
	"github.com/overbid/liveshow/internal/infra/adapters/memory"
	"github.com/overbid/liveshow/internal/usecase"
	"github.com/overbid/liveshow/pkg/liveshow/events"
	"github.com/overbid/liveshow/pkg/liveshow/state"
)

// stubShowRepo is an in-memory ShowRepository for usecase tests.
type stubShowRepo struct {
	mu    sync.Mutex
	shows map[uuid.UUID]*models.Show
	ended []uuid.UUID
}

func newStubShowRepo() *stubShowRepo {
	return &stubShowRepo{shows: make(map[uuid.UUID]*models.Show)}
}

func (s *stubShowRepo) Create(ctx context.Context, show *models.Show) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shows[show.ID] = show

	return nil
}

func (s *stubShowRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Show, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	show, ok := s.shows[id]
	if !ok {
		return nil, errors.New("not found")
	}

	cp := *show
	return &cp, nil
}

func (s *stubShowRepo) ListLive(ctx context.Context) ([]*models.Show, error) {
	return nil, nil
}

func (s *stubShowRepo) SetStarted(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubShowRepo) SetEnded(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ended = append(s.ended, id)
	if show, ok := s.shows[id]; ok {
		show.Ended = true
	}

	return nil
}

func (s *stubShowRepo) SetAudioMuted(ctx context.Context, id uuid.UUID, muted bool) error {
	return nil
}

func (s *stubShowRepo) SetViewerCount(ctx context.Context, id uuid.UUID, count int) error {
	return nil
}

type stubProductRepo struct{}

func (stubProductRepo) Create(ctx context.Context, product *models.Product) error { return nil }
func (stubProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return nil, errors.New("not found")
}
func (stubProductRepo) ListByShow(ctx context.Context, showID uuid.UUID) ([]*models.Product, error) {
	return nil, nil
}
func (stubProductRepo) SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error { return nil }

type commerceFixture struct {
	usecase  usecase.CommerceUsecase
	showRepo *stubShowRepo
	liveRepo memory.LiveStateRepository
	members  memory.RoomMembersRepository

	showID uuid.UUID
	host   memory.Member
	viewer memory.Member
}

func setupCommerce(t *testing.T) *commerceFixture {
	t.Helper()

	return setupCommerceWith(t, memory.NewWSConnectionRepository())
}

func setupCommerceWith(t *testing.T, wsRepo memory.WebsocketConnectionRepository) *commerceFixture {
	t.Helper()

	showRepo := newStubShowRepo()
	liveRepo := memory.NewLiveStateRepository()
	members := memory.NewRoomMembersRepository()

	f := &commerceFixture{
		usecase:  usecase.NewCommerceUsecase(showRepo, stubProductRepo{}, liveRepo, members, wsRepo),
		showRepo: showRepo,
		liveRepo: liveRepo,
		members:  members,
		showID:   uuid.New(),
		host:     memory.Member{UserID: uuid.New(), UserName: "Host", Role: usecase.RoleHost},
		viewer:   memory.Member{UserID: uuid.New(), UserName: "Viewer", Role: usecase.RoleViewer},
	}

	members.AddMember(context.Background(), f.showID, f.host)
	members.AddMember(context.Background(), f.showID, f.viewer)

	return f
}

func intent(t *testing.T, eventType string, payload any) events.Envelope {
	t.Helper()

	env, err := events.Marshal(eventType, payload)
	if err != nil {
		t.Fatalf("marshal %s: %v", eventType, err)
	}

	return env
}

func (f *commerceFixture) startAuction(t *testing.T, basePrice, increment int64, endsIn time.Duration) string {
	t.Helper()

	auctionID := uuid.NewString()
	p := events.StartAuction{
		AuctionID:     auctionID,
		ProductID:     uuid.NewString(),
		BasePrice:     basePrice,
		IncreaseBidBy: increment,
	}
	if endsIn > 0 {
		endsAt := time.Now().UTC().Add(endsIn)
		p.EndsAt = &endsAt
	}

	f.usecase.HandleIntent(context.Background(), f.showID, f.host, intent(t, events.TypeStartAuction, p))

	return auctionID
}

func (f *commerceFixture) auction() *state.Auction {
	var a *state.Auction
	f.liveRepo.GetOrCreate(f.showID).Fold(func(l *memory.ShowLive) {
		a = l.Auction
	})

	return a
}

func (f *commerceFixture) seq() uint64 {
	var seq uint64
	f.liveRepo.GetOrCreate(f.showID).Fold(func(l *memory.ShowLive) {
		seq = l.Seq
	})

	return seq
}

func TestHandleIntent_HostOnlyRejectedForViewer(t *testing.T) {
	f := setupCommerce(t)

	p := events.StartAuction{AuctionID: uuid.NewString(), BasePrice: 100}
	f.usecase.HandleIntent(context.Background(), f.showID, f.viewer, intent(t, events.TypeStartAuction, p))

	if f.auction() != nil {
		t.Error("a viewer started an auction")
	}

	if f.seq() != 0 {
		t.Error("a rejected intent produced a broadcast")
	}
}

func TestHandleIntent_StartAuction(t *testing.T) {
	f := setupCommerce(t)

	auctionID := f.startAuction(t, 100, 10, time.Hour)

	a := f.auction()
	if a == nil || a.ID != auctionID || a.BasePrice != 100 {
		t.Fatalf("auction not recorded: %+v", a)
	}

	if f.seq() == 0 {
		t.Error("auction start was not broadcast")
	}
}

func TestHandleIntent_SecondAuctionWhileRunningRejected(t *testing.T) {
	f := setupCommerce(t)

	first := f.startAuction(t, 100, 10, time.Hour)
	f.startAuction(t, 200, 10, time.Hour)

	if a := f.auction(); a.ID != first {
		t.Errorf("running auction was replaced: %+v", a)
	}
}

func TestHandlePlaceBid_FirstBidOpensAtBasePrice(t *testing.T) {
	f := setupCommerce(t)
	auctionID := f.startAuction(t, 100, 10, time.Hour)

	f.usecase.HandleIntent(context.Background(), f.showID, f.viewer, intent(t, events.TypePlaceBid, events.PlaceBid{
		AuctionID: auctionID,
		Amount:    100,
	}))

	a := f.auction()
	if len(a.Bids) != 1 || a.Bids[0].Amount != 100 {
		t.Fatalf("opening bid at base price not accepted: %+v", a.Bids)
	}

	// The backend stamps bidder identity from the verified member.
	if a.Bids[0].BidderID != f.viewer.UserID.String() {
		t.Errorf("bidder identity not taken from the member: %q", a.Bids[0].BidderID)
	}
}

func TestHandlePlaceBid_BelowMinimumRejected(t *testing.T) {
	f := setupCommerce(t)
	auctionID := f.startAuction(t, 100, 10, time.Hour)

	f.usecase.HandleIntent(context.Background(), f.showID, f.viewer, intent(t, events.TypePlaceBid, events.PlaceBid{
		AuctionID: auctionID,
		Amount:    99,
	}))

	if len(f.auction().Bids) != 0 {
		t.Error("bid below base price accepted")
	}

	f.usecase.HandleIntent(context.Background(), f.showID, f.viewer, intent(t, events.TypePlaceBid, events.PlaceBid{
		AuctionID: auctionID,
		Amount:    100,
	}))

	// 105 does not clear the configured increment of 10 over 100.
	f.usecase.HandleIntent(context.Background(), f.showID, f.host, intent(t, events.TypePlaceBid, events.PlaceBid{
		AuctionID: auctionID,
		Amount:    105,
	}))

	if got := len(f.auction().Bids); got != 1 {
		t.Errorf("bid below increment accepted: %d bids", got)
	}
}

func TestHandlePlaceBid_UnknownAuctionRejected(t *testing.T) {
	f := setupCommerce(t)
	f.startAuction(t, 100, 10, time.Hour)

	f.usecase.HandleIntent(context.Background(), f.showID, f.viewer, intent(t, events.TypePlaceBid, events.PlaceBid{
		AuctionID: "other",
		Amount:    500,
	}))

	if len(f.auction().Bids) != 0 {
		t.Error("bid against an unknown auction accepted")
	}
}

func TestHandlePlaceBid_SoftCloseExtendsDeadline(t *testing.T) {
	f := setupCommerce(t)
	auctionID := f.startAuction(t, 100, 10, 10*time.Second)

	before, ok := f.auction().Clock.Deadline()
	if !ok {
		t.Fatal("expected a deadline")
	}

	f.usecase.HandleIntent(context.Background(), f.showID, f.viewer, intent(t, events.TypePlaceBid, events.PlaceBid{
		AuctionID: auctionID,
		Amount:    100,
	}))

	after, ok := f.auction().Clock.Deadline()
	if !ok {
		t.Fatal("expected a deadline")
	}

	if got := after.Sub(before); got != 30*time.Second {
		t.Errorf("expected a 30s extension, got %v", got)
	}

	if len(f.auction().Bids) != 1 {
		t.Error("extension dropped the accepted bid")
	}
}

func TestHandlePlaceBid_NoExtensionOutsideWindow(t *testing.T) {
	f := setupCommerce(t)
	auctionID := f.startAuction(t, 100, 10, time.Hour)

	before, _ := f.auction().Clock.Deadline()

	f.usecase.HandleIntent(context.Background(), f.showID, f.viewer, intent(t, events.TypePlaceBid, events.PlaceBid{
		AuctionID: auctionID,
		Amount:    100,
	}))

	after, _ := f.auction().Clock.Deadline()
	if !after.Equal(before) {
		t.Errorf("bid outside the final window moved the deadline: %v -> %v", before, after)
	}
}

func TestHandleDrawGiveaway_AtMostOnce(t *testing.T) {
	f := setupCommerce(t)

	giveawayID := uuid.NewString()
	f.usecase.HandleIntent(context.Background(), f.showID, f.host, intent(t, events.TypeStartGiveaway, events.StartGiveaway{
		GiveawayID: giveawayID,
	}))

	f.usecase.HandleIntent(context.Background(), f.showID, f.viewer, intent(t, events.TypeJoinGiveaway, events.JoinGiveaway{
		GiveawayID: giveawayID,
	}))

	f.usecase.HandleIntent(context.Background(), f.showID, f.host, intent(t, events.TypeDrawGiveaway, events.StartGiveaway{
		GiveawayID: giveawayID,
	}))

	var firstWinner string
	var endedAt time.Time
	f.liveRepo.GetOrCreate(f.showID).Fold(func(l *memory.ShowLive) {
		firstWinner = l.Giveaway.WinnerID
		endedAt = l.Giveaway.EndedAt
	})

	if firstWinner != f.viewer.UserID.String() {
		t.Errorf("winner not drawn from entrants: %q", firstWinner)
	}

	seqAfterDraw := f.seq()

	// A second draw must not produce another winner or another broadcast.
	f.usecase.HandleIntent(context.Background(), f.showID, f.host, intent(t, events.TypeDrawGiveaway, events.StartGiveaway{
		GiveawayID: giveawayID,
	}))

	f.liveRepo.GetOrCreate(f.showID).Fold(func(l *memory.ShowLive) {
		if l.Giveaway.WinnerID != firstWinner || !l.Giveaway.EndedAt.Equal(endedAt) {
			t.Error("second draw changed the outcome")
		}
	})

	if f.seq() != seqAfterDraw {
		t.Error("second draw produced a broadcast")
	}
}

func TestHandleJoinGiveaway_UsesVerifiedIdentity(t *testing.T) {
	f := setupCommerce(t)

	giveawayID := uuid.NewString()
	f.usecase.HandleIntent(context.Background(), f.showID, f.host, intent(t, events.TypeStartGiveaway, events.StartGiveaway{
		GiveawayID: giveawayID,
	}))

	// The payload claims someone else's id; the fold uses the member's.
	f.usecase.HandleIntent(context.Background(), f.showID, f.viewer, intent(t, events.TypeJoinGiveaway, events.JoinGiveaway{
		GiveawayID:    giveawayID,
		ParticipantID: "somebody-else",
	}))

	f.liveRepo.GetOrCreate(f.showID).Fold(func(l *memory.ShowLive) {
		if !l.Giveaway.HasEntered(f.viewer.UserID.String()) {
			t.Error("verified member id not entered")
		}
		if l.Giveaway.HasEntered("somebody-else") {
			t.Error("payload-claimed id entered")
		}
	})
}

func TestHandleRally_DeadTargetRejected(t *testing.T) {
	f := setupCommerce(t)

	target := models.NewShow(uuid.New(), "Other Host", "Other Show")
	target.Started = true
	target.Ended = true
	f.showRepo.Create(context.Background(), target)

	f.usecase.HandleIntent(context.Background(), f.showID, f.host, intent(t, events.TypeRally, events.Rally{
		FromRoom: f.showID.String(),
		ToRoom:   target.ID.String(),
	}))

	if f.seq() != 0 {
		t.Error("rally against a dead target was broadcast")
	}
}

func TestHandleRally_LiveTargetBroadcast(t *testing.T) {
	f := setupCommerce(t)

	target := models.NewShow(uuid.New(), "Other Host", "Other Show")
	target.Started = true
	f.showRepo.Create(context.Background(), target)

	f.usecase.HandleIntent(context.Background(), f.showID, f.host, intent(t, events.TypeRally, events.Rally{
		FromRoom: f.showID.String(),
		ToRoom:   target.ID.String(),
	}))

	if f.seq() == 0 {
		t.Error("rally against a live target was not broadcast")
	}
}

func TestHandleEndRoom_MarksEndedAndDropsLiveState(t *testing.T) {
	f := setupCommerce(t)
	f.startAuction(t, 100, 10, time.Hour)

	f.usecase.HandleIntent(context.Background(), f.showID, f.host, intent(t, events.TypeEndRoom, events.RoomEnded{
		RoomID: f.showID.String(),
	}))

	f.showRepo.mu.Lock()
	endedCount := len(f.showRepo.ended)
	f.showRepo.mu.Unlock()

	if endedCount != 1 {
		t.Errorf("show not marked ended: %d calls", endedCount)
	}

	// Live state is gone; a fresh GetOrCreate starts from scratch.
	if f.auction() != nil || f.seq() != 0 {
		t.Error("live state survived end-room")
	}
}

func TestBroadcast_SequenceStrictlyIncreasing(t *testing.T) {
	f := setupCommerce(t)
	auctionID := f.startAuction(t, 100, 10, time.Hour)

	seqAfterStart := f.seq()
	if seqAfterStart == 0 {
		t.Fatal("auction start did not advance the sequence")
	}

	f.usecase.HandleIntent(context.Background(), f.showID, f.viewer, intent(t, events.TypePlaceBid, events.PlaceBid{
		AuctionID: auctionID,
		Amount:    100,
	}))

	if f.seq() != seqAfterStart+1 {
		t.Errorf("expected seq %d after one more broadcast, got %d", seqAfterStart+1, f.seq())
	}
}

// recordingWSRepo captures every envelope written to each member so tests
// can check what the fan-out actually delivered.
type recordingWSRepo struct {
	mu   sync.Mutex
	seqs map[uuid.UUID][]uint64
}

func newRecordingWSRepo() *recordingWSRepo {
	return &recordingWSRepo{seqs: make(map[uuid.UUID][]uint64)}
}

func (r *recordingWSRepo) Add(uuid.UUID, *websocket.Conn) {}
func (r *recordingWSRepo) Remove(uuid.UUID)               {}

func (r *recordingWSRepo) Write(userID uuid.UUID, payload any) {
	env, ok := payload.(events.Envelope)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seqs[userID] = append(r.seqs[userID], env.Seq)
}

func (r *recordingWSRepo) delivered() map[uuid.UUID][]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[uuid.UUID][]uint64, len(r.seqs))
	for id, seqs := range r.seqs {
		out[id] = append([]uint64(nil), seqs...)
	}

	return out
}

// Concurrent broadcasts must not hand any member a higher sequence number
// before a lower one: the client fold drops stale sequence numbers, so an
// out-of-order delivery is a permanently lost event.
func TestBroadcast_FanOutOrderMatchesSeq(t *testing.T) {
	ws := newRecordingWSRepo()
	f := setupCommerceWith(t, ws)

	auctionID := f.startAuction(t, 100, 1, time.Hour)

	const bidders = 16
	const bidsEach = 10

	envs := make([][]events.Envelope, bidders)
	for g := range envs {
		envs[g] = make([]events.Envelope, bidsEach)
		for i := range envs[g] {
			envs[g][i] = intent(t, events.TypePlaceBid, events.PlaceBid{
				AuctionID: auctionID,
				Amount:    int64(1000 + g*1000 + i),
			})
		}
	}

	var wg sync.WaitGroup
	for g := 0; g < bidders; g++ {
		member := memory.Member{UserID: uuid.New(), UserName: "Bidder", Role: usecase.RoleViewer}

		wg.Add(1)
		go func(member memory.Member, envs []events.Envelope) {
			defer wg.Done()

			f.usecase.HandleJoin(context.Background(), f.showID, member)
			for _, env := range envs {
				f.usecase.HandleIntent(context.Background(), f.showID, member, env)
			}
		}(member, envs[g])
	}
	wg.Wait()

	broadcasts := 0
	for member, seqs := range ws.delivered() {
		var last uint64
		for _, seq := range seqs {
			// Rejections carry no sequence number.
			if seq == 0 {
				continue
			}

			broadcasts++
			if seq <= last {
				t.Fatalf("member %s received seq %d after %d", member, seq, last)
			}
			last = seq
		}
	}

	if broadcasts == 0 {
		t.Fatal("no broadcasts were delivered")
	}
}

func TestFinishAuction_AfterEndRoomLeavesNoState(t *testing.T) {
	f := setupCommerce(t)
	f.startAuction(t, 100, 10, 250*time.Millisecond)

	f.usecase.HandleIntent(context.Background(), f.showID, f.host, intent(t, events.TypeEndRoom, events.RoomEnded{
		RoomID: f.showID.String(),
	}))

	if _, ok := f.liveRepo.Get(f.showID); ok {
		t.Fatal("live state survived end-room")
	}

	// Let the auction-end timer fire against the removed show.
	time.Sleep(600 * time.Millisecond)

	if _, ok := f.liveRepo.Get(f.showID); ok {
		t.Error("a stale auction timer recreated live state after end-room")
	}
}
