package channel_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/overbid/liveshow/pkg/liveshow/channel"
	"github.com/overbid/liveshow/pkg/liveshow/events"
)

// fakeTransport feeds scripted envelopes to the read loop and records
// everything sent.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []events.Envelope
	inbox  chan events.Envelope
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan events.Envelope, 16)}
}

func (f *fakeTransport) Send(env events.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errors.New("transport closed")
	}
	f.sent = append(f.sent, env)

	return nil
}

func (f *fakeTransport) Receive() (events.Envelope, error) {
	env, ok := <-f.inbox
	if !ok {
		return events.Envelope{}, errors.New("transport closed")
	}

	return env, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.inbox)
	}

	return nil
}

func (f *fakeTransport) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	types := make([]string, len(f.sent))
	for i, env := range f.sent {
		types[i] = env.Type
	}

	return types
}

func push(t *testing.T, tr *fakeTransport, eventType string, payload any) {
	t.Helper()

	env, err := events.Marshal(eventType, payload)
	if err != nil {
		t.Fatalf("marshal %s: %v", eventType, err)
	}
	tr.inbox <- env
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within a second")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEmitBeforeStart(t *testing.T) {
	ch := channel.New(newFakeTransport())

	if err := ch.PlaceBid("auction-1", 100, "me", "Me"); !errors.Is(err, channel.ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestDispatch_TypedHandler(t *testing.T) {
	tr := newFakeTransport()
	ch := channel.New(tr)
	ch.Start()
	defer ch.Close()

	var mu sync.Mutex
	var got []events.PlaceBid

	ch.Subscribe(channel.Handlers{
		OnBidUpdated: func(p events.PlaceBid) {
			mu.Lock()
			got = append(got, p)
			mu.Unlock()
		},
	})

	push(t, tr, events.TypeBidUpdated, events.PlaceBid{AuctionID: "auction-1", Amount: 150, BidderID: "a"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if got[0].Amount != 150 || got[0].AuctionID != "auction-1" {
		t.Errorf("unexpected payload: %+v", got[0])
	}
}

func TestUnsubscribe_RemovesOnlyOwnBindings(t *testing.T) {
	tr := newFakeTransport()
	ch := channel.New(tr)
	ch.Start()
	defer ch.Close()

	var mu sync.Mutex
	var firstCount, secondCount int

	unsubFirst := ch.Subscribe(channel.Handlers{
		OnRoomEnded: func(events.RoomEnded) {
			mu.Lock()
			firstCount++
			mu.Unlock()
		},
	})
	ch.Subscribe(channel.Handlers{
		OnRoomEnded: func(events.RoomEnded) {
			mu.Lock()
			secondCount++
			mu.Unlock()
		},
	})

	push(t, tr, events.TypeRoomEnded, events.RoomEnded{RoomID: "show-1"})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstCount == 1 && secondCount == 1
	})

	unsubFirst()

	push(t, tr, events.TypeRoomEnded, events.RoomEnded{RoomID: "show-1"})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return secondCount == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if firstCount != 1 {
		t.Errorf("unsubscribed handler still called: %d", firstCount)
	}
}

func TestDispatch_OnRawSeesEverything(t *testing.T) {
	tr := newFakeTransport()
	ch := channel.New(tr)
	ch.Start()
	defer ch.Close()

	var mu sync.Mutex
	var raw []string

	ch.Subscribe(channel.Handlers{
		OnRaw: func(env events.Envelope) {
			mu.Lock()
			raw = append(raw, env.Type)
			mu.Unlock()
		},
	})

	push(t, tr, events.TypeRoomEnded, events.RoomEnded{RoomID: "show-1"})
	push(t, tr, "some-unknown-type", struct{}{})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(raw) == 2
	})
}

func TestEmit_SendsIntent(t *testing.T) {
	tr := newFakeTransport()
	ch := channel.New(tr)
	ch.Start()
	defer ch.Close()

	if err := ch.PlaceBid("auction-1", 150, "me", "Me"); err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	if err := ch.Rally("show-1", "show-2", "Host", "host-1", 42); err != nil {
		t.Fatalf("Rally failed: %v", err)
	}

	types := tr.sentTypes()
	if len(types) != 2 || types[0] != events.TypePlaceBid || types[1] != events.TypeRally {
		t.Errorf("unexpected sent intents: %v", types)
	}
}

func TestDone_ClosedWhenTransportFails(t *testing.T) {
	tr := newFakeTransport()
	ch := channel.New(tr)
	ch.Start()

	ch.Close()

	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after transport teardown")
	}
}
