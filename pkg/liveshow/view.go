// Package liveshow composes the per-show-view coordination layer: one
// media session, one room-scoped commerce channel subscription, and the
// derived auction/giveaway state, torn down together.
package liveshow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/overbid/liveshow/pkg/liveshow/channel"
	"github.com/overbid/liveshow/pkg/liveshow/events"
	"github.com/overbid/liveshow/pkg/liveshow/session"
	"github.com/overbid/liveshow/pkg/liveshow/state"
)

// View owns the live state of one mounted show. All entities it derives
// are disposed on Close; there is no cross-show cache.
type View struct {
	showID  string
	manager *session.Manager
	channel *channel.Channel

	onChange func(state.ShowState)

	mu          sync.Mutex
	st          state.ShowState
	watcher     *state.Watcher
	unsubscribe func()
	opened      bool
}

// NewView wires a show view over an established commerce channel and a
// session manager. onChange fires after every state transition and every
// clock tick; it may be nil.
func NewView(showID string, manager *session.Manager, ch *channel.Channel, onChange func(state.ShowState)) *View {
	return &View{
		showID:   showID,
		manager:  manager,
		channel:  ch,
		onChange: onChange,
		st:       state.NewShowState(showID),
	}
}

// Open connects the media session, binds the commerce event handlers, and
// starts the once-per-second clock tick. Duplicate Open calls are no-ops.
func (v *View) Open(ctx context.Context, cfg session.Config) error {
	v.mu.Lock()
	if v.opened {
		v.mu.Unlock()
		return nil
	}
	v.opened = true
	v.mu.Unlock()

	if err := v.manager.Connect(ctx, cfg); err != nil {
		return fmt.Errorf("open show view: %w", err)
	}

	unsubscribe := v.channel.Subscribe(channel.Handlers{
		OnRaw: v.apply,
	})

	watcher := state.NewWatcher(func(now time.Time) {
		v.notify()
	})
	watcher.Start()

	v.mu.Lock()
	v.unsubscribe = unsubscribe
	v.watcher = watcher
	v.mu.Unlock()

	if err := v.channel.UserConnected(cfg.ViewerID, cfg.ViewerName); err != nil {
		return fmt.Errorf("announce viewer: %w", err)
	}

	return nil
}

func (v *View) apply(env events.Envelope) {
	v.mu.Lock()
	v.st = state.Apply(v.st, env)
	v.mu.Unlock()

	v.notify()
}

// PlaceBid records the optimistic local bid and emits the intent. The
// pending entry resolves on the next bid-updated or auction-error event.
func (v *View) PlaceBid(amount int64, bidderID, bidderName string) error {
	v.mu.Lock()
	auction := v.st.Auction
	if auction != nil {
		v.st = state.WithLocalBid(v.st, state.Bid{
			BidderID:   bidderID,
			BidderName: bidderName,
			Amount:     amount,
			Timestamp:  time.Now().UTC(),
		})
	}
	v.mu.Unlock()

	if auction == nil {
		return fmt.Errorf("place bid: no active auction")
	}

	v.notify()

	return v.channel.PlaceBid(auction.ID, amount, bidderID, bidderName)
}

// State returns the current derived show state.
func (v *View) State() state.ShowState {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.st
}

// Session exposes the connection state for capability gating in the UI.
func (v *View) Session() session.State {
	return v.manager.State()
}

func (v *View) notify() {
	if v.onChange == nil {
		return
	}

	v.mu.Lock()
	st := v.st
	v.mu.Unlock()

	v.onChange(st)
}

// Close stops the clock tick, removes the channel bindings, and releases
// the media session with its device handles. Leaving any of the three
// behind would leak a timer or hold the camera against the next show.
func (v *View) Close() {
	v.mu.Lock()
	watcher := v.watcher
	unsubscribe := v.unsubscribe
	v.watcher = nil
	v.unsubscribe = nil
	v.opened = false
	v.st = state.NewShowState(v.showID)
	v.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
	}

	if unsubscribe != nil {
		unsubscribe()
	}

	v.manager.Disconnect()
}
