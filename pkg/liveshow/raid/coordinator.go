// Package raid coordinates host-initiated viewer redirects. A raid is
// only committed after a fresh live-status check of the target; the
// candidate list used for selection is interval-refreshed and can be
// arbitrarily stale.
package raid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/overbid/liveshow/pkg/liveshow/rest"
)

// ErrStaleTarget means the target show was no longer live at confirmation
// time. Recoverable: the UI shows a dismissible notice and the candidate
// list is invalidated for re-fetch.
var ErrStaleTarget = errors.New("raid: target show is no longer live")

// ErrNoCandidate means ConfirmRaid was called without a selected target.
var ErrNoCandidate = errors.New("raid: no target selected")

// RallyEmitter is the outbound rally intent; satisfied by the commerce
// channel.
type RallyEmitter interface {
	Rally(fromRoom, toRoom, hostName, hostID string, viewerCount int) error
}

// confirmDelay separates closing the selection UI from opening the
// confirmation UI so the two modal transitions never overlap.
const confirmDelay = 300 * time.Millisecond

// cacheTTL is how long the candidate list is served without a re-fetch.
const cacheTTL = 30 * time.Second

type Coordinator struct {
	restClient rest.Client
	emitter    RallyEmitter

	mu        sync.Mutex
	candidate *rest.Show
	cached    []rest.Show
	cachedAt  time.Time
}

func NewCoordinator(restClient rest.Client, emitter RallyEmitter) *Coordinator {
	return &Coordinator{
		restClient: restClient,
		emitter:    emitter,
	}
}

// Candidates returns the live-show list, re-fetching only when the cached
// copy has expired or was invalidated.
func (c *Coordinator) Candidates(ctx context.Context) ([]rest.Show, error) {
	c.mu.Lock()
	if c.cached != nil && time.Since(c.cachedAt) < cacheTTL {
		shows := c.cached
		c.mu.Unlock()
		return shows, nil
	}
	c.mu.Unlock()

	shows, err := c.restClient.ListLiveShows(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh candidates: %w", err)
	}

	c.mu.Lock()
	c.cached = shows
	c.cachedAt = time.Now()
	c.mu.Unlock()

	return shows, nil
}

// Invalidate drops the cached candidate list so the next Candidates call
// reflects reality.
func (c *Coordinator) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cached = nil
	c.cachedAt = time.Time{}
}

// SelectTarget stores the candidate and schedules onReady after a short
// fixed delay, keeping the selection and confirmation UI transitions from
// overlapping. A UI sequencing concern, not a correctness one.
func (c *Coordinator) SelectTarget(show rest.Show, onReady func()) {
	c.mu.Lock()
	c.candidate = &show
	c.mu.Unlock()

	if onReady != nil {
		time.AfterFunc(confirmDelay, onReady)
	}
}

// Candidate returns the currently selected target, if any.
func (c *Coordinator) Candidate() (rest.Show, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.candidate == nil {
		return rest.Show{}, false
	}

	return *c.candidate, true
}

// ClearCandidate drops the selected target.
func (c *Coordinator) ClearCandidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.candidate = nil
}

// ConfirmRaid re-validates the target with a fresh fetch immediately
// before emitting the rally. viewerCount is the caller's snapshot at
// confirmation time, not at selection time; its minor staleness window is
// accepted.
func (c *Coordinator) ConfirmRaid(ctx context.Context, fromRoom, hostName, hostID string, viewerCount int) error {
	c.mu.Lock()
	candidate := c.candidate
	c.mu.Unlock()

	if candidate == nil {
		return ErrNoCandidate
	}

	fresh, err := c.restClient.GetShow(ctx, candidate.ID)
	if err != nil {
		return fmt.Errorf("re-validate raid target: %w", err)
	}

	if !fresh.Live() {
		slog.Info("raid target no longer live",
			slog.String("target_show", candidate.ID),
			slog.Bool("started", fresh.Started),
			slog.Bool("ended", fresh.Ended),
		)

		c.ClearCandidate()
		c.Invalidate()

		return ErrStaleTarget
	}

	if err := c.emitter.Rally(fromRoom, candidate.ID, hostName, hostID, viewerCount); err != nil {
		return fmt.Errorf("emit rally: %w", err)
	}

	c.ClearCandidate()

	return nil
}
