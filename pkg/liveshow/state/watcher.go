package state

import (
	"sync"
	"time"
)

// Clock returns wall-clock now; swapped out in tests.
type Clock func() time.Time

// Watcher re-derives time-dependent state once per second. It holds no
// countdown of its own: on every tick it hands the callback the current
// wall-clock time and the callback recomputes time-left and terminal
// status from scratch.
type Watcher struct {
	interval time.Duration
	clock    Clock
	onTick   func(now time.Time)

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
}

func NewWatcher(onTick func(now time.Time)) *Watcher {
	return &Watcher{
		interval: time.Second,
		clock:    time.Now,
		onTick:   onTick,
		stop:     make(chan struct{}),
	}
}

// NewWatcherWithClock is the test constructor.
func NewWatcherWithClock(interval time.Duration, clock Clock, onTick func(now time.Time)) *Watcher {
	return &Watcher{
		interval: interval,
		clock:    clock,
		onTick:   onTick,
		stop:     make(chan struct{}),
	}
}

func (w *Watcher) Start() {
	go w.run()
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			stopped := w.stopped
			w.mu.Unlock()

			if stopped {
				return
			}

			w.onTick(w.clock())
		case <-w.stop:
			return
		}
	}
}

// Stop halts the tick loop. After Stop returns, no further onTick calls
// are made; it is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	w.stopped = true
	close(w.stop)
}
