// Package throttle rate-limits and coalesces outgoing stock events so
// bursts of store writes never flood connected clients.
package throttle

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/recyclemart/stocksync/internal/model"
)

// ChannelStockUpdates is the logical channel carrying broadcast stock
// events. Per-connection snapshot channels are keyed separately by the
// SnapshotLimiter.
const ChannelStockUpdates = "stock-updates"

// EmitFunc delivers an accepted event downstream (the socket gateway).
type EmitFunc func(channel string, ev model.StockChangeEvent)

type pending struct {
	timer *time.Timer
	ev    model.StockChangeEvent
}

// Throttler holds one last-emission marker per logical channel. A submit
// inside the throttle window replaces the single pending payload
// (last-write-wins) rather than queuing timers, so the emission rate per
// channel is bounded by the window and at most one timer is live per
// channel at any time.
type Throttler struct {
	window time.Duration
	emit   EmitFunc

	mu      sync.Mutex
	last    map[string]time.Time
	pending map[string]*pending
	stopped bool

	emitted   atomic.Uint64
	coalesced atomic.Uint64
}

// New creates a Throttler emitting through emit. A non-positive window
// defaults to 500ms.
func New(window time.Duration, emit EmitFunc) *Throttler {
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	return &Throttler{
		window:  window,
		emit:    emit,
		last:    make(map[string]time.Time),
		pending: make(map[string]*pending),
	}
}

// Submit offers an event to a channel. It emits immediately when the
// window has elapsed since the channel's last emission, otherwise it
// schedules (or replaces) the channel's single deferred emission.
func (t *Throttler) Submit(channel string, ev model.StockChangeEvent) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if p, ok := t.pending[channel]; ok {
		p.ev = ev
		t.coalesced.Add(1)
		t.mu.Unlock()
		return
	}
	elapsed := time.Since(t.last[channel])
	if elapsed >= t.window {
		t.last[channel] = time.Now()
		t.mu.Unlock()
		t.emitted.Add(1)
		t.emit(channel, ev)
		return
	}
	p := &pending{ev: ev}
	p.timer = time.AfterFunc(t.window-elapsed, func() { t.fire(channel) })
	t.pending[channel] = p
	t.mu.Unlock()
}

// SubmitStock submits to the broadcast stock channel; it is the
// watcher's sink.
func (t *Throttler) SubmitStock(ev model.StockChangeEvent) {
	t.Submit(ChannelStockUpdates, ev)
}

func (t *Throttler) fire(channel string) {
	t.mu.Lock()
	p, ok := t.pending[channel]
	if !ok || t.stopped {
		t.mu.Unlock()
		return
	}
	delete(t.pending, channel)
	t.last[channel] = time.Now()
	ev := p.ev
	t.mu.Unlock()
	t.emitted.Add(1)
	t.emit(channel, ev)
}

// Stop cancels all pending timers and drops further submissions.
func (t *Throttler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for ch, p := range t.pending {
		p.timer.Stop()
		delete(t.pending, ch)
	}
}

// Metrics returns emission counters for the debug endpoint.
func (t *Throttler) Metrics() (emitted, coalesced uint64, pendingChannels int) {
	emitted = t.emitted.Load()
	coalesced = t.coalesced.Load()
	t.mu.Lock()
	pendingChannels = len(t.pending)
	t.mu.Unlock()
	return emitted, coalesced, pendingChannels
}
