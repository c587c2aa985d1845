package watch

import (
	"context"
	"errors"
	"time"

	"github.com/recyclemart/stocksync/internal/obs"
)

// Watcher consumes a store mutation stream, classifies each change, and
// hands normalized events to the sink. Stream errors trigger a fixed
// backoff and a reopen from the current point; missed mutations are not
// replayed (best-effort, at-most-once).
type Watcher struct {
	source  Source
	sink    SinkFunc
	backoff time.Duration

	// OnReconnect, when set, runs after a stream is re-established
	// following an error. The gateway uses it to broadcast a
	// reconciliation full-state snapshot bounding the staleness window.
	OnReconnect func(ctx context.Context)
}

// New constructs a Watcher. A non-positive backoff defaults to 5s.
func New(source Source, sink SinkFunc, backoff time.Duration) *Watcher {
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &Watcher{source: source, sink: sink, backoff: backoff}
}

// Run blocks consuming the stream until the context is canceled or the
// stream closes cleanly. Infrastructure errors never terminate Run.
func (w *Watcher) Run(ctx context.Context) error {
	reconnecting := false
	for {
		stream, err := w.source.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			obs.Logger.Error("watch_open_error", "error", err, "backoff", w.backoff.String())
			if !sleep(ctx, w.backoff) {
				return ctx.Err()
			}
			reconnecting = true
			continue
		}
		if reconnecting {
			obs.Logger.Info("watch_stream_reestablished")
			if w.OnReconnect != nil {
				w.OnReconnect(ctx)
			}
			reconnecting = false
		}

		err = w.consume(ctx, stream)
		stream.Close()
		switch {
		case err == nil || errors.Is(err, ErrClosed):
			// Clean close: log and exit without auto-restart.
			obs.Logger.Info("watch_stream_closed")
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			obs.Logger.Error("watch_stream_error", "error", err, "backoff", w.backoff.String())
			if !sleep(ctx, w.backoff) {
				return ctx.Err()
			}
			reconnecting = true
		}
	}
}

func (w *Watcher) consume(ctx context.Context, stream Stream) error {
	for {
		n, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		ev, ok := Classify(n)
		if !ok {
			continue
		}
		obs.Logger.Info("watch_event",
			"kind", string(ev.Kind),
			"category_id", ev.CategoryID,
			"total_items", ev.TotalItems,
		)
		w.sink(ev)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
