package store

import (
	"context"

	"github.com/recyclemart/stocksync/internal/watch"
)

// feedStream delivers this store's mutation notifications to one
// watcher. It satisfies watch.Stream.
type feedStream struct {
	s  *Store
	ch chan watch.Notification
}

// Open subscribes a new change feed. The Store satisfies watch.Source,
// so the watcher runs identically against the embedded store and a
// database change stream.
func (s *Store) Open(ctx context.Context) (watch.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	f := &feedStream{s: s, ch: make(chan watch.Notification, 256)}
	s.feeds[f] = struct{}{}
	return f, nil
}

func (f *feedStream) Next(ctx context.Context) (watch.Notification, error) {
	select {
	case <-ctx.Done():
		return watch.Notification{}, ctx.Err()
	case n, ok := <-f.ch:
		if !ok {
			return watch.Notification{}, watch.ErrClosed
		}
		return n, nil
	}
}

func (f *feedStream) Close() {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.feeds[f]; ok {
		delete(f.s.feeds, f)
		close(f.ch)
	}
}
