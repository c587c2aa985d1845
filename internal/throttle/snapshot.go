package throttle

import (
	"sync"
	"time"
)

// SnapshotLimiter enforces a minimum interval between full-state
// snapshots to the same connection, so a reconnect storm can't re-query
// the store repeatedly.
type SnapshotLimiter struct {
	min time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewSnapshotLimiter creates a limiter. A non-positive interval
// defaults to 1s.
func NewSnapshotLimiter(min time.Duration) *SnapshotLimiter {
	if min <= 0 {
		min = time.Second
	}
	return &SnapshotLimiter{min: min, last: make(map[string]time.Time)}
}

// Allow reports whether a snapshot may be sent to the connection now,
// recording the emission time when it may.
func (l *SnapshotLimiter) Allow(connID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if last, ok := l.last[connID]; ok && now.Sub(last) < l.min {
		return false
	}
	l.last[connID] = now
	return true
}

// Forget drops a connection's marker on disconnect.
func (l *SnapshotLimiter) Forget(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.last, connID)
}
