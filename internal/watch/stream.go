// Package watch observes the stock store's mutation stream and turns raw
// change notifications into normalized stock change events.
package watch

import (
	"context"
	"errors"
	"time"

	"github.com/recyclemart/stocksync/internal/model"
)

// OpType tags a raw mutation notification. Values match the store's
// change stream operation types.
type OpType string

const (
	OpInsert OpType = "insert"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// Notification is one raw mutation as reported by the store.
//
// Before and After are the document images around the mutation when the
// store provides them; UpdatedFields holds dotted field paths for update
// operations.
type Notification struct {
	Op            OpType
	CategoryID    string
	Before        *model.Category
	After         *model.Category
	UpdatedFields map[string]any
	RemovedFields []string
	At            time.Time
}

// ErrClosed is returned by Stream.Next after a clean stream shutdown,
// as opposed to an infrastructure error.
var ErrClosed = errors.New("watch: stream closed")

// Stream yields mutation notifications until it errors or closes.
type Stream interface {
	// Next blocks for the next notification. It returns ErrClosed after
	// a clean close and any other error on stream failure.
	Next(ctx context.Context) (Notification, error)
	Close()
}

// Source opens mutation streams against the authoritative store.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// SnapshotProvider is the store's point-in-time bulk read, used for
// full-state snapshots. The pipeline never writes to the store.
type SnapshotProvider interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
}

// SinkFunc receives each normalized event the watcher produces. The
// watcher never emits to clients directly; the sink is the throttler.
type SinkFunc func(ev model.StockChangeEvent)
