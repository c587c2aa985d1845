// Package store is the embedded authoritative category store used in
// dev/simulation mode. Mutations produce the same change notifications
// a database change stream would, so the rest of the pipeline is
// identical in both modes.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/recyclemart/stocksync/internal/model"
	"github.com/recyclemart/stocksync/internal/watch"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrExists   = errors.New("store: already exists")
	ErrNegative = errors.New("store: quantity must be >= 0")
	ErrClosed   = errors.New("store: closed")
)

// Store holds categories and fans mutation notifications out to open
// change feeds.
type Store struct {
	mu     sync.Mutex
	cats   map[string]model.Category
	order  []string
	feeds  map[*feedStream]struct{}
	closed bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		cats:  make(map[string]model.Category),
		feeds: make(map[*feedStream]struct{}),
	}
}

// CreateCategory provisions a category and notifies watchers with an
// insert.
func (s *Store) CreateCategory(cat model.Category) error {
	if cat.ID == "" {
		return fmt.Errorf("store: category id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.cats[cat.ID]; ok {
		return ErrExists
	}
	s.cats[cat.ID] = cloneCategory(cat)
	s.order = append(s.order, cat.ID)
	after := cloneCategory(cat)
	s.notifyLocked(watch.Notification{
		Op:         watch.OpInsert,
		CategoryID: cat.ID,
		After:      &after,
		At:         time.Now().UTC(),
	})
	return nil
}

// SetQuantity sets one item's quantity and notifies watchers with a
// quantity-path update. Writes that would take the quantity negative
// are rejected here, upstream of the pipeline.
func (s *Store) SetQuantity(categoryID, itemID string, qty float64) error {
	if qty < 0 {
		return ErrNegative
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cat, ok := s.cats[categoryID]
	if !ok {
		return ErrNotFound
	}
	idx := -1
	for i, item := range cat.Items {
		if item.ItemID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	before := cloneCategory(cat)
	cat.Items[idx].Quantity = qty
	s.cats[categoryID] = cat
	after := cloneCategory(cat)
	s.notifyLocked(watch.Notification{
		Op:         watch.OpUpdate,
		CategoryID: categoryID,
		Before:     &before,
		After:      &after,
		UpdatedFields: map[string]any{
			"items." + strconv.Itoa(idx) + ".quantity": qty,
		},
		At: time.Now().UTC(),
	})
	return nil
}

// AddItem appends an item to a category and notifies watchers with a
// whole-array update, the same shape a database push produces.
func (s *Store) AddItem(categoryID string, item model.StockRecord) error {
	if item.ItemID == "" {
		return fmt.Errorf("store: item id required")
	}
	if item.Quantity < 0 {
		return ErrNegative
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cat, ok := s.cats[categoryID]
	if !ok {
		return ErrNotFound
	}
	for _, it := range cat.Items {
		if it.ItemID == item.ItemID {
			return ErrExists
		}
	}
	before := cloneCategory(cat)
	cat.Items = append(cat.Items, item)
	s.cats[categoryID] = cat
	after := cloneCategory(cat)
	s.notifyLocked(watch.Notification{
		Op:         watch.OpUpdate,
		CategoryID: categoryID,
		Before:     &before,
		After:      &after,
		UpdatedFields: map[string]any{
			"items." + strconv.Itoa(len(after.Items)-1): item,
		},
		At: time.Now().UTC(),
	})
	return nil
}

// RemoveItem deletes an item from a category and notifies watchers with
// a whole-array update.
func (s *Store) RemoveItem(categoryID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cat, ok := s.cats[categoryID]
	if !ok {
		return ErrNotFound
	}
	idx := -1
	for i, item := range cat.Items {
		if item.ItemID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	before := cloneCategory(cat)
	cat.Items = append(cat.Items[:idx], cat.Items[idx+1:]...)
	s.cats[categoryID] = cat
	after := cloneCategory(cat)
	s.notifyLocked(watch.Notification{
		Op:            watch.OpUpdate,
		CategoryID:    categoryID,
		Before:        &before,
		After:         &after,
		UpdatedFields: map[string]any{"items": after.Items},
		At:            time.Now().UTC(),
	})
	return nil
}

// DeleteCategory removes a category (items cascade) and notifies
// watchers with a delete.
func (s *Store) DeleteCategory(categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cat, ok := s.cats[categoryID]
	if !ok {
		return ErrNotFound
	}
	before := cloneCategory(cat)
	delete(s.cats, categoryID)
	for i, id := range s.order {
		if id == categoryID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.notifyLocked(watch.Notification{
		Op:         watch.OpDelete,
		CategoryID: categoryID,
		Before:     &before,
		At:         time.Now().UTC(),
	})
	return nil
}

// Get returns a copy of one category.
func (s *Store) Get(categoryID string) (model.Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := s.cats[categoryID]
	if !ok {
		return model.Category{}, false
	}
	return cloneCategory(cat), true
}

// ListCategories returns all categories in creation order. It is the
// snapshot read backing full-state events.
func (s *Store) ListCategories(ctx context.Context) ([]model.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Category, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneCategory(s.cats[id]))
	}
	return out, nil
}

// Close shuts every open change feed down cleanly.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for f := range s.feeds {
		close(f.ch)
		delete(s.feeds, f)
	}
}

func (s *Store) notifyLocked(n watch.Notification) {
	for f := range s.feeds {
		select {
		case f.ch <- n:
		default:
			// Slow feed: drop rather than block the write path. The
			// watcher catches up through the next full-state snapshot.
		}
	}
}

func cloneCategory(cat model.Category) model.Category {
	out := cat
	out.Items = make([]model.StockRecord, len(cat.Items))
	copy(out.Items, cat.Items)
	return out
}
