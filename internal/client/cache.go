// Package client holds the device-side half of the pipeline: the local
// stock cache the UI and cart validator read, and the socket connector
// that keeps it synchronized.
package client

import (
	"sync"
	"time"

	"github.com/recyclemart/stocksync/internal/model"
	"github.com/recyclemart/stocksync/internal/obs"
)

// Cache mirrors the last known quantity per item. Entries are guarded
// by a per-item last-applied timestamp so stale, reordered deliveries
// never overwrite newer data; a full-state snapshot always wins and
// resets the guards. One shared instance per client process, no
// persistence across restarts.
type Cache struct {
	mu          sync.Mutex
	qty         map[string]float64
	names       map[string]model.Name
	applied     map[string]time.Time
	lastUpdated time.Time

	// onCategoryDeleted lets a consumer layer purge-on-delete behavior
	// on top; the cache itself never purges on category deletion.
	onCategoryDeleted func(categoryID string)
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		qty:     make(map[string]float64),
		names:   make(map[string]model.Name),
		applied: make(map[string]time.Time),
	}
}

// OnCategoryDeleted registers a hook invoked for category-deleted
// events.
func (c *Cache) OnCategoryDeleted(fn func(categoryID string)) {
	c.mu.Lock()
	c.onCategoryDeleted = fn
	c.mu.Unlock()
}

// ApplyEvent merges an incremental event. It returns the number of item
// entries applied; entries older than (or equal to) the item's last
// applied event are silently discarded as expected network reordering.
func (c *Cache) ApplyEvent(ev model.StockChangeEvent) int {
	if ev.Kind == model.KindCategoryDeleted {
		c.mu.Lock()
		hook := c.onCategoryDeleted
		c.mu.Unlock()
		if hook != nil {
			hook(ev.CategoryID)
		}
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	applied := 0
	for _, item := range ev.Items {
		if last, ok := c.applied[item.ItemID]; ok && !ev.Timestamp.After(last) {
			continue
		}
		c.qty[item.ItemID] = item.Quantity
		if !item.Name.IsZero() {
			c.names[item.ItemID] = item.Name
		}
		c.applied[item.ItemID] = ev.Timestamp
		applied++
	}
	if applied > 0 && ev.Timestamp.After(c.lastUpdated) {
		c.lastUpdated = ev.Timestamp
	}
	return applied
}

// ApplyFullState replaces the whole cache with an authoritative
// snapshot, regardless of the per-item ordering guards.
func (c *Cache) ApplyFullState(fs model.FullState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qty = make(map[string]float64)
	c.names = make(map[string]model.Name)
	c.applied = make(map[string]time.Time)
	for _, cat := range fs.Categories {
		for _, item := range cat.Items {
			c.qty[item.ItemID] = item.Quantity
			c.names[item.ItemID] = item.Name
			c.applied[item.ItemID] = fs.Timestamp
		}
	}
	c.lastUpdated = fs.Timestamp
	obs.Logger.Info("cache_full_state_applied",
		"total_categories", fs.TotalCategories, "total_items", fs.TotalItems)
}

// GetQuantity returns the cached quantity, or fallback when the item is
// unknown. Never blocks.
func (c *Cache) GetQuantity(itemID string, fallback float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q, ok := c.qty[itemID]; ok {
		return q
	}
	return fallback
}

// IsInStock reports whether the item has any known quantity.
func (c *Cache) IsInStock(itemID string) bool {
	return c.GetQuantity(itemID, 0) > 0
}

// Name returns the last known display name for an item.
func (c *Cache) Name(itemID string) model.Name {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.names[itemID]
}

// LastUpdated reports when any event was last applied.
func (c *Cache) LastUpdated() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdated
}

// Len reports the number of cached items.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.qty)
}
