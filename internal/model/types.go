// Package model defines domain types used by the stock sync pipeline.
package model

import (
	"encoding/json"
	"time"
)

// Unit describes how an item's quantity is measured.
type Unit string

const (
	UnitByWeight Unit = "byWeight"
	UnitByPiece  Unit = "byPiece"
)

// StockRecord is one sellable item's current quantity.
//
// Quantity is fractional for by-weight goods and must stay >= 0 at rest;
// the pipeline only observes quantities, the write path enforces the floor.
type StockRecord struct {
	ItemID     string  `json:"item_id" bson:"itemId"`
	CategoryID string  `json:"category_id,omitempty" bson:"-"`
	Quantity   float64 `json:"quantity" bson:"quantity"`
	Unit       Unit    `json:"measurement_unit" bson:"measurementUnit"`
	Name       Name    `json:"name" bson:"name"`
}

// Category is the unit of storage watched by the pipeline: inserts and
// deletes happen at category granularity, quantity mutations at the
// items.N.quantity path inside it.
type Category struct {
	ID    string        `json:"category_id" bson:"_id"`
	Name  Name          `json:"category_name" bson:"name"`
	Items []StockRecord `json:"items" bson:"items"`
}

// Item returns the item at index idx, or false when out of range.
func (c Category) Item(idx int) (StockRecord, bool) {
	if idx < 0 || idx >= len(c.Items) {
		return StockRecord{}, false
	}
	return c.Items[idx], true
}

// EventKind classifies a StockChangeEvent.
type EventKind string

const (
	KindUpdate          EventKind = "update"
	KindCategoryUpdated EventKind = "category-updated"
	KindCategoryAdded   EventKind = "category-added"
	KindCategoryDeleted EventKind = "category-deleted"
	KindFullState       EventKind = "full-state"
)

// ItemChange is one item entry inside a StockChangeEvent.
//
// PreviousQuantity is nil when the before-image was unavailable (unknown,
// not zero). ChangeAmount is Quantity-PreviousQuantity when the previous
// quantity is known, zero otherwise.
type ItemChange struct {
	ItemID           string   `json:"item_id"`
	Quantity         float64  `json:"quantity"`
	PreviousQuantity *float64 `json:"previous_quantity,omitempty"`
	ChangeAmount     *float64 `json:"change_amount,omitempty"`
	Name             Name     `json:"name"`
}

// StockChangeEvent is the normalized message produced by the change watcher
// and delivered, throttled, to subscribed clients.
type StockChangeEvent struct {
	Kind         EventKind    `json:"kind"`
	CategoryID   string       `json:"category_id"`
	CategoryName Name         `json:"category_name,omitzero"`
	Items        []ItemChange `json:"items,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
	TotalItems   int          `json:"total_items"`
}

// FullState is a point-in-time snapshot of every category.
type FullState struct {
	Categories      []Category `json:"categories"`
	Timestamp       time.Time  `json:"timestamp"`
	TotalCategories int        `json:"total_categories"`
	TotalItems      int        `json:"total_items"`
}

// NewFullState builds a snapshot message from a category listing.
func NewFullState(cats []Category, at time.Time) FullState {
	total := 0
	for _, c := range cats {
		total += len(c.Items)
	}
	return FullState{Categories: cats, Timestamp: at, TotalCategories: len(cats), TotalItems: total}
}

// Wire event names exchanged over the socket.
const (
	EventStockUpdated    = "stock:updated"
	EventCategoryUpdated = "stock:category-updated"
	EventCategoryAdded   = "stock:category-added"
	EventCategoryDeleted = "stock:category-deleted"
	EventFullState       = "stock:full-state"
	EventItem            = "stock:item" // legacy single-item consumers

	MsgSubscribe   = "stock:subscribe"
	MsgUnsubscribe = "stock:unsubscribe"
)

// Envelope frames every JSON payload on the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into a framed message.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// ItemEvent is the legacy single-item quantity update payload.
type ItemEvent struct {
	ItemID     string  `json:"item_id"`
	CategoryID string  `json:"category_id"`
	Quantity   float64 `json:"quantity"`
}

// CategoryDeleted is the payload of a stock:category-deleted event.
type CategoryDeleted struct {
	CategoryID string    `json:"category_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// WireEvent maps an event kind to its socket event name.
func (k EventKind) WireEvent() string {
	switch k {
	case KindUpdate:
		return EventStockUpdated
	case KindCategoryUpdated:
		return EventCategoryUpdated
	case KindCategoryAdded:
		return EventCategoryAdded
	case KindCategoryDeleted:
		return EventCategoryDeleted
	case KindFullState:
		return EventFullState
	}
	return EventStockUpdated
}
