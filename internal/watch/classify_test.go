package watch

import (
	"testing"
	"time"

	"github.com/recyclemart/stocksync/internal/model"
)

func cat(id string, quantities ...float64) *model.Category {
	c := &model.Category{ID: id, Name: model.PlainName("Metals")}
	for i, q := range quantities {
		c.Items = append(c.Items, model.StockRecord{
			ItemID:   id + "-item-" + string(rune('a'+i)),
			Quantity: q,
			Unit:     model.UnitByWeight,
			Name:     model.PlainName("Item " + string(rune('A'+i))),
		})
	}
	return c
}

func TestClassifyQuantityUpdate(t *testing.T) {
	before := cat("c1", 10, 4)
	after := cat("c1", 7, 4)
	ev, ok := Classify(Notification{
		Op:            OpUpdate,
		CategoryID:    "c1",
		Before:        before,
		After:         after,
		UpdatedFields: map[string]any{"items.0.quantity": 7.0},
		At:            time.Now(),
	})
	if !ok {
		t.Fatalf("expected event")
	}
	if ev.Kind != model.KindUpdate {
		t.Fatalf("kind: %s", ev.Kind)
	}
	if len(ev.Items) != 1 || ev.TotalItems != 1 {
		t.Fatalf("items: %+v", ev.Items)
	}
	ch := ev.Items[0]
	if ch.ItemID != after.Items[0].ItemID || ch.Quantity != 7 {
		t.Fatalf("unexpected: %+v", ch)
	}
	if ch.PreviousQuantity == nil || *ch.PreviousQuantity != 10 {
		t.Fatalf("previous: %v", ch.PreviousQuantity)
	}
	if ch.ChangeAmount == nil || *ch.ChangeAmount != -3 {
		t.Fatalf("delta: %v", ch.ChangeAmount)
	}
}

func TestClassifyMultipleQuantityPathsOrdered(t *testing.T) {
	before := cat("c1", 1, 2, 3)
	after := cat("c1", 5, 2, 9)
	ev, ok := Classify(Notification{
		Op:         OpUpdate,
		CategoryID: "c1",
		Before:     before,
		After:      after,
		UpdatedFields: map[string]any{
			"items.2.quantity": 9.0,
			"items.0.quantity": 5.0,
		},
	})
	if !ok || len(ev.Items) != 2 {
		t.Fatalf("expected 2 entries, got %+v", ev.Items)
	}
	if ev.Items[0].Quantity != 5 || ev.Items[1].Quantity != 9 {
		t.Fatalf("index order not kept: %+v", ev.Items)
	}
}

func TestClassifyMissingBeforeImageDegrades(t *testing.T) {
	after := cat("c1", 7)
	ev, ok := Classify(Notification{
		Op:            OpUpdate,
		CategoryID:    "c1",
		After:         after,
		UpdatedFields: map[string]any{"items.0.quantity": 7.0},
	})
	if !ok {
		t.Fatalf("availability must still be forwarded")
	}
	ch := ev.Items[0]
	if ch.Quantity != 7 {
		t.Fatalf("quantity: %v", ch.Quantity)
	}
	if ch.PreviousQuantity != nil {
		t.Fatalf("previous must be omitted when unknown, got %v", *ch.PreviousQuantity)
	}
	if ch.ChangeAmount == nil || *ch.ChangeAmount != 0 {
		t.Fatalf("delta must degrade to zero, got %v", ch.ChangeAmount)
	}
}

func TestClassifyArrayTouchEmitsFullReplacement(t *testing.T) {
	after := cat("c1", 3, 8)
	for _, fields := range []map[string]any{
		{"items": []any{}},
		{"items.1": map[string]any{"itemId": "new"}},
		{"items.1.name": "renamed", "items.0.quantity": 3.0},
	} {
		ev, ok := Classify(Notification{
			Op:            OpUpdate,
			CategoryID:    "c1",
			After:         after,
			UpdatedFields: fields,
		})
		if !ok {
			t.Fatalf("fields %v: expected event", fields)
		}
		if ev.Kind != model.KindCategoryUpdated {
			t.Fatalf("fields %v: kind %s", fields, ev.Kind)
		}
		if len(ev.Items) != 2 || ev.TotalItems != 2 {
			t.Fatalf("fields %v: full item list expected, got %+v", fields, ev.Items)
		}
	}
}

func TestClassifyRemovedItemsFieldIsArrayTouch(t *testing.T) {
	after := cat("c1", 3)
	ev, ok := Classify(Notification{
		Op:            OpUpdate,
		CategoryID:    "c1",
		After:         after,
		RemovedFields: []string{"items.1"},
	})
	if !ok || ev.Kind != model.KindCategoryUpdated {
		t.Fatalf("expected category-updated, got %+v ok=%v", ev, ok)
	}
}

func TestClassifyInsert(t *testing.T) {
	after := cat("c9", 1, 2, 3)
	ev, ok := Classify(Notification{Op: OpInsert, CategoryID: "c9", After: after})
	if !ok || ev.Kind != model.KindCategoryAdded {
		t.Fatalf("expected category-added")
	}
	if ev.TotalItems != 3 || len(ev.Items) != 3 {
		t.Fatalf("items: %+v", ev.Items)
	}
	if ev.CategoryName.Display() != "Metals" {
		t.Fatalf("category name: %q", ev.CategoryName.Display())
	}
}

func TestClassifyDeleteCarriesOnlyID(t *testing.T) {
	ev, ok := Classify(Notification{Op: OpDelete, CategoryID: "c3", Before: cat("c3", 1)})
	if !ok || ev.Kind != model.KindCategoryDeleted {
		t.Fatalf("expected category-deleted")
	}
	if ev.CategoryID != "c3" || len(ev.Items) != 0 {
		t.Fatalf("unexpected: %+v", ev)
	}
}

func TestClassifyIrrelevantUpdateDropped(t *testing.T) {
	_, ok := Classify(Notification{
		Op:            OpUpdate,
		CategoryID:    "c1",
		After:         cat("c1", 1),
		UpdatedFields: map[string]any{"name": "Renamed"},
	})
	if ok {
		t.Fatalf("non-items update must not produce an event")
	}
}

func TestClassifyQuantityIndexOutOfRange(t *testing.T) {
	_, ok := Classify(Notification{
		Op:            OpUpdate,
		CategoryID:    "c1",
		After:         cat("c1", 1),
		UpdatedFields: map[string]any{"items.5.quantity": 2.0},
	})
	if ok {
		t.Fatalf("unresolvable index must be dropped")
	}
}
