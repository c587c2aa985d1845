package watch

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/recyclemart/stocksync/internal/model"
	"github.com/recyclemart/stocksync/internal/obs"
)

var quantityPath = regexp.MustCompile(`^items\.(\d+)\.quantity$`)

// Classify translates a raw notification into a normalized event.
// It returns false when the notification carries nothing forwardable.
func Classify(n Notification) (model.StockChangeEvent, bool) {
	at := n.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	switch n.Op {
	case OpInsert:
		if n.After == nil {
			obs.Logger.Warn("watch_insert_missing_document", "category_id", n.CategoryID)
			return model.StockChangeEvent{}, false
		}
		return categoryEvent(model.KindCategoryAdded, *n.After, at), true
	case OpDelete:
		return model.StockChangeEvent{
			Kind:       model.KindCategoryDeleted,
			CategoryID: n.CategoryID,
			Timestamp:  at,
		}, true
	case OpUpdate:
		return classifyUpdate(n, at)
	}
	obs.Logger.Warn("watch_unknown_operation", "op", string(n.Op), "category_id", n.CategoryID)
	return model.StockChangeEvent{}, false
}

func classifyUpdate(n Notification, at time.Time) (model.StockChangeEvent, bool) {
	indexes, arrayTouched := scanFields(n)
	if arrayTouched {
		// Item added or removed: clients reconcile against a full
		// replacement of the category's item list.
		if n.After == nil {
			obs.Logger.Warn("watch_array_update_missing_document", "category_id", n.CategoryID)
			return model.StockChangeEvent{}, false
		}
		return categoryEvent(model.KindCategoryUpdated, *n.After, at), true
	}
	if len(indexes) == 0 {
		return model.StockChangeEvent{}, false
	}
	sort.Ints(indexes)

	ev := model.StockChangeEvent{
		Kind:       model.KindUpdate,
		CategoryID: n.CategoryID,
		Timestamp:  at,
	}
	if n.After != nil {
		ev.CategoryName = n.After.Name
	} else if n.Before != nil {
		ev.CategoryName = n.Before.Name
	}
	for _, idx := range indexes {
		ch, ok := itemChange(n, idx)
		if !ok {
			continue
		}
		ev.Items = append(ev.Items, ch)
	}
	if len(ev.Items) == 0 {
		return model.StockChangeEvent{}, false
	}
	ev.TotalItems = len(ev.Items)
	return ev, true
}

// scanFields splits an update's changed paths into per-item quantity
// indexes and a whole-array touch. Any non-quantity path under items,
// or a removed items path, means the item list itself changed.
func scanFields(n Notification) (indexes []int, arrayTouched bool) {
	for path := range n.UpdatedFields {
		if m := quantityPath.FindStringSubmatch(path); m != nil {
			idx, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			indexes = append(indexes, idx)
			continue
		}
		if path == "items" || strings.HasPrefix(path, "items.") {
			arrayTouched = true
		}
	}
	for _, path := range n.RemovedFields {
		if path == "items" || strings.HasPrefix(path, "items.") {
			arrayTouched = true
		}
	}
	if arrayTouched {
		return nil, true
	}
	return indexes, false
}

// itemChange resolves one quantity-path update against the document
// images. A missing before-image degrades to an unknown previous
// quantity with a zero delta; the new quantity is still forwarded.
func itemChange(n Notification, idx int) (model.ItemChange, bool) {
	var ch model.ItemChange
	if n.After != nil {
		item, ok := n.After.Item(idx)
		if !ok {
			obs.Logger.Warn("watch_quantity_index_out_of_range",
				"category_id", n.CategoryID, "index", idx, "items", len(n.After.Items))
			return model.ItemChange{}, false
		}
		ch.ItemID = item.ItemID
		ch.Quantity = item.Quantity
		ch.Name = item.Name
	} else {
		// After-image unavailable: fall back to the raw field value so
		// availability information is never dropped.
		qty, ok := toFloat(n.UpdatedFields["items."+strconv.Itoa(idx)+".quantity"])
		if !ok {
			obs.Logger.Warn("watch_quantity_value_unreadable", "category_id", n.CategoryID, "index", idx)
			return model.ItemChange{}, false
		}
		before, bok := beforeItem(n, idx)
		if !bok {
			obs.Logger.Warn("watch_update_missing_images", "category_id", n.CategoryID, "index", idx)
			return model.ItemChange{}, false
		}
		ch.ItemID = before.ItemID
		ch.Quantity = qty
		ch.Name = before.Name
	}

	if before, ok := beforeItem(n, idx); ok {
		prev := before.Quantity
		delta := ch.Quantity - prev
		ch.PreviousQuantity = &prev
		ch.ChangeAmount = &delta
	} else {
		zero := 0.0
		ch.ChangeAmount = &zero
		obs.Logger.Warn("watch_missing_before_image",
			"category_id", n.CategoryID, "item_id", ch.ItemID, "quantity", ch.Quantity)
	}
	return ch, true
}

func beforeItem(n Notification, idx int) (model.StockRecord, bool) {
	if n.Before == nil {
		return model.StockRecord{}, false
	}
	return n.Before.Item(idx)
}

func categoryEvent(kind model.EventKind, cat model.Category, at time.Time) model.StockChangeEvent {
	ev := model.StockChangeEvent{
		Kind:         kind,
		CategoryID:   cat.ID,
		CategoryName: cat.Name,
		Timestamp:    at,
		TotalItems:   len(cat.Items),
	}
	for _, item := range cat.Items {
		ev.Items = append(ev.Items, model.ItemChange{
			ItemID:   item.ItemID,
			Quantity: item.Quantity,
			Name:     item.Name,
		})
	}
	return ev
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
