// Package cart gates cart mutations and checkout against the client
// stock cache. Rejections are normal control-flow outcomes carrying a
// structured reason, not errors.
package cart

import (
	"strconv"

	"github.com/recyclemart/stocksync/internal/model"
)

// Stock is the read surface the validator needs; *client.Cache
// satisfies it.
type Stock interface {
	GetQuantity(itemID string, fallback float64) float64
}

// Op identifies the cart mutation being validated.
type Op string

const (
	OpAdd      Op = "add"
	OpIncrease Op = "increase"
	OpSet      Op = "set"
)

// Reason classifies a rejection.
type Reason string

const (
	ReasonOutOfStock   Reason = "out_of_stock"
	ReasonInsufficient Reason = "insufficient_stock"
)

// Decision is the outcome of validating one cart operation. When
// rejected, MaxQuantity is the largest satisfiable quantity.
type Decision struct {
	OK          bool    `json:"ok"`
	Op          Op      `json:"op"`
	ItemID      string  `json:"item_id"`
	Requested   float64 `json:"requested"`
	Available   float64 `json:"available"`
	MaxQuantity float64 `json:"max_quantity"`
	Reason      Reason  `json:"reason,omitempty"`
}

// ValidateOperation decides whether a cart mutation resulting in
// resultingQty of itemID can be satisfied by the cached stock. Pure
// with respect to the snapshot: it mutates neither cache nor cart;
// callers apply the mutation only after acceptance.
func ValidateOperation(stock Stock, op Op, itemID string, resultingQty float64) Decision {
	available := stock.GetQuantity(itemID, 0)
	d := Decision{
		Op:          op,
		ItemID:      itemID,
		Requested:   resultingQty,
		Available:   available,
		MaxQuantity: available,
	}
	if resultingQty <= available {
		d.OK = true
		return d
	}
	if available <= 0 {
		d.Reason = ReasonOutOfStock
	} else {
		d.Reason = ReasonInsufficient
	}
	return d
}

// Entry is one cart line.
type Entry struct {
	ItemID   string
	Name     model.Name
	Quantity float64
}

// EntryResult pairs a cart line with its decision.
type EntryResult struct {
	Entry
	Decision Decision
}

// CartReport is the outcome of validating a whole cart. It backs both
// passive stock alerts and the hard checkout gate.
type CartReport struct {
	Results         []EntryResult
	Valid           bool
	InvalidCount    int
	OutOfStockItems []string
}

// ValidateCart validates every entry against the stock snapshot.
func ValidateCart(stock Stock, entries []Entry) CartReport {
	rep := CartReport{Valid: true}
	for _, e := range entries {
		d := ValidateOperation(stock, OpSet, e.ItemID, e.Quantity)
		rep.Results = append(rep.Results, EntryResult{Entry: e, Decision: d})
		if d.OK {
			continue
		}
		rep.Valid = false
		rep.InvalidCount++
		if d.Reason == ReasonOutOfStock {
			rep.OutOfStockItems = append(rep.OutOfStockItems, e.Name.Display())
		}
	}
	return rep
}

// CheckoutReport wraps a cart validation with checkout-specific
// classification and user-facing suggestions.
type CheckoutReport struct {
	CartReport
	CanProceed   bool
	Error        string
	OutOfStock   []EntryResult
	Insufficient []EntryResult
	Suggestions  []string
}

// ValidateForCheckout is the hard gate before checkout. An empty cart
// is rejected before any stock lookup.
func ValidateForCheckout(stock Stock, entries []Entry) CheckoutReport {
	if len(entries) == 0 {
		return CheckoutReport{
			CartReport: CartReport{Valid: false},
			CanProceed: false,
			Error:      "Cart is empty",
		}
	}
	rep := CheckoutReport{CartReport: ValidateCart(stock, entries)}
	rep.CanProceed = rep.Valid
	for _, r := range rep.Results {
		if r.Decision.OK {
			continue
		}
		name := r.Name.Display()
		if name == "" {
			name = r.ItemID
		}
		switch r.Decision.Reason {
		case ReasonOutOfStock:
			rep.OutOfStock = append(rep.OutOfStock, r)
			rep.Suggestions = append(rep.Suggestions, "Remove "+name+" from your cart")
		case ReasonInsufficient:
			rep.Insufficient = append(rep.Insufficient, r)
			rep.Suggestions = append(rep.Suggestions,
				"Reduce "+name+" to "+formatQuantity(r.Decision.MaxQuantity))
		}
	}
	return rep
}

func formatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
