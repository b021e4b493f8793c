package domain

import "time"

// ReservationStatus represents the state of a stock reservation
type ReservationStatus string

const (
	StatusReserved  ReservationStatus = "reserved"
	StatusCommitted ReservationStatus = "committed"
	StatusReleased  ReservationStatus = "released"
)

// ReservationItem is one product line of a reservation batch
type ReservationItem struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// Reservation holds inventory units for a checkout attempt until it is
// committed (sold) or released back to the available pool.
type Reservation struct {
	ID         string
	CheckoutID string
	Items      []ReservationItem
	Status     ReservationStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// InventoryRecord contains stock counters for a product
type InventoryRecord struct {
	ProductID    string `json:"product_id"`
	AvailableQty int64  `json:"available_qty"`
	ReservedQty  int64  `json:"reserved_qty"`
	SoldQty      int64  `json:"sold_qty"`
}

// Units is the total number of units the ledger accounts for.
func (r InventoryRecord) Units() int64 {
	return r.AvailableQty + r.ReservedQty + r.SoldQty
}

// AggregateItems merges duplicate product lines and drops empty ones,
// keeping first-seen order.
func AggregateItems(items []ReservationItem) []ReservationItem {
	index := make(map[string]int, len(items))
	out := make([]ReservationItem, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}
