package domain

import (
	"strings"
	"time"
)

// Product is the canonical, trusted catalog record for a battery cell line.
// Client carts reference it by id or slug; the unit price here is the only
// price the server will honour.
type Product struct {
	ID         string
	Slug       string
	Name       string
	Category   string
	UnitPrice  int64 // minor currency units (pence)
	Currency   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BatchStatus enumerates the lifecycle states of a stock batch.
type BatchStatus string

const (
	// BatchStatusLive marks a batch eligible for allocation.
	BatchStatusLive BatchStatus = "live"
	// BatchStatusArchived marks a depleted or withdrawn batch.
	BatchStatusArchived BatchStatus = "archived"
	// BatchStatusDraft marks a batch not yet released for sale.
	BatchStatusDraft BatchStatus = "draft"
)

// Batch is a discrete stock lot of a product, consumed oldest-first.
// StockQuantity never goes negative; decrements commit only when the quantity
// is unchanged since it was read.
type Batch struct {
	ID            string
	ProductID     string
	StockQuantity int
	Status        BatchStatus
	ReceivedAt    time.Time
	UpdatedAt     time.Time
}

// Allocatable reports whether the batch may participate in stock allocation.
func (b Batch) Allocatable() bool {
	return b.Status == BatchStatusLive && b.StockQuantity > 0
}

// VolumeDiscountTier is a global quantity-threshold percentage discount.
// Among active tiers matching a quantity, the one with the highest
// MinQuantity wins; tiers never stack.
type VolumeDiscountTier struct {
	ID              string
	MinQuantity     int
	DiscountPercent int
	Active          bool
	CreatedAt       time.Time
}

// CartLine is a client-claimed item reference and quantity. Any price the
// client attaches is discarded before pricing.
type CartLine struct {
	Ref      string // opaque product id or human slug
	Quantity int
}

// Address is a shipping address as captured either from the client or from the
// payment processor's session record.
type Address struct {
	Line1    string
	Line2    string
	City     string
	Postcode string
	Country  string
}

// PostcodeArea returns the leading alphabetic area prefix of the postcode,
// upper-cased ("KW14 7QU" -> "KW").
func (a Address) PostcodeArea() string {
	code := strings.ToUpper(strings.TrimSpace(a.Postcode))
	end := 0
	for end < len(code) && code[end] >= 'A' && code[end] <= 'Z' {
		end++
	}
	return code[:end]
}

// OrderStatus is the order lifecycle state machine.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	// Terminal failure branches. Payment was captured and compensated with a
	// refund before the order reached fulfillment.
	OrderStatusRefunded               OrderStatus = "refunded"
	OrderStatusRefundedNoStock        OrderStatus = "refunded_no_stock"
	OrderStatusRefundedInvalidAddress OrderStatus = "refunded_invalid_address"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusRefunded, OrderStatusRefundedNoStock, OrderStatusRefundedInvalidAddress},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// CanTransition reports whether the status may move to next. Terminal refund
// states admit no further transitions.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the order lifecycle.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusRefunded, OrderStatusRefundedNoStock, OrderStatusRefundedInvalidAddress:
		return true
	}
	return false
}

// OrderLine is a captured line item on a materialized order. The values come
// from the payment processor's authoritative session record, not the original
// client payload.
type OrderLine struct {
	ProductID  string
	Name       string
	Quantity   int
	UnitAmount int64
}

// Order is one row per completed (or attempted) payment session, keyed
// uniquely by the external session id for idempotency.
type Order struct {
	ID         string
	SessionID  string
	Email      string
	Status     OrderStatus
	Currency   string
	TotalMinor int64
	Lines      []OrderLine
	Shipping   Address
	Metadata   map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AbandonedCart tracks an open cart left behind by a known email, closed out
// when an order for that email completes.
type AbandonedCart struct {
	ID        string
	Email     string
	Converted bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
