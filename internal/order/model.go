package order

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Size is the fixed serving-size enumeration governing per-line pricing.
type Size string

const (
	SizeShort  Size = "short"
	SizeTall   Size = "tall"
	SizeGrande Size = "grande"
	SizeVenti  Size = "venti"
)

// ParseSize maps raw form/metadata input to a Size. Anything
// unrecognized falls back to tall, the shop's default serving.
func ParseSize(raw string) Size {
	switch Size(raw) {
	case SizeShort, SizeTall, SizeGrande, SizeVenti:
		return Size(raw)
	default:
		return SizeTall
	}
}

// UnknownProductID marks an item whose product metadata was not
// propagated by the payment provider. A degraded state, not an error.
const UnknownProductID = "unknown"

// Order is keyed by the payment provider's checkout session id, which
// doubles as the idempotency key for webhook reconciliation.
type Order struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	UserEmail       string    `json:"user_email"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	TotalAmount     int64     `json:"total_amount"`
	Currency        string    `json:"currency"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// Item is a denormalized snapshot of a purchased line; catalog prices
// and names may change later, the order must not.
type Item struct {
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Size        Size   `json:"size"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int64  `json:"quantity"`
}

type OrderWithItems struct {
	Order
	Items []Item `json:"items"`
}
