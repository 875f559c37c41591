package contracts

import "time"

// OrderCompletedEvent is published to the fulfillment exchange after a
// checkout session has been reconciled into a durable order.
type OrderCompletedEvent struct {
	EventID     string    `json:"event_id"`
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	UserEmail   string    `json:"user_email"`
	TotalAmount int64     `json:"total_amount"`
	Currency    string    `json:"currency"`
	ItemCount   int       `json:"item_count"`
	CreatedAt   time.Time `json:"created_at"`
}
