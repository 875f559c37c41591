package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luckpoint/my-cafe-demo/internal/contracts"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicate reports that an order with the same checkout session id
// already exists. Under concurrent webhook delivery the primary key on
// orders.id is the authoritative guard; the caller treats this as the
// duplicate-delivery case.
var ErrDuplicate = errors.New("order already exists")

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Exists is a fast-path check used by the reconciler before it spends
// a provider round trip re-fetching the session.
func (s *Service) Exists(ctx context.Context, orderID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM orders WHERE id = $1`, orderID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check order exists: %w", err)
	}
	return true, nil
}

// Create inserts the order, its items and the fulfillment outbox row
// in a single transaction. The order id is assigned exactly once, at
// creation; a primary-key violation means another delivery of the same
// event won the race and is reported as ErrDuplicate.
func (s *Service) Create(ctx context.Context, o Order, items []Item) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, user_email, payment_intent_id, total_amount, currency, status, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)`,
		o.ID, o.UserID, o.UserEmail, o.PaymentIntentID, o.TotalAmount, o.Currency, o.Status, o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, size, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, item.ProductID, item.ProductName, item.Size, item.UnitPrice, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	event := contracts.OrderCompletedEvent{
		EventID:     uuid.New().String(),
		OrderID:     o.ID,
		UserID:      o.UserID,
		UserEmail:   o.UserEmail,
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
		ItemCount:   len(items),
		CreatedAt:   o.CreatedAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_outbox (event_id, event_type, payload)
		VALUES ($1, $2, $3)`,
		event.EventID, "order.completed", payload,
	)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}

	return tx.Commit(ctx)
}

// ListByUser returns the user's orders newest first, each with its
// items loaded via a second query keyed by the order id set.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]OrderWithItems, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, user_email, COALESCE(payment_intent_id, ''), total_amount, currency, status, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var result []OrderWithItems
	var orderIDs []string
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.UserEmail, &o.PaymentIntentID, &o.TotalAmount, &o.Currency, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, OrderWithItems{Order: o, Items: []Item{}})
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return result, nil
	}

	itemRows, err := s.pool.Query(ctx, `
		SELECT order_id, product_id, product_name, size, unit_price, quantity
		FROM order_items
		WHERE order_id = ANY($1)`, orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer itemRows.Close()

	byOrder := make(map[string][]Item, len(result))
	for itemRows.Next() {
		var it Item
		if err := itemRows.Scan(&it.OrderID, &it.ProductID, &it.ProductName, &it.Size, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, err
		}
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		if items, ok := byOrder[result[i].ID]; ok {
			result[i].Items = items
		}
	}

	return result, nil
}
