// Package reconcile turns verified Stripe webhook events into durable
// orders. This is the one place idempotence and partial-failure policy
// matter: the provider delivers events at least once, possibly
// concurrently, and must never be driven into a retry storm.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v80"

	"github.com/luckpoint/my-cafe-demo/internal/metrics"
	"github.com/luckpoint/my-cafe-demo/internal/order"
	"github.com/luckpoint/my-cafe-demo/internal/payments"
)

type OrderStore interface {
	Exists(ctx context.Context, orderID string) (bool, error)
	Create(ctx context.Context, o order.Order, items []order.Item) error
}

type SessionFetcher interface {
	GetSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
}

type Notifier interface {
	NotifyOrder(userID string, o order.OrderWithItems)
}

type Reconciler struct {
	store           OrderStore
	sessions        SessionFetcher
	notifier        Notifier
	metrics         *metrics.Registry
	logger          *slog.Logger
	defaultCurrency string
}

func New(store OrderStore, sessions SessionFetcher, notifier Notifier, m *metrics.Registry, logger *slog.Logger, defaultCurrency string) *Reconciler {
	return &Reconciler{
		store:           store,
		sessions:        sessions,
		notifier:        notifier,
		metrics:         m,
		logger:          logger,
		defaultCurrency: defaultCurrency,
	}
}

// HandleEvent processes one verified webhook delivery. Every outcome
// short of a signature failure (handled upstream) is acknowledged to
// the provider: reconciliation failures are logged and swallowed so
// the provider does not retry forever against a persistent fault.
func (r *Reconciler) HandleEvent(ctx context.Context, event stripe.Event) {
	r.metrics.WebhookEvents.WithLabelValues(string(event.Type)).Inc()

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			r.logger.Error("unmarshal checkout session", "event_id", event.ID, "err", err)
			return
		}
		r.handleCompleted(ctx, &sess)

	case stripe.EventTypeCheckoutSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err == nil {
			r.logger.Info("checkout session expired", "session_id", sess.ID)
		}

	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err == nil {
			r.logger.Info("payment failed", "payment_intent_id", intent.ID)
		}

	default:
		r.logger.Debug("unhandled event type", "type", event.Type)
	}
}

// handleCompleted walks the reconciliation steps: deduplicate, extract
// identity, enrich from the provider, persist order and items in one
// transaction.
func (r *Reconciler) handleCompleted(ctx context.Context, sess *stripe.CheckoutSession) {
	exists, err := r.store.Exists(ctx, sess.ID)
	if err != nil {
		r.logger.Error("order existence check", "session_id", sess.ID, "err", err)
		r.metrics.ReconcileFailures.Inc()
		return
	}
	if exists {
		r.logger.Info("order already recorded, skipping", "session_id", sess.ID)
		r.metrics.OrdersDuplicate.Inc()
		return
	}

	userID := sess.Metadata[payments.MetaUserID]
	userEmail := ""
	if sess.CustomerDetails != nil {
		userEmail = sess.CustomerDetails.Email
	}
	if userID == "" || userEmail == "" {
		r.logger.Warn("session missing purchaser identity, order not recorded",
			"session_id", sess.ID, "has_user_id", userID != "", "has_email", userEmail != "")
		return
	}

	// The event payload carries no usable line items; re-fetch the
	// session with line items, their products and the payment intent
	// expanded.
	full, err := r.sessions.GetSession(ctx, sess.ID)
	if err != nil {
		r.logger.Error("retrieve session for reconciliation", "session_id", sess.ID, "err", err)
		r.metrics.ReconcileFailures.Inc()
		return
	}

	o := order.Order{
		ID:          full.ID,
		UserID:      userID,
		UserEmail:   userEmail,
		TotalAmount: full.AmountTotal,
		Currency:    string(full.Currency),
		Status:      order.StatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}
	if o.Currency == "" {
		o.Currency = r.defaultCurrency
	}
	if full.PaymentIntent != nil {
		o.PaymentIntentID = full.PaymentIntent.ID
	}

	items := mapLineItems(full)

	if err := r.store.Create(ctx, o, items); err != nil {
		if errors.Is(err, order.ErrDuplicate) {
			// Lost the race against a concurrent delivery of the
			// same event. The storage uniqueness constraint is the
			// authoritative guard; this is the dedup case.
			r.logger.Info("concurrent delivery already recorded order", "session_id", sess.ID)
			r.metrics.OrdersDuplicate.Inc()
			return
		}
		r.logger.Error("persist order", "session_id", sess.ID, "err", err)
		r.metrics.ReconcileFailures.Inc()
		return
	}

	r.logger.Info("order recorded",
		"order_id", o.ID, "user_id", o.UserID, "amount", o.TotalAmount, "items", len(items))
	r.metrics.OrdersCreated.Inc()

	if r.notifier != nil {
		r.notifier.NotifyOrder(userID, order.OrderWithItems{Order: o, Items: items})
	}
}

// mapLineItems maps provider line items back to domain items using the
// metadata embedded at session creation. A line whose product metadata
// did not survive the round trip becomes an "unknown"/tall item rather
// than failing the whole order.
func mapLineItems(sess *stripe.CheckoutSession) []order.Item {
	if sess.LineItems == nil {
		return nil
	}

	items := make([]order.Item, 0, len(sess.LineItems.Data))
	for _, li := range sess.LineItems.Data {
		item := order.Item{
			OrderID:     sess.ID,
			ProductID:   order.UnknownProductID,
			ProductName: li.Description,
			Size:        order.SizeTall,
			Quantity:    li.Quantity,
		}
		if li.Price != nil {
			item.UnitPrice = li.Price.UnitAmount
			if product := li.Price.Product; product != nil {
				if product.Name != "" {
					item.ProductName = product.Name
				}
				if id, ok := product.Metadata[payments.MetaProductID]; ok && id != "" {
					item.ProductID = id
				}
				if size, ok := product.Metadata[payments.MetaSize]; ok && size != "" {
					item.Size = order.ParseSize(size)
				}
			}
		}
		items = append(items, item)
	}
	return items
}
