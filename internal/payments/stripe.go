// Package payments wraps the Stripe client. Card handling, payment
// processing and webhook signature cryptography are delegated to
// Stripe entirely; this package only maps cart lines onto checkout
// sessions and back.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/luckpoint/my-cafe-demo/internal/order"
)

var ErrEmptyCart = errors.New("cart is empty")

// Metadata keys embedded at session creation. They are the only
// channel through which the webhook reconciler can recover structured
// order content: Stripe's own line items are promotional records, not
// domain objects.
const (
	MetaUserID    = "user_id"
	MetaProductID = "product_id"
	MetaSize      = "size"
)

type CheckoutLine struct {
	ProductID string
	Name      string
	Size      order.Size
	UnitPrice int64
	Quantity  int64
	ImageURL  string
}

type SessionOptions struct {
	UserID        string
	CustomerEmail string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type Gateway struct {
	webhookSecret string
	baseURL       string
	currency      string
}

func NewGateway(secretKey, webhookSecret, baseURL, currency string) *Gateway {
	stripe.Key = secretKey
	return &Gateway{
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		currency:      currency,
	}
}

// CreateCheckoutSession maps cart lines to a Stripe checkout session.
// Product id and size travel as product metadata on each line, the
// purchaser id as session metadata.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, lines []CheckoutLine, opts SessionOptions) (*CheckoutSession, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(lines))
	for _, line := range lines {
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(fmt.Sprintf("%s (%s)", line.Name, line.Size)),
			Metadata: map[string]string{
				MetaProductID: line.ProductID,
				MetaSize:      string(line.Size),
			},
		}
		if line.ImageURL != "" {
			productData.Images = []*string{stripe.String(line.ImageURL)}
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(g.currency),
				UnitAmount:  stripe.Int64(line.UnitPrice),
				ProductData: productData,
			},
			Quantity: stripe.Int64(line.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          lineItems,
		SuccessURL:         stripe.String(g.baseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripe.String(g.baseURL + "/checkout/cancel"),
		Metadata: map[string]string{
			MetaUserID: opts.UserID,
		},
	}
	params.Context = ctx
	if opts.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(opts.CustomerEmail)
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// VerifyEvent checks the webhook signature over the raw payload and
// decodes the event. Verification is terminal for the delivery when it
// fails; no further provider calls are made.
func (g *Gateway) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, g.webhookSecret)
}

// GetSession re-fetches the full checkout session. The webhook payload
// alone does not carry complete line-item detail, so line items, their
// products and the payment intent are expanded here.
func (g *Gateway) GetSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")
	params.AddExpand("line_items.data.price.product")
	params.AddExpand("payment_intent")

	sess, err := session.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}
	return sess, nil
}
