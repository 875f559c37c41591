package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v80"

	"github.com/luckpoint/my-cafe-demo/internal/auth"
	"github.com/luckpoint/my-cafe-demo/internal/cart"
	"github.com/luckpoint/my-cafe-demo/internal/catalog"
	"github.com/luckpoint/my-cafe-demo/internal/metrics"
	"github.com/luckpoint/my-cafe-demo/internal/order"
	"github.com/luckpoint/my-cafe-demo/internal/payments"
)

type OrderLister interface {
	ListByUser(ctx context.Context, userID string) ([]order.OrderWithItems, error)
}

type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, lines []payments.CheckoutLine, opts payments.SessionOptions) (*payments.CheckoutSession, error)
	VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error)
	GetSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
}

type EventHandler interface {
	HandleEvent(ctx context.Context, event stripe.Event)
}

type SessionManager interface {
	CurrentUser(r *http.Request) (*auth.User, bool)
	SaveUser(w http.ResponseWriter, r *http.Request, u auth.User) error
	Clear(w http.ResponseWriter, r *http.Request) error
}

type Server struct {
	catalog    *catalog.Catalog
	orders     OrderLister
	gateway    CheckoutGateway
	reconciler EventHandler
	sessions   SessionManager
	metrics    *metrics.Registry
	logger     *slog.Logger
	baseURL    string
	mux        *http.ServeMux
}

func NewServer(cat *catalog.Catalog, orders OrderLister, gateway CheckoutGateway, reconciler EventHandler, sessions SessionManager, m *metrics.Registry, logger *slog.Logger, baseURL string) *Server {
	s := &Server{
		catalog:    cat,
		orders:     orders,
		gateway:    gateway,
		reconciler: reconciler,
		sessions:   sessions,
		metrics:    m,
		logger:     logger,
		baseURL:    baseURL,
		mux:        http.NewServeMux(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/products", s.listProducts)
	s.mux.HandleFunc("GET /api/products/{productID}", s.getProduct)

	s.mux.HandleFunc("GET /api/cart", s.viewCart)
	s.mux.HandleFunc("POST /api/cart/add", s.cartAdd)
	s.mux.HandleFunc("POST /api/cart/update", s.cartUpdate)
	s.mux.HandleFunc("POST /api/cart/remove", s.cartRemove)
	s.mux.HandleFunc("POST /api/cart/clear", s.cartClear)

	s.mux.HandleFunc("POST /api/checkout/create-session", s.createCheckoutSession)
	s.mux.HandleFunc("GET /checkout/success", s.checkoutSuccess)
	s.mux.HandleFunc("GET /checkout/cancel", s.checkoutCancel)

	s.mux.HandleFunc("POST /api/stripe/webhook", s.handleWebhook)

	s.mux.HandleFunc("GET /api/orders", s.listOrders)

	s.mux.HandleFunc("GET /login", s.login)
	s.mux.HandleFunc("GET /auth/callback", s.authCallback)
	s.mux.HandleFunc("GET /logout", s.logout)

	s.mux.HandleFunc("GET /healthz", s.health)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
}

// HandleFunc registers an extra route on the server mux, used by the
// app wiring for the websocket order feed.
func (s *Server) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	if category := r.URL.Query().Get("category"); category != "" {
		writeJSON(w, http.StatusOK, map[string]any{"products": s.catalog.ByCategory(category)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": s.catalog.All()})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.catalog.ByID(r.PathValue("productID"))
	if !ok {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) viewCart(w http.ResponseWriter, r *http.Request) {
	c := cart.FromRequest(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"items":    c.Lines,
		"subtotal": c.Subtotal(),
		"tax":      c.Tax(),
		"total":    c.Total(),
	})
}

func (s *Server) cartAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	productID := r.PostFormValue("productId")
	size := order.ParseSize(r.PostFormValue("size"))
	quantity := parseQuantity(r.PostFormValue("quantity"), 1)

	p, ok := s.catalog.ByID(productID)
	if !ok {
		http.Redirect(w, r, "/cart?error=product_not_found", http.StatusSeeOther)
		return
	}

	c := cart.FromRequest(r)
	c.Add(cart.Line{
		ProductID: p.ID,
		Name:      p.Name,
		Size:      size,
		UnitPrice: p.PriceFor(size),
		Quantity:  quantity,
		Image:     p.Image,
	})
	cart.Write(w, c)
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

func (s *Server) cartUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	productID := r.PostFormValue("productId")
	size := order.ParseSize(r.PostFormValue("size"))
	quantity := parseQuantity(r.PostFormValue("quantity"), 1)

	c := cart.FromRequest(r)
	c.SetQuantity(productID, size, quantity)
	cart.Write(w, c)
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

func (s *Server) cartRemove(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	c := cart.FromRequest(r)
	c.Remove(r.PostFormValue("productId"), order.ParseSize(r.PostFormValue("size")))
	cart.Write(w, c)
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

func (s *Server) cartClear(w http.ResponseWriter, r *http.Request) {
	cart.Expire(w)
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

func (s *Server) createCheckoutSession(w http.ResponseWriter, r *http.Request) {
	c := cart.FromRequest(r)
	if c.Empty() {
		writeError(w, http.StatusBadRequest, "cart is empty")
		return
	}

	opts := payments.SessionOptions{}
	if user, ok := s.sessions.CurrentUser(r); ok {
		opts.UserID = user.ID
		opts.CustomerEmail = user.Email
	}

	lines := make([]payments.CheckoutLine, 0, len(c.Lines))
	for _, l := range c.Lines {
		line := payments.CheckoutLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			Size:      l.Size,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			ImageURL:  s.absoluteImageURL(l.Image),
		}
		// Re-resolve the price from the catalog so a stale cookie
		// cannot dictate what the customer is charged.
		if p, ok := s.catalog.ByID(l.ProductID); ok {
			line.Name = p.Name
			line.UnitPrice = p.PriceFor(l.Size)
			line.ImageURL = s.absoluteImageURL(p.Image)
		}
		lines = append(lines, line)
	}

	sess, err := s.gateway.CreateCheckoutSession(r.Context(), lines, opts)
	if err != nil {
		if errors.Is(err, payments.ErrEmptyCart) {
			writeError(w, http.StatusBadRequest, "cart is empty")
			return
		}
		s.logger.Error("create checkout session", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create checkout session")
		return
	}
	s.metrics.CheckoutSessions.Inc()

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, sess.URL, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": sess.URL, "sessionId": sess.ID})
}

func (s *Server) checkoutSuccess(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "complete"}

	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		sess, err := s.gateway.GetSession(r.Context(), sessionID)
		if err != nil {
			s.logger.Error("retrieve session for confirmation", "session_id", sessionID, "err", err)
		} else {
			resp["amount"] = sess.AmountTotal
			resp["payment_status"] = sess.PaymentStatus
			if sess.CustomerDetails != nil {
				resp["email"] = sess.CustomerDetails.Email
			}
		}
		// The purchase went through; the cart has served its purpose.
		cart.Expire(w)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) checkoutCancel(w http.ResponseWriter, r *http.Request) {
	// Cart cookie stays: the customer may come back.
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		writeError(w, http.StatusBadRequest, "missing signature")
		return
	}

	payload, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	event, err := s.gateway.VerifyEvent(payload, sig)
	if err != nil {
		s.logger.Error("webhook signature verification failed", "err", err)
		writeError(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	s.reconciler.HandleEvent(r.Context(), event)

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessions.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := s.orders.ListByUser(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("list orders", "user_id", user.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if orders == nil {
		orders = []order.OrderWithItems{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) absoluteImageURL(image string) string {
	if image == "" || strings.HasPrefix(image, "http") {
		return image
	}
	return s.baseURL + image
}

func parseQuantity(raw string, def int64) int64 {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
