package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"

	"github.com/luckpoint/my-cafe-demo/internal/auth"
	"github.com/luckpoint/my-cafe-demo/internal/cart"
	"github.com/luckpoint/my-cafe-demo/internal/catalog"
	"github.com/luckpoint/my-cafe-demo/internal/metrics"
	"github.com/luckpoint/my-cafe-demo/internal/order"
	"github.com/luckpoint/my-cafe-demo/internal/payments"
)

type fakeLister struct {
	orders []order.OrderWithItems
	err    error
	userID string
}

func (f *fakeLister) ListByUser(_ context.Context, userID string) ([]order.OrderWithItems, error) {
	f.userID = userID
	return f.orders, f.err
}

type fakeGateway struct {
	session   *payments.CheckoutSession
	createErr error
	gotLines  []payments.CheckoutLine
	gotOpts   payments.SessionOptions
	event     stripe.Event
	verifyErr error
	fullSess  *stripe.CheckoutSession
	getErr    error
	getCalls  int
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, lines []payments.CheckoutLine, opts payments.SessionOptions) (*payments.CheckoutSession, error) {
	f.gotLines = lines
	f.gotOpts = opts
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.session, nil
}

func (f *fakeGateway) VerifyEvent(_ []byte, _ string) (stripe.Event, error) {
	if f.verifyErr != nil {
		return stripe.Event{}, f.verifyErr
	}
	return f.event, nil
}

func (f *fakeGateway) GetSession(_ context.Context, _ string) (*stripe.CheckoutSession, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.fullSess, nil
}

type fakeReconciler struct {
	events []stripe.Event
}

func (f *fakeReconciler) HandleEvent(_ context.Context, event stripe.Event) {
	f.events = append(f.events, event)
}

type fakeSessions struct {
	user *auth.User
}

func (f *fakeSessions) CurrentUser(*http.Request) (*auth.User, bool) {
	if f.user == nil {
		return nil, false
	}
	return f.user, true
}

func (f *fakeSessions) SaveUser(http.ResponseWriter, *http.Request, auth.User) error { return nil }
func (f *fakeSessions) Clear(http.ResponseWriter, *http.Request) error               { return nil }

type testEnv struct {
	server     *Server
	lister     *fakeLister
	gateway    *fakeGateway
	reconciler *fakeReconciler
	sessions   *fakeSessions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)

	env := &testEnv{
		lister:     &fakeLister{},
		gateway:    &fakeGateway{session: &payments.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}},
		reconciler: &fakeReconciler{},
		sessions:   &fakeSessions{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.server = NewServer(cat, env.lister, env.gateway, env.reconciler, env.sessions, metrics.NewRegistry(), logger, "https://cafe.example.com")
	return env
}

func postForm(s *Server, path string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func cartCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == cart.CookieName {
			return c
		}
	}
	t.Fatal("no cart cookie set")
	return nil
}

func decodeCart(t *testing.T, cookie *http.Cookie) []cart.Line {
	t.Helper()
	raw, err := url.QueryUnescape(cookie.Value)
	require.NoError(t, err)
	var lines []cart.Line
	require.NoError(t, json.Unmarshal([]byte(raw), &lines))
	return lines
}

func TestCartAdd_AccumulatesQuantity(t *testing.T) {
	env := newTestEnv(t)

	rec := postForm(env.server, "/api/cart/add", url.Values{
		"productId": {"caffe-latte"}, "size": {"tall"}, "quantity": {"2"},
	}, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	cookie := cartCookie(t, rec)
	rec = postForm(env.server, "/api/cart/add", url.Values{
		"productId": {"caffe-latte"}, "size": {"tall"}, "quantity": {"3"},
	}, []*http.Cookie{cookie})

	lines := decodeCart(t, cartCookie(t, rec))
	require.Len(t, lines, 1)
	assert.Equal(t, int64(5), lines[0].Quantity)
	assert.Equal(t, int64(460), lines[0].UnitPrice, "tall price snapshot from the catalog")
}

func TestCartAdd_UnknownProductRedirectsWithError(t *testing.T) {
	env := newTestEnv(t)

	rec := postForm(env.server, "/api/cart/add", url.Values{
		"productId": {"no-such-drink"}, "size": {"tall"},
	}, nil)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart?error=product_not_found", rec.Header().Get("Location"))
}

func TestCartUpdate_ZeroQuantityRemovesLine(t *testing.T) {
	env := newTestEnv(t)

	rec := postForm(env.server, "/api/cart/add", url.Values{
		"productId": {"caffe-latte"}, "size": {"tall"},
	}, nil)
	cookie := cartCookie(t, rec)

	rec = postForm(env.server, "/api/cart/update", url.Values{
		"productId": {"caffe-latte"}, "size": {"tall"}, "quantity": {"0"},
	}, []*http.Cookie{cookie})

	assert.Empty(t, decodeCart(t, cartCookie(t, rec)))
}

func TestCartRemoveThenReAdd_FreshLine(t *testing.T) {
	env := newTestEnv(t)

	rec := postForm(env.server, "/api/cart/add", url.Values{
		"productId": {"caffe-latte"}, "size": {"tall"}, "quantity": {"4"},
	}, nil)
	cookie := cartCookie(t, rec)

	rec = postForm(env.server, "/api/cart/remove", url.Values{
		"productId": {"caffe-latte"}, "size": {"tall"},
	}, []*http.Cookie{cookie})
	cookie = cartCookie(t, rec)
	require.Empty(t, decodeCart(t, cookie))

	rec = postForm(env.server, "/api/cart/add", url.Values{
		"productId": {"caffe-latte"}, "size": {"tall"},
	}, []*http.Cookie{cookie})

	lines := decodeCart(t, cartCookie(t, rec))
	require.Len(t, lines, 1)
	assert.Equal(t, int64(1), lines[0].Quantity)
}

func TestCartView_TotalsWithDisplayTax(t *testing.T) {
	env := newTestEnv(t)

	lines := []cart.Line{{ProductID: "latte", Name: "Latte", Size: order.SizeTall, UnitPrice: 500, Quantity: 2}}
	raw, err := json.Marshal(lines)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.AddCookie(&http.Cookie{Name: cart.CookieName, Value: url.QueryEscape(string(raw))})
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Subtotal int64 `json:"subtotal"`
		Tax      int64 `json:"tax"`
		Total    int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1000), resp.Subtotal)
	assert.Equal(t, int64(100), resp.Tax)
	assert.Equal(t, int64(1100), resp.Total)
}

func TestCheckout_EmptyCartIsClientError(t *testing.T) {
	env := newTestEnv(t)

	rec := postForm(env.server, "/api/checkout/create-session", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_MalformedCartCookieIsClientError(t *testing.T) {
	env := newTestEnv(t)

	rec := postForm(env.server, "/api/checkout/create-session", nil, []*http.Cookie{
		{Name: cart.CookieName, Value: url.QueryEscape("][")},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "a malformed cart cookie reads as an empty cart")
}

func seededCartCookie(t *testing.T) *http.Cookie {
	t.Helper()
	// Stale snapshot price: checkout must charge the current catalog
	// price for the stored size, not whatever the cookie claims.
	lines := []cart.Line{{ProductID: "caffe-latte", Name: "Caffè Latte", Size: order.SizeGrande, UnitPrice: 999, Quantity: 1}}
	raw, err := json.Marshal(lines)
	require.NoError(t, err)
	return &http.Cookie{Name: cart.CookieName, Value: url.QueryEscape(string(raw))}
}

func TestCheckout_ReturnsSessionJSON(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.user = &auth.User{ID: "auth0|u1", Email: "taro@example.com"}

	rec := postForm(env.server, "/api/checkout/create-session", nil, []*http.Cookie{seededCartCookie(t)})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", resp["url"])
	assert.Equal(t, "cs_test_1", resp["sessionId"])

	assert.Equal(t, "auth0|u1", env.gateway.gotOpts.UserID)
	assert.Equal(t, "taro@example.com", env.gateway.gotOpts.CustomerEmail)
	require.Len(t, env.gateway.gotLines, 1)
	assert.Equal(t, int64(500), env.gateway.gotLines[0].UnitPrice, "grande price re-resolved from the catalog")
}

func TestCheckout_RedirectsForHTMLClients(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/checkout/create-session", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.AddCookie(seededCartCookie(t))
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", rec.Header().Get("Location"))
}

func TestCheckout_ProviderFailureIsServerError(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.createErr = errors.New("stripe timeout")

	rec := postForm(env.server, "/api/checkout/create-session", nil, []*http.Cookie{seededCartCookie(t)})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhook_MissingSignature(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.reconciler.events)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.verifyErr = errors.New("signature mismatch")

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader("{}"))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.reconciler.events)
}

func TestWebhook_VerifiedEventIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.event = stripe.Event{
		ID:   "evt_1",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: []byte(`{"id":"cs_test_1"}`)},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader("{}"))
	req.Header.Set("Stripe-Signature", "t=1,v1=good")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp["received"])
	require.Len(t, env.reconciler.events, 1)
	assert.Equal(t, "evt_1", env.reconciler.events[0].ID)
}

func TestOrders_RequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrders_ListsForCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.user = &auth.User{ID: "auth0|u1", Email: "taro@example.com"}

	newer := order.OrderWithItems{
		Order: order.Order{ID: "cs_2", UserID: "auth0|u1", TotalAmount: 920, CreatedAt: time.Now()},
		Items: []order.Item{{OrderID: "cs_2", ProductID: "caffe-latte", ProductName: "Caffè Latte", Size: order.SizeTall, UnitPrice: 460, Quantity: 2}},
	}
	older := order.OrderWithItems{
		Order: order.Order{ID: "cs_1", UserID: "auth0|u1", TotalAmount: 390, CreatedAt: time.Now().Add(-time.Hour)},
		Items: []order.Item{{OrderID: "cs_1", ProductID: "house-blend", ProductName: "House Blend", Size: order.SizeTall, UnitPrice: 390, Quantity: 1}},
	}
	env.lister.orders = []order.OrderWithItems{newer, older}

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "auth0|u1", env.lister.userID)

	var resp struct {
		Orders []order.OrderWithItems `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 2)
	assert.Equal(t, "cs_2", resp.Orders[0].ID)
	require.Len(t, resp.Orders[0].Items, 1)
	assert.Equal(t, "caffe-latte", resp.Orders[0].Items[0].ProductID)
}

func TestCheckoutSuccess_ClearsCartAndReportsSession(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.fullSess = &stripe.CheckoutSession{
		ID:              "cs_test_1",
		AmountTotal:     1100,
		PaymentStatus:   stripe.CheckoutSessionPaymentStatusPaid,
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{Email: "taro@example.com"},
	}

	req := httptest.NewRequest(http.MethodGet, "/checkout/success?session_id=cs_test_1", nil)
	req.AddCookie(seededCartCookie(t))
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1100), resp["amount"])
	assert.Equal(t, "taro@example.com", resp["email"])

	cookie := cartCookie(t, rec)
	assert.Negative(t, cookie.MaxAge, "cart cookie must be expired after a completed purchase")
}

func TestCheckoutCancel_LeavesCartAlone(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/checkout/cancel", nil)
	req.AddCookie(seededCartCookie(t))
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		assert.NotEqual(t, cart.CookieName, c.Name, "cancel must not touch the cart cookie")
	}
}

func TestProducts_ListAndFilter(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/products?category=tea", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Products []catalog.Product `json:"products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Products)
	for _, p := range resp.Products {
		assert.Equal(t, "tea", p.Category)
	}
}

func TestProducts_NotFound(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/products/no-such-drink", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
