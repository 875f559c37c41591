package cart

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckpoint/my-cafe-demo/internal/order"
)

func latteLine(qty int64) Line {
	return Line{ProductID: "latte", Name: "Latte", Size: order.SizeTall, UnitPrice: 500, Quantity: qty}
}

func TestAdd_MergesSameProductAndSize(t *testing.T) {
	c := &Cart{}
	c.Add(latteLine(2))
	c.Add(latteLine(3))

	require.Len(t, c.Lines, 1)
	assert.Equal(t, int64(5), c.Lines[0].Quantity)
}

func TestAdd_DifferentSizeIsSeparateLine(t *testing.T) {
	c := &Cart{}
	c.Add(latteLine(1))

	grande := latteLine(1)
	grande.Size = order.SizeGrande
	grande.UnitPrice = 540
	c.Add(grande)

	require.Len(t, c.Lines, 2)
	assert.Equal(t, order.SizeTall, c.Lines[0].Size)
	assert.Equal(t, order.SizeGrande, c.Lines[1].Size)
}

func TestAdd_NonPositiveQuantityBecomesOne(t *testing.T) {
	c := &Cart{}
	c.Add(latteLine(0))

	require.Len(t, c.Lines, 1)
	assert.Equal(t, int64(1), c.Lines[0].Quantity)
}

func TestSetQuantity_ZeroRemovesLine(t *testing.T) {
	c := &Cart{}
	c.Add(latteLine(2))

	c.SetQuantity("latte", order.SizeTall, 0)
	assert.Empty(t, c.Lines)

	c.Add(latteLine(2))
	c.SetQuantity("latte", order.SizeTall, -1)
	assert.Empty(t, c.Lines)
}

func TestSetQuantity_AbsentLineIsNoop(t *testing.T) {
	c := &Cart{}
	c.SetQuantity("latte", order.SizeTall, 3)
	assert.Empty(t, c.Lines)
}

func TestRemoveThenReAdd_StartsFresh(t *testing.T) {
	c := &Cart{}
	c.Add(latteLine(4))
	c.Remove("latte", order.SizeTall)
	require.Empty(t, c.Lines)

	c.Add(latteLine(1))
	require.Len(t, c.Lines, 1)
	assert.Equal(t, int64(1), c.Lines[0].Quantity, "re-added line must not revive the stale quantity")
}

func TestTotals_FlatTenPercentTax(t *testing.T) {
	c := &Cart{}
	c.Add(latteLine(2))

	assert.Equal(t, int64(1000), c.Subtotal())
	assert.Equal(t, int64(100), c.Tax())
	assert.Equal(t, int64(1100), c.Total())
}

func TestClear(t *testing.T) {
	c := &Cart{}
	c.Add(latteLine(1))
	c.Clear()
	assert.True(t, c.Empty())
	assert.Equal(t, int64(0), c.Total())
}

func TestCookieRoundTrip(t *testing.T) {
	c := &Cart{}
	c.Add(latteLine(2))

	rec := httptest.NewRecorder()
	Write(rec, c)

	res := rec.Result()
	require.Len(t, res.Cookies(), 1)
	cookie := res.Cookies()[0]
	assert.Equal(t, CookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 60*60*24*7, cookie.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(cookie)

	got := FromRequest(req)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "latte", got.Lines[0].ProductID)
	assert.Equal(t, int64(2), got.Lines[0].Quantity)
	assert.Equal(t, int64(500), got.Lines[0].UnitPrice)
}

func TestFromRequest_MissingCookieIsEmptyCart(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	c := FromRequest(req)
	assert.True(t, c.Empty())
}

func TestFromRequest_MalformedCookieIsEmptyCart(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: url.QueryEscape("{not json")})

	c := FromRequest(req)
	assert.True(t, c.Empty())
}

func TestExpire(t *testing.T) {
	rec := httptest.NewRecorder()
	Expire(rec)

	res := rec.Result()
	require.Len(t, res.Cookies(), 1)
	assert.Equal(t, CookieName, res.Cookies()[0].Name)
	assert.Negative(t, res.Cookies()[0].MaxAge)
}
