package cart

import (
	"encoding/json"
	"net/http"
	"net/url"
)

const CookieName = "cart"

const cookieMaxAge = 60 * 60 * 24 * 7 // 7 days

// FromRequest rehydrates the cart from the request cookie. A missing
// or malformed cookie yields an empty cart, never an error: a broken
// cart cookie is the client's problem to recover from by shopping.
func FromRequest(r *http.Request) *Cart {
	c := &Cart{}
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return c
	}
	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return c
	}
	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return c
	}
	c.Lines = lines
	return c
}

// Write serializes the cart back into the response cookie. The value
// is the JSON array of lines, escaped for cookie transport.
func Write(w http.ResponseWriter, c *Cart) {
	lines := c.Lines
	if lines == nil {
		lines = []Line{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    url.QueryEscape(string(raw)),
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Expire clears the cart cookie.
func Expire(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}
