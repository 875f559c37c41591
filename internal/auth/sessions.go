// Package auth holds the login session. Authentication itself is
// delegated to Auth0 via goth; all the rest of the service needs is
// "is there a logged-in user id" plus the email captured at login.
package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/auth0"
)

const sessionName = "cafe_session"

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type Sessions struct {
	store *sessions.CookieStore
}

func NewSessions(secret string, secure bool) *Sessions {
	store := sessions.NewCookieStore([]byte(secret))
	store.MaxAge(86400 * 7)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode

	gothic.Store = store
	return &Sessions{store: store}
}

// RegisterAuth0 wires the Auth0 provider into goth. A blank client id
// leaves login unconfigured; protected routes then reject requests.
func RegisterAuth0(clientID, clientSecret, callbackURL, domain string) {
	if clientID == "" || clientSecret == "" {
		return
	}
	goth.UseProviders(auth0.New(clientID, clientSecret, callbackURL, domain))
}

func (s *Sessions) CurrentUser(r *http.Request) (*User, bool) {
	sess, err := s.store.Get(r, sessionName)
	if err != nil {
		return nil, false
	}
	id, _ := sess.Values["user_id"].(string)
	if id == "" {
		return nil, false
	}
	email, _ := sess.Values["user_email"].(string)
	name, _ := sess.Values["user_name"].(string)
	return &User{ID: id, Email: email, Name: name}, true
}

func (s *Sessions) SaveUser(w http.ResponseWriter, r *http.Request, u User) error {
	sess, _ := s.store.Get(r, sessionName)
	sess.Values["user_id"] = u.ID
	sess.Values["user_email"] = u.Email
	sess.Values["user_name"] = u.Name
	return sess.Save(r, w)
}

func (s *Sessions) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := s.store.Get(r, sessionName)
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}
