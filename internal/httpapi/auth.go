package httpapi

import (
	"io"
	"net/http"

	"github.com/markbates/goth/gothic"

	"github.com/luckpoint/my-cafe-demo/internal/auth"
)

const maxWebhookBody = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	r.URL.RawQuery = "provider=auth0"
	gothic.BeginAuthHandler(w, r)
}

func (s *Server) authCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	q.Set("provider", "auth0")
	r.URL.RawQuery = q.Encode()

	gothUser, err := gothic.CompleteUserAuth(w, r)
	if err != nil {
		s.logger.Error("auth callback failed", "err", err)
		http.Redirect(w, r, "/?error=login_failed", http.StatusSeeOther)
		return
	}

	user := auth.User{
		ID:    gothUser.UserID,
		Email: gothUser.Email,
		Name:  gothUser.Name,
	}
	if err := s.sessions.SaveUser(w, r, user); err != nil {
		s.logger.Error("save login session", "err", err)
		http.Redirect(w, r, "/?error=login_failed", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	_ = gothic.Logout(w, r)
	if err := s.sessions.Clear(w, r); err != nil {
		s.logger.Error("clear login session", "err", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
