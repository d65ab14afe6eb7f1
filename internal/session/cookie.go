package session

import (
	"net/http"
)

const (
	// SessionCookieName holds the long-lived session token.
	SessionCookieName = "session"

	// FlowCookieName holds the in-flight login attempt token across the
	// provider redirect.
	FlowCookieName = "login_attempt"
)

// WriteSessionCookie sets the session cookie.  The cookie is httpOnly and
// SameSite=Lax; the token inside is the only credential the browser holds.
func (s *Service) WriteSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func (s *Service) ClearSessionCookie(w http.ResponseWriter) {
	s.clear(w, SessionCookieName)
}

// WriteFlowCookie sets the short-lived login attempt cookie.
func (s *Service) WriteFlowCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlowCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.flowTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearFlowCookie expires the login attempt cookie.  The flow state is
// single-use, so the callback clears it on every outcome.
func (s *Service) ClearFlowCookie(w http.ResponseWriter) {
	s.clear(w, FlowCookieName)
}

func (s *Service) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadSessionCookie returns the raw session token from the request, if any.
func ReadSessionCookie(r *http.Request) (string, bool) {
	return readCookie(r, SessionCookieName)
}

// ReadFlowCookie returns the raw login attempt token from the request, if
// any.
func ReadFlowCookie(r *http.Request) (string, bool) {
	return readCookie(r, FlowCookieName)
}

func readCookie(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
