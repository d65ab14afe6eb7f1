package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tasklist-io/tasklist/internal/session"
	"github.com/tasklist-io/tasklist/oidc"
)

// login starts a fresh authorization attempt: new single-use flow state,
// state/nonce/verifier parked in the login_attempt cookie, browser sent to
// the provider.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	st, err := oidc.NewState(s.sessions.FlowTTL())
	if err != nil {
		s.logger.Error("unable to create flow state", "error", err)
		internalError(w, r)
		return
	}
	authURL, err := s.provider.AuthURL(r.Context(), st)
	if err != nil {
		s.logger.Error("unable to build authorization URL", "error", err)
		internalError(w, r)
		return
	}
	flowToken, err := s.sessions.MintFlowState(st)
	if err != nil {
		s.logger.Error("unable to mint flow token", "error", err)
		internalError(w, r)
		return
	}
	s.sessions.WriteFlowCookie(w, flowToken)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// callback finishes the authorization attempt.  Every failure gets the same
// generic redirect; the detail stays in the server log.  The flow cookie is
// cleared on every outcome, so a reload of the callback URL starts from
// nothing instead of replaying the single-use code.
func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.sessions.ClearFlowCookie(w)
	q := r.URL.Query()

	// the user (or the provider) declined: nothing to exchange
	if err := oidc.ProviderError(q.Get("error"), q.Get("error_description")); err != nil {
		s.logger.Warn("authorization denied by provider", "error", err)
		s.loginFailed(w, r)
		return
	}

	raw, ok := session.ReadFlowCookie(r)
	if !ok {
		s.logger.Warn("callback without a login attempt in flight")
		s.loginFailed(w, r)
		return
	}
	st, err := s.sessions.VerifyFlowState(raw)
	if err != nil {
		s.logger.Warn("unable to restore flow state", "error", err)
		s.loginFailed(w, r)
		return
	}

	tk, err := s.provider.Exchange(ctx, st, q.Get("state"), q.Get("code"))
	if err != nil {
		switch {
		case errors.Is(err, oidc.ErrResponseStateInvalid):
			s.logger.Error("callback state does not match the attempt", "error", err)
		case errors.Is(err, oidc.ErrExpiredState):
			s.logger.Warn("login attempt expired", "error", err)
		case errors.Is(err, oidc.ErrInvalidNonce):
			s.logger.Error("id_token nonce does not match the attempt", "error", err)
		default:
			s.logger.Error("code exchange failed", "error", err)
		}
		s.loginFailed(w, r)
		return
	}

	var idClaims map[string]interface{}
	if err := tk.IDToken().Claims(&idClaims); err != nil {
		s.logger.Error("unable to read id_token claims", "error", err)
		s.loginFailed(w, r)
		return
	}
	identity, err := session.FromIDTokenClaims(idClaims)
	if err != nil {
		s.logger.Error("id_token claims unusable", "error", err)
		s.loginFailed(w, r)
		return
	}
	s.enrichFromUserInfo(r, tk, &identity)

	sessionToken, err := s.sessions.MintSession(identity)
	if err != nil {
		s.logger.Error("unable to mint session", "error", err)
		s.loginFailed(w, r)
		return
	}
	s.sessions.WriteSessionCookie(w, sessionToken)
	http.Redirect(w, r, "/", http.StatusFound)
}

// enrichFromUserInfo fills empty email/name from the userinfo endpoint.
// Providers routinely omit profile claims from the id_token; failure here is
// not fatal, the session just carries less.
func (s *Server) enrichFromUserInfo(r *http.Request, tk *oidc.Token, identity *session.Claims) {
	if identity.Email != "" && identity.Name != "" {
		return
	}
	var info struct {
		Email             string `json:"email"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := s.provider.UserInfo(r.Context(), tk.StaticTokenSource(), &info); err != nil {
		s.logger.Warn("userinfo fetch failed", "error", err)
		return
	}
	if identity.Email == "" {
		identity.Email = info.Email
	}
	if identity.Name == "" {
		identity.Name = info.Name
		if identity.Name == "" {
			identity.Name = info.PreferredUsername
		}
	}
}

func (s *Server) loginFailed(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/?error=login_failed", http.StatusFound)
}

// logout drops the session and, when the provider supports RP-initiated
// logout, sends the browser there to end the provider session too.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearSessionCookie(w)

	if s.baseURL != "" {
		endURL, err := s.provider.EndSessionURL(s.baseURL)
		if err == nil {
			http.Redirect(w, r, endURL, http.StatusFound)
			return
		}
		if !errors.Is(err, oidc.ErrEndSessionNotSupported) {
			s.logger.Warn("unable to build end-session URL", "error", err)
		}
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// me reports the verified identity of the current session.
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.FromContext(r.Context())
	if !ok {
		// RequireSession guards this route; a missing identity is a wiring bug
		s.logger.Error("no identity on an authenticated request")
		internalError(w, r)
		return
	}
	render.JSON(w, r, claims)
}
