package session

import (
	"context"
	"net/http"

	"github.com/go-chi/render"
)

type contextKey int

const claimsKey contextKey = 0

// WithClaims returns a context carrying the request's verified identity.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// FromContext returns the verified identity stored by RequireSession.
func FromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}

// RequireSession is middleware that rejects any request without a valid
// session cookie.  A missing, malformed, tampered or expired token all get
// the same answer: 401 with a generic body, no hint which failed.
func (s *Service) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := ReadSessionCookie(r)
		if !ok {
			unauthorized(w, r)
			return
		}
		claims, err := s.VerifySession(raw)
		if err != nil {
			unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, map[string]string{"error": "unauthorized"})
}
