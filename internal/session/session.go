// Package session issues and verifies the backend's own signed session
// tokens.  After the OIDC flow completes server-side, the only credential the
// browser ever holds is an HS256-signed JWT carrying the user's identity
// claims, delivered via an httpOnly cookie.  The same signer also protects
// the short-lived login-attempt cookie that carries the flow's state, nonce
// and PKCE verifier across the provider redirect.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"

	"github.com/tasklist-io/tasklist/oidc"
)

const (
	// DefaultTTL is the fixed validity window for a session token.  There is
	// no sliding renewal: when the window passes the user signs in again.
	DefaultTTL = 30 * 24 * time.Hour

	// DefaultFlowTTL bounds how long a login attempt may take between the
	// redirect to the provider and the callback.
	DefaultFlowTTL = 5 * time.Minute

	// defaultIssuer is the iss claim for tokens this service mints.
	defaultIssuer = "tasklist"

	// minSecretLen is the minimum signing secret length in bytes.  HS256
	// secrets below the hash size weaken the MAC.
	minSecretLen = 32
)

var (
	ErrInvalidSecret = errors.New("invalid signing secret")

	// ErrInvalidSession covers every session verification failure: a session
	// token is either fully valid or treated as absent, so callers get no
	// detail to act on.
	ErrInvalidSession = errors.New("invalid session")

	// ErrInvalidFlowState covers every login-attempt verification failure.
	ErrInvalidFlowState = errors.New("invalid login attempt state")
)

// SigningSecret is the symmetric secret used to sign session tokens
type SigningSecret string

// RedactedSigningSecret is the redacted string or json for a signing secret
const RedactedSigningSecret = "[REDACTED: signing secret]"

// String will redact the secret
func (s SigningSecret) String() string {
	return RedactedSigningSecret
}

// MarshalJSON will redact the secret
func (s SigningSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedSigningSecret)
}

// Claims is the application's notion of "current user", decoded from a
// verified token.  Subject is the only field guaranteed stable across
// sessions; Email and Name are display conveniences and may be empty.
type Claims struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

// FromIDTokenClaims maps verified id_token claims to session Claims.  The
// name falls back to preferred_username when the provider doesn't supply a
// name claim.  An empty sub is rejected: it is the one claim the application
// depends on.
func FromIDTokenClaims(idClaims map[string]interface{}) (Claims, error) {
	const op = "session.FromIDTokenClaims"
	str := func(key string) string {
		if v, ok := idClaims[key].(string); ok {
			return v
		}
		return ""
	}
	c := Claims{
		Subject: str("sub"),
		Email:   str("email"),
		Name:    str("name"),
	}
	if c.Name == "" {
		c.Name = str("preferred_username")
	}
	if c.Subject == "" {
		return Claims{}, fmt.Errorf("%s: id_token has an empty sub claim: %w", op, ErrInvalidSession)
	}
	return c, nil
}

// Service mints and verifies the application's signed tokens.  Create one at
// process start and inject it; it holds no mutable state.
type Service struct {
	secret  []byte
	ttl     time.Duration
	flowTTL time.Duration
	issuer  string
	secure  bool
	logger  hclog.Logger
	nowFunc func() time.Time
}

// NewService creates a session Service using the given signing secret.
//
// Supported options: WithTTL, WithFlowTTL, WithSecureCookies, WithLogger,
// WithNow
func NewService(secret SigningSecret, opt ...Option) (*Service, error) {
	const op = "session.NewService"
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("%s: signing secret must be at least %d bytes: %w", op, minSecretLen, ErrInvalidSecret)
	}
	opts := getOpts(opt...)
	s := &Service{
		secret:  []byte(secret),
		ttl:     opts.withTTL,
		flowTTL: opts.withFlowTTL,
		issuer:  defaultIssuer,
		secure:  opts.withSecureCookies,
		logger:  opts.withLogger,
		nowFunc: opts.withNowFunc,
	}
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}
	return s, nil
}

// TTL returns the fixed session validity window
func (s *Service) TTL() time.Duration { return s.ttl }

// FlowTTL returns the login attempt validity window
func (s *Service) FlowTTL() time.Duration { return s.flowTTL }

// MintSession mints a signed session token embedding only the identity
// claims, with the service's fixed validity window.
func (s *Service) MintSession(c Claims) (string, error) {
	const op = "Service.MintSession"
	if c.Subject == "" {
		return "", fmt.Errorf("%s: subject is empty: %w", op, ErrInvalidSession)
	}
	now := s.now()
	std := jwt.Claims{
		Issuer:   s.issuer,
		Subject:  c.Subject,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(s.ttl)),
	}
	private := struct {
		Email string `json:"email,omitempty"`
		Name  string `json:"name,omitempty"`
	}{
		Email: c.Email,
		Name:  c.Name,
	}
	raw, err := s.sign(std, private)
	if err != nil {
		return "", fmt.Errorf("%s: unable to sign session token: %w", op, err)
	}
	return raw, nil
}

// VerifySession verifies a raw session token and returns its identity
// claims.  Verification is all-or-nothing: alg pinning, signature, issuer and
// expiry must all hold or the session is treated as absent.
func (s *Service) VerifySession(raw string) (Claims, error) {
	const op = "Service.VerifySession"
	var private struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	std, err := s.verify(raw, &private)
	if err != nil {
		s.logger.Debug("session token rejected", "error", err)
		return Claims{}, fmt.Errorf("%s: %w", op, ErrInvalidSession)
	}
	if std.Subject == "" {
		return Claims{}, fmt.Errorf("%s: token has an empty sub claim: %w", op, ErrInvalidSession)
	}
	return Claims{
		Subject: std.Subject,
		Email:   private.Email,
		Name:    private.Name,
	}, nil
}

// flowClaims is the private claim set of a login-attempt token.
type flowClaims struct {
	State    string `json:"st"`
	Nonce    string `json:"n"`
	Verifier string `json:"v"`
}

// MintFlowState signs the flow's state id, nonce and PKCE verifier into a
// short-lived token so the callback can restore the single-use flow state.
func (s *Service) MintFlowState(st *oidc.State) (string, error) {
	const op = "Service.MintFlowState"
	if st == nil {
		return "", fmt.Errorf("%s: state is nil: %w", op, ErrInvalidFlowState)
	}
	now := s.now()
	std := jwt.Claims{
		Issuer:   s.issuer,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(st.Expiration()),
	}
	raw, err := s.sign(std, flowClaims{
		State:    st.ID(),
		Nonce:    st.Nonce(),
		Verifier: st.Verifier().Verifier(),
	})
	if err != nil {
		return "", fmt.Errorf("%s: unable to sign flow token: %w", op, err)
	}
	return raw, nil
}

// VerifyFlowState verifies a raw login-attempt token and restores the flow
// State it carries.
func (s *Service) VerifyFlowState(raw string) (*oidc.State, error) {
	const op = "Service.VerifyFlowState"
	var fc flowClaims
	std, err := s.verify(raw, &fc)
	if err != nil {
		s.logger.Debug("flow token rejected", "error", err)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidFlowState)
	}
	verifier, err := oidc.RestoreCodeVerifier(fc.Verifier)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidFlowState)
	}
	st, err := oidc.RestoreState(fc.State, fc.Nonce, verifier, std.Expiry.Time())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidFlowState)
	}
	return st, nil
}

// sign bundles the claim sets into an HS256-signed compact JWT.
func (s *Service) sign(std jwt.Claims, private interface{}) (string, error) {
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: s.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}
	return jwt.Signed(sig).Claims(std).Claims(private).CompactSerialize()
}

// verify checks the raw token's alg, signature, issuer and expiry, filling
// private with the custom claims.  Callers wrap the returned error with their
// own all-or-nothing sentinel.
func (s *Service) verify(raw string, private interface{}) (*jwt.Claims, error) {
	tok, err := jwt.ParseSigned(raw)
	if err != nil {
		return nil, err
	}
	// only the alg this service mints is acceptable
	if len(tok.Headers) != 1 || tok.Headers[0].Algorithm != string(jose.HS256) {
		return nil, fmt.Errorf("unexpected signing algorithm")
	}
	var std jwt.Claims
	if err := tok.Claims(s.secret, &std, private); err != nil {
		return nil, err
	}
	if err := std.Validate(jwt.Expected{
		Issuer: s.issuer,
		Time:   s.now(),
	}); err != nil {
		return nil, err
	}
	return &std, nil
}

// now returns the current time using the optional nowFunc
func (s *Service) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}
