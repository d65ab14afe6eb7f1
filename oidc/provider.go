package oidc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
)

// Provider provides integration with an OIDC provider using the typical
// 3-legged authorization code flow with PKCE.
//
// The provider's discovery document and JWKS are fetched once and memoized
// for the life of the Provider; create the Provider at process start and
// inject it where needed rather than keeping ambient singletons.
type Provider struct {
	config   *Config
	provider *oidc.Provider
	client   *http.Client
	logger   hclog.Logger

	// keys is the provider's JWKS, resolved from the discovered jwks_uri.
	// It is shared between VerifyIDToken and any raw-JWT verification the
	// caller wants to do via Keys().
	keys *JSONWebKeySet

	// endSessionEndpoint is the discovered RP-initiated logout endpoint,
	// empty when the provider doesn't publish one.
	endSessionEndpoint string

	mu sync.Mutex

	// backgroundCtx is the context used by the provider for background
	// activities like refreshing the remote key set.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// discoveryClaims are the extra discovery-document fields the Provider needs
// beyond what go-oidc surfaces directly.
type discoveryClaims struct {
	JWKSURL            string `json:"jwks_uri"`
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

// NewProvider creates and initializes a Provider for the OIDC authorization
// code flow.  Initializing the provider includes making an http request to
// the issuer's discovery endpoint; if that fails the Provider is unusable and
// an error wrapping ErrDiscoveryFailed is returned — callers must not proceed
// with login.
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config) (*Provider, error) {
	const op = "oidc.NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with it's background ctx/cancel will
	// allow us to use p.Done() to release any resources when returning errors
	// from this function.
	p := &Provider{
		config:              c,
		logger:              c.Logger,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}
	if p.logger == nil {
		p.logger = hclog.NewNullLogger()
	}

	client, err := NewHTTPClient(c.ProviderCA)
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	p.client = client

	provider, err := oidc.NewProvider(HTTPClientContext(p.backgroundCtx, client), c.Issuer) // makes http req to issuer for discovery
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to discover provider %q (%s): %w", op, c.Issuer, err, ErrDiscoveryFailed)
	}
	p.provider = provider

	var dc discoveryClaims
	if err := provider.Claims(&dc); err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to read discovery claims: %w", op, ErrDiscoveryFailed)
	}
	if dc.JWKSURL == "" {
		p.Done()
		return nil, fmt.Errorf("%s: discovery document has no jwks_uri: %w", op, ErrDiscoveryFailed)
	}
	p.endSessionEndpoint = dc.EndSessionEndpoint

	keys, err := NewJSONWebKeySet(p.backgroundCtx, dc.JWKSURL, c.ProviderCA)
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to create remote key set: %w", op, err)
	}
	p.keys = keys

	return p, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// Keys returns the provider's JWKS-backed KeySet, which verifies raw JWTs
// against the provider's published public keys.
func (p *Provider) Keys() KeySet { return p.keys }

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with the provider, carrying the flow state's ID as
// the oauth state parameter, its nonce, and its S256 PKCE code challenge.
//
// See NewState() to create a flow State with a valid ID, Nonce and code
// verifier that will uniquely identify the user's authentication attempt
// throughout the flow.
func (p *Provider) AuthURL(_ context.Context, s *State) (string, error) {
	const op = "Provider.AuthURL"
	if s == nil {
		return "", fmt.Errorf("%s: state is nil: %w", op, ErrNilParameter)
	}
	if s.ID() == s.Nonce() {
		return "", fmt.Errorf("%s: state id and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	if s.Verifier() == nil {
		return "", fmt.Errorf("%s: state has no code verifier: %w", op, ErrNilParameter)
	}
	if s.IsExpired() {
		return "", fmt.Errorf("%s: %w", op, ErrExpiredState)
	}

	oauth2Config := p.oauth2Config()
	authCodeOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(s.Nonce()),
		oauth2.SetAuthURLParam("code_challenge", s.Verifier().Challenge()),
		oauth2.SetAuthURLParam("code_challenge_method", string(s.Verifier().Method())),
	}
	return oauth2Config.AuthCodeURL(s.ID(), authCodeOpts...), nil
}

// Exchange will request a token from the oidc token endpoint, using the
// authorizationCode and authorizationState it received in an earlier
// successful oidc authentication response.
//
// The authorizationState is compared against the flow State's ID() before any
// network call is made; a mismatch fails with ErrResponseStateInvalid and
// must never be retried.  The exchange presents the State's PKCE code
// verifier, and the returned id_token is fully verified (signature, issuer,
// audience, expiry and nonce) before the Token is returned; an unverified
// token is never returned.
func (p *Provider) Exchange(ctx context.Context, s *State, authorizationState string, authorizationCode string) (*Token, error) {
	const op = "Provider.Exchange"
	if p.config == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if s == nil {
		return nil, fmt.Errorf("%s: state is nil: %w", op, ErrNilParameter)
	}
	if authorizationState != s.ID() {
		return nil, fmt.Errorf("%s: %w", op, ErrResponseStateInvalid)
	}
	if s.IsExpired() {
		return nil, fmt.Errorf("%s: authentication state is expired: %w", op, ErrExpiredState)
	}
	if s.Verifier() == nil {
		return nil, fmt.Errorf("%s: state has no code verifier: %w", op, ErrNilParameter)
	}
	if authorizationCode == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}

	oidcCtx := HTTPClientContext(ctx, p.client)
	oauth2Config := p.oauth2Config()

	oauth2Token, err := oauth2Config.Exchange(oidcCtx, authorizationCode,
		oauth2.SetAuthURLParam("code_verifier", s.Verifier().Verifier()),
	)
	if err != nil {
		p.logger.Error("authorization code exchange failed", "error", err)
		// an invalid or already-used code will never succeed: the caller must
		// not retry the exchange.
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w", op, ErrExchangeFailed)
	}

	idToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return nil, fmt.Errorf("%s: id_token is missing from auth code exchange: %w", op, ErrMissingIDToken)
	}
	t, err := NewToken(IDToken(idToken), oauth2Token)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create new token: %w", op, err)
	}
	if _, err := p.VerifyIDToken(ctx, t.IDToken(), s.Nonce()); err != nil {
		return nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}
	return t, nil
}

// VerifyIDToken will verify the inbound IDToken and return its claims.  It
// verifies it's been signed by the provider (via the provider's cached JWKS),
// validates the issuer, client ID, expiry and the flow nonce, and checks any
// additional audiences from the provider's config.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) VerifyIDToken(ctx context.Context, t IDToken, nonce string) (map[string]interface{}, error) {
	const op = "Provider.VerifyIDToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if nonce == "" {
		return nil, fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	algs := make([]string, 0, len(p.config.SupportedSigningAlgs))
	for _, a := range p.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	oidcConfig := &oidc.Config{
		SupportedSigningAlgs: algs,
		ClientID:             p.config.ClientID,
	}
	verifier := oidc.NewVerifier(p.config.Issuer, p.keys.remote(), oidcConfig)

	oidcIDToken, err := verifier.Verify(ctx, string(t))
	if err != nil {
		p.logger.Warn("id_token verification failed", "error", err)
		return nil, fmt.Errorf("%s: invalid id_token: %w", op, ErrIDTokenVerificationFailed)
	}

	if oidcIDToken.Nonce != nonce {
		p.logger.Warn("id_token nonce does not match the flow nonce; possible replay")
		return nil, fmt.Errorf("%s: invalid id_token nonce: %w", op, ErrInvalidNonce)
	}

	if len(p.config.Audiences) > 0 {
		found := false
		for _, v := range p.config.Audiences {
			if strListContains(oidcIDToken.Audience, v) {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%s: invalid id_token audiences: %w", op, ErrInvalidAudience)
		}
	}

	var claims map[string]interface{}
	if err := oidcIDToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to read id_token claims: %w", op, err)
	}
	return claims, nil
}

// RefreshToken uses the refresh_token grant to obtain a fresh Token from the
// provider's token endpoint.  A non-2xx response is definitive, not
// transient: a revoked or expired refresh token will never succeed, so the
// caller must clear its stored credential material rather than retry.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken RefreshToken) (*Token, error) {
	const op = "Provider.RefreshToken"
	if refreshToken == "" {
		return nil, fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}

	oidcCtx := HTTPClientContext(ctx, p.client)
	oauth2Config := p.oauth2Config()

	// an already-expired placeholder forces the token source to use the
	// refresh grant immediately.
	src := oauth2Config.TokenSource(oidcCtx, &oauth2.Token{
		RefreshToken: string(refreshToken),
		Expiry:       time.Now().Add(-1 * time.Minute),
	})
	oauth2Token, err := src.Token()
	if err != nil {
		p.logger.Warn("refresh grant failed", "error", err)
		return nil, fmt.Errorf("%s: unable to refresh token: %w", op, ErrRefreshFailed)
	}

	idToken, _ := oauth2Token.Extra("id_token").(string)
	t, err := NewToken(IDToken(idToken), oauth2Token)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create new token: %w", op, err)
	}
	return t, nil
}

// UserInfo gets the UserInfo claims from the provider using the token
// produced by the tokenSource.
func (p *Provider) UserInfo(ctx context.Context, tokenSource oauth2.TokenSource, claims interface{}) error {
	const op = "Provider.UserInfo"
	if tokenSource == nil {
		return fmt.Errorf("%s: token source is nil: %w", op, ErrNilParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	oidcCtx := HTTPClientContext(ctx, p.client)

	userinfo, err := p.provider.UserInfo(oidcCtx, tokenSource)
	if err != nil {
		return fmt.Errorf("%s: provider UserInfo request failed: %w", op, err)
	}
	if err := userinfo.Claims(claims); err != nil {
		return fmt.Errorf("%s: failed to get UserInfo claims: %w", op, err)
	}
	return nil
}

// EndSessionURL returns the provider's RP-initiated logout URL with the given
// post-logout redirect, or ErrEndSessionNotSupported when the provider's
// discovery document doesn't publish an end_session_endpoint.
func (p *Provider) EndSessionURL(postLogoutRedirectURI string) (string, error) {
	const op = "Provider.EndSessionURL"
	if p.endSessionEndpoint == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEndSessionNotSupported)
	}
	u, err := url.Parse(p.endSessionEndpoint)
	if err != nil {
		return "", fmt.Errorf("%s: end_session_endpoint is invalid: %w", op, err)
	}
	q := u.Query()
	q.Set("client_id", p.config.ClientID)
	if postLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// oauth2Config assembles the OpenID Connect aware OAuth2 client config.  The
// required "openid" scope is always included.
func (p *Provider) oauth2Config() oauth2.Config {
	scopes := append([]string{oidc.ScopeOpenID}, p.config.Scopes...)
	return oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: string(p.config.ClientSecret),
		RedirectURL:  p.config.RedirectURL,
		Endpoint:     p.provider.Endpoint(),
		Scopes:       scopes,
	}
}

// strListContains looks for a string in a list of strings.
func strListContains(haystack []string, needle string) bool {
	for _, item := range haystack {
		if item == needle {
			return true
		}
	}
	return false
}
