package oidc

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTokenExpirySkew defines a conservative default skew when checking a
// Token's expiration: a token within this window of its actual expiry is
// treated as already expired, which avoids races with in-flight requests.
const DefaultTokenExpirySkew = 60 * time.Second

// Token represents the set of tokens from a successful authorization code
// exchange or refresh: an id_token, an access_token and (provider permitting)
// a refresh_token, along with the access_token's expiry.
type Token struct {
	idToken      IDToken
	accessToken  AccessToken
	refreshToken RefreshToken
	expiry       time.Time

	// underlying is the oauth2 token the Token was derived from, kept so
	// the Token can hand out a TokenSource for userinfo requests.
	underlying *oauth2.Token
}

// NewToken creates a new Token from an id_token and the oauth2.Token returned
// by the exchange or refresh which produced it.  The id_token may be empty
// only for refresh responses, which carry at least an access_token.
func NewToken(idToken IDToken, t *oauth2.Token) (*Token, error) {
	const op = "oidc.NewToken"
	if idToken == "" && (t == nil || t.AccessToken == "") {
		return nil, fmt.Errorf("%s: both id_token and access_token are empty: %w", op, ErrInvalidParameter)
	}
	tk := &Token{
		idToken:    idToken,
		underlying: t,
	}
	if t != nil {
		tk.accessToken = AccessToken(t.AccessToken)
		tk.refreshToken = RefreshToken(t.RefreshToken)
		tk.expiry = t.Expiry
	}
	return tk, nil
}

// IDToken returns the token's id_token
func (t *Token) IDToken() IDToken { return t.idToken }

// AccessToken returns the token's access_token, which may be empty
func (t *Token) AccessToken() AccessToken { return t.accessToken }

// RefreshToken returns the token's refresh_token, which may be empty
func (t *Token) RefreshToken() RefreshToken { return t.refreshToken }

// Expiry returns the expiration of the access_token.  A zero value means the
// provider did not report an expiry.
func (t *Token) Expiry() time.Time { return t.expiry }

// IsExpired returns true if the token is expired.  A token within the expiry
// skew of its actual expiration is reported as expired.  Supports the
// WithExpirySkew option and if none is provided it will use the
// DefaultTokenExpirySkew.
func (t *Token) IsExpired(opt ...Option) bool {
	opts := getTokenOpts(opt...)
	if t.expiry.IsZero() {
		return false
	}
	return t.expiry.Round(0).Before(time.Now().Add(opts.withExpirySkew))
}

// Valid will ensure that the access_token is not empty or expired.
func (t *Token) Valid() bool {
	if t == nil {
		return false
	}
	if t.accessToken == "" {
		return false
	}
	return !t.IsExpired()
}

// StaticTokenSource returns a TokenSource that always returns the same token.
// Useful for userinfo calls, where the provider expects the access_token the
// flow just produced.
func (t *Token) StaticTokenSource() oauth2.TokenSource {
	if t == nil || t.underlying == nil {
		return nil
	}
	return oauth2.StaticTokenSource(t.underlying)
}

// tokenOptions is the set of available options for Token functions
type tokenOptions struct {
	withExpirySkew time.Duration
}

// tokenDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func tokenDefaults() tokenOptions {
	return tokenOptions{
		withExpirySkew: DefaultTokenExpirySkew,
	}
}

// getTokenOpts gets the token defaults and applies the opt overrides passed in
func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
