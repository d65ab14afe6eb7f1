// Package oidc provides the OpenID Connect relying-party core used by the
// tasklist backend: authorization code flow with PKCE (S256), state/nonce
// anti-forgery values, provider discovery, JWKS-based id_token verification,
// token refresh and RP-initiated logout.
//
// Primary types provided by the package
//
// * State: represents one OIDC authentication flow for a user.  It contains
// the data needed to uniquely represent that one-time flow across the
// multiple interactions needed to complete it: an opaque ID (the oauth
// "state" parameter), a nonce, a PKCE code verifier and an expiration.
//
// * Token: represents an OIDC id_token, as well as an Oauth2 access_token and
// refresh_token (including the the access_token expiry).  All tokens redact
// themselves when printed or marshaled, so they can never leak through logs.
//
// * Config: provides the configuration for a typical 3-legged OIDC
// authorization code flow (for example: client ID/Secret, redirectURL,
// supported signing algorithms, additional scopes requested, etc).
//
// * Provider: provides integration with an OIDC provider.  The provider
// provides capabilities like: generating an auth URL, exchanging codes for
// tokens, verifying tokens, refreshing tokens, making user info requests,
// etc.
//
// The package includes a TestProvider: an in-process provider which supports
// the full flow (discovery, JWKS, PKCE-checked token exchange, refresh
// grants, end-session) so integrations can be tested without any network.
package oidc
