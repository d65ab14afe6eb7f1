package oidc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrInvalidCACert              = errors.New("invalid CA certificate")
	ErrInvalidIssuer              = errors.New("invalid issuer")
	ErrIDGeneratorFailed          = errors.New("id generation failed")
	ErrDiscoveryFailed            = errors.New("provider discovery failed")
	ErrExpiredState               = errors.New("state is expired")
	ErrResponseStateInvalid       = errors.New("oidc response state and flow state are not equal")
	ErrProviderDenied             = errors.New("authentication denied by provider")
	ErrExchangeFailed             = errors.New("authorization code exchange failed")
	ErrMissingIDToken             = errors.New("id_token is missing")
	ErrIDTokenVerificationFailed  = errors.New("id_token verification failed")
	ErrInvalidSignature           = errors.New("invalid signature")
	ErrInvalidAudience            = errors.New("invalid audience")
	ErrInvalidNonce               = errors.New("invalid nonce")
	ErrRefreshFailed              = errors.New("token refresh failed")
	ErrUnknownKey                 = errors.New("unable to resolve signing key")
	ErrUnsupportedChallengeMethod = errors.New("unsupported challenge method")
	ErrEndSessionNotSupported     = errors.New("provider does not publish an end_session_endpoint")
)

// ProviderError converts an authorization error response (the "error" and
// "error_description" callback parameters) into an error wrapping
// ErrProviderDenied.  It returns nil when the code is empty, so callers can
// feed it the raw query values.  A denial is terminal for the flow: the only
// recovery is a brand new authentication attempt.
func ProviderError(code, description string) error {
	const op = "oidc.ProviderError"
	switch {
	case code == "":
		return nil
	case description != "":
		return fmt.Errorf("%s: %s (%s): %w", op, code, description, ErrProviderDenied)
	default:
		return fmt.Errorf("%s: %s: %w", op, code, ErrProviderDenied)
	}
}
