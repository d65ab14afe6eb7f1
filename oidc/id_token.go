package oidc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// IDToken is an oidc id_token.  See
// https://openid.net/specs/openid-connect-core-1_0.html#IDToken.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// Claims retrieves the IDToken claims.  The claims are decoded from the
// token's payload without verifying its signature; see
// Provider.VerifyIDToken for verification.
func (t IDToken) Claims(claims interface{}) error {
	const op = "IDToken.Claims"
	if len(t) == 0 {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	return UnmarshalClaims(string(t), claims)
}

// UnmarshalClaims will retrieve the claims from the provided raw JWT token.
// The claims are not verified in any way.
func UnmarshalClaims(rawToken string, claims interface{}) error {
	const op = "oidc.UnmarshalClaims"
	parts := strings.Split(rawToken, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%s: malformed jwt, expected 3 parts got %d: %w", op, len(parts), ErrInvalidParameter)
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("%s: malformed jwt claims: %w", op, err)
	}
	if err := json.Unmarshal(raw, claims); err != nil {
		return fmt.Errorf("%s: unable to marshal jwt JSON: %w", op, err)
	}
	return nil
}
