package oidc

import "encoding/json"

// RefreshToken is an oauth2 refresh_token.  Refresh tokens are long-lived
// credentials, so the type redacts itself everywhere except when it's
// presented back to the provider via Provider.RefreshToken.
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth2
// refresh_token.
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String redacts the token, which keeps it out of log lines and %v/%s
// formatting.
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON redacts the token when it's marshaled as part of a larger
// structure.
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}
