package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// ChallengeMethod represents PKCE code challenge methods as defined by RFC
// 7636.
type ChallengeMethod string

const (
	// PKCE code challenge methods as defined by RFC 7636.
	S256 ChallengeMethod = "S256" // SHA-256
)

// verifierLen is the length of a generated code verifier: 43 base64url chars
// encoding 32 bytes (256 bits) of randomness, which is also RFC 7636's
// minimum verifier length.
const verifierLen = 43

// CodeVerifier represents an OAuth PKCE code verifier and its derived
// challenge.  See RFC 7636.  It must never be logged or persisted beyond the
// single flow it was created for.
type CodeVerifier struct {
	verifier  string
	method    ChallengeMethod
	challenge string
}

// NewCodeVerifier creates a new CodeVerifier with a cryptographically random
// verifier and its S256 challenge.
func NewCodeVerifier() (*CodeVerifier, error) {
	const op = "oidc.NewCodeVerifier"
	data, err := uuid.GenerateRandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate pkce verifier data: %w", op, ErrIDGeneratorFailed)
	}
	v := &CodeVerifier{
		verifier: base64.RawURLEncoding.EncodeToString(data),
		method:   S256,
	}
	challenge, err := CreateCodeChallenge(v.method, v)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create code challenge: %w", op, err)
	}
	v.challenge = challenge
	return v, nil
}

// RestoreCodeVerifier recreates a CodeVerifier from a previously generated
// verifier string, so a flow can resume after a redirect when the verifier
// was held in a flow-scoped store.
func RestoreCodeVerifier(verifier string) (*CodeVerifier, error) {
	const op = "oidc.RestoreCodeVerifier"
	if len(verifier) < verifierLen {
		return nil, fmt.Errorf("%s: verifier is shorter than %d chars: %w", op, verifierLen, ErrInvalidParameter)
	}
	v := &CodeVerifier{
		verifier: verifier,
		method:   S256,
	}
	challenge, err := CreateCodeChallenge(v.method, v)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create code challenge: %w", op, err)
	}
	v.challenge = challenge
	return v, nil
}

// Verifier returns the verifier string
func (v *CodeVerifier) Verifier() string { return v.verifier }

// Method returns the pkce challenge method (S256)
func (v *CodeVerifier) Method() ChallengeMethod { return v.method }

// Challenge returns the code challenge derived from the verifier
func (v *CodeVerifier) Challenge() string { return v.challenge }

// Copy a CodeVerifier
func (v *CodeVerifier) Copy() *CodeVerifier {
	return &CodeVerifier{
		verifier:  v.verifier,
		method:    v.method,
		challenge: v.challenge,
	}
}

// CreateCodeChallenge creates a code challenge from the verifier. The
// resulting challenge is deterministic for a given verifier and is base64url
// encoded without padding (no '+', '/' or '=' chars).
//
// Only the S256 challenge method is supported ("plain" is intentionally
// unsupported).
func CreateCodeChallenge(m ChallengeMethod, v *CodeVerifier) (string, error) {
	const op = "oidc.CreateCodeChallenge"
	if v == nil {
		return "", fmt.Errorf("%s: code verifier is nil: %w", op, ErrNilParameter)
	}
	switch m {
	case S256:
		h := sha256.New()
		_, _ = h.Write([]byte(v.verifier)) // hash documents that Write will never return an error
		return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
	default:
		return "", fmt.Errorf("%s: %s: %w", op, m, ErrUnsupportedChallengeMethod)
	}
}
