package oidc

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	jose "gopkg.in/square/go-jose.v2"
)

// KeySet represents a set of keys that can be used to verify the signatures
// of JWTs.  A KeySet is expected to be backed by a set of local or remote
// keys.  Keys are only ever used to verify signatures, never to sign.
type KeySet interface {
	// VerifySignature parses the given JWT, verifies its signature, and
	// returns the claims in its payload.  The given JWT must be of the JWS
	// compact serialization form.
	VerifySignature(ctx context.Context, token string) (claims map[string]interface{}, err error)
}

// JSONWebKeySet verifies JWT signatures using keys obtained from a JWKS URL.
// The remote key set is cached and, when a token carries an unknown key ID,
// refetched once before giving up (provider key rotation).
type JSONWebKeySet struct {
	remoteJWKS oidc.KeySet
}

// NewJSONWebKeySet returns a KeySet that verifies JWT signatures using keys
// from the JSON Web Key Set (JWKS) at the given jwksURL. The client used to
// obtain the remote JWKS will verify server certificates using the root
// certificates provided by jwksCAPEM, when not empty.
func NewJSONWebKeySet(ctx context.Context, jwksURL string, jwksCAPEM string) (*JSONWebKeySet, error) {
	const op = "oidc.NewJSONWebKeySet"
	if jwksURL == "" {
		return nil, fmt.Errorf("%s: jwksURL is empty: %w", op, ErrInvalidParameter)
	}
	client, err := NewHTTPClient(jwksCAPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	return &JSONWebKeySet{
		remoteJWKS: oidc.NewRemoteKeySet(HTTPClientContext(ctx, client), jwksURL),
	}, nil
}

// VerifySignature parses the given JWT, verifies its signature using JWKS
// keys, and returns the claims in its payload.
func (ks *JSONWebKeySet) VerifySignature(ctx context.Context, token string) (map[string]interface{}, error) {
	const op = "JSONWebKeySet.VerifySignature"
	payload, err := ks.remoteJWKS.VerifySignature(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to verify signature with remote jwks: %w", op, ErrInvalidSignature)
	}

	allClaims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &allClaims); err != nil {
		return nil, fmt.Errorf("%s: unable to unmarshal claims: %w", op, err)
	}
	return allClaims, nil
}

// remote returns the underlying go-oidc key set, so a Provider can share the
// cached JWKS with its id_token verifier.
func (ks *JSONWebKeySet) remote() oidc.KeySet { return ks.remoteJWKS }

// StaticKeySet verifies JWT signatures using local public keys.
type StaticKeySet struct {
	publicKeys []crypto.PublicKey
}

// NewStaticKeySet returns a KeySet that verifies JWT signatures using the
// given public keys.
func NewStaticKeySet(publicKeys []crypto.PublicKey) (*StaticKeySet, error) {
	const op = "oidc.NewStaticKeySet"
	if len(publicKeys) == 0 {
		return nil, fmt.Errorf("%s: publicKeys is empty: %w", op, ErrInvalidParameter)
	}
	return &StaticKeySet{publicKeys: publicKeys}, nil
}

// VerifySignature parses the given JWT, verifies its signature against the
// static keys, and returns the claims in its payload.  If no key verifies the
// signature, ErrUnknownKey is returned.
func (ks *StaticKeySet) VerifySignature(_ context.Context, token string) (map[string]interface{}, error) {
	const op = "StaticKeySet.VerifySignature"
	parsed, err := jose.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse jwt: %w", op, ErrInvalidParameter)
	}

	var payload []byte
	for _, key := range ks.publicKeys {
		payload, err = parsed.Verify(key)
		if err == nil {
			break
		}
	}
	if payload == nil {
		return nil, fmt.Errorf("%s: no configured key successfully verified the signature: %w", op, ErrUnknownKey)
	}

	allClaims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &allClaims); err != nil {
		return nil, fmt.Errorf("%s: unable to unmarshal claims: %w", op, err)
	}
	return allClaims, nil
}
