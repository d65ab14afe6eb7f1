package oidc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestGenerateKeys will generate a test ECDSA P-256 pub/priv key pair,
// PEM-encoded.
func TestGenerateKeys(t *testing.T) (pub, priv string) {
	t.Helper()
	require := require.New(t)
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)

	{
		derBytes, err := x509.MarshalECPrivateKey(privateKey)
		require.NoError(err)

		pemBlock := &pem.Block{
			Type:  "EC PRIVATE KEY",
			Bytes: derBytes,
		}
		priv = string(pem.EncodeToMemory(pemBlock))
	}
	{
		derBytes, err := x509.MarshalPKIXPublicKey(privateKey.Public())
		require.NoError(err)

		pemBlock := &pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: derBytes,
		}
		pub = string(pem.EncodeToMemory(pemBlock))
	}

	return pub, priv
}

// TestSignJWT will bundle the provided claims into a test signed JWT. The
// provided key must be a PEM-encoded ECDSA private key.
func TestSignJWT(t *testing.T, ecdsaPrivKeyPEM string, claims jwt.Claims, privateClaims interface{}) string {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(ecdsaPrivKeyPEM))
	require.NotNil(block)
	key, err := x509.ParseECPrivateKey(block.Bytes)
	require.NoError(err)

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(err)

	builder := jwt.Signed(sig).Claims(claims)
	if privateClaims != nil {
		// go-jose rejects a nil claims value outright
		builder = builder.Claims(privateClaims)
	}
	raw, err := builder.CompactSerialize()
	require.NoError(err)

	return raw
}

// TestParsePublicKey parses a PEM-encoded public key generated by
// TestGenerateKeys.
func TestParsePublicKey(t *testing.T, pubPEM string) interface{} {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubPEM))
	require.NotNil(block)
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)
	return pub
}
