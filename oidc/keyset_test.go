package oidc

import (
	"context"
	"crypto"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2/jwt"
)

func TestStaticKeySet_VerifySignature(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pub, priv := TestGenerateKeys(t)

	claims := jwt.Claims{
		Subject: "alice",
		Issuer:  "https://accounts.example.com",
		Expiry:  jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token := TestSignJWT(t, priv, claims, map[string]interface{}{"email": "alice@example.com"})

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ks, err := NewStaticKeySet([]crypto.PublicKey{TestParsePublicKey(t, pub)})
		require.NoError(err)
		got, err := ks.VerifySignature(ctx, token)
		require.NoError(err)
		assert.Equal("alice", got["sub"])
		assert.Equal("alice@example.com", got["email"])
	})
	t.Run("wrong-key", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		otherPub, _ := TestGenerateKeys(t)
		ks, err := NewStaticKeySet([]crypto.PublicKey{TestParsePublicKey(t, otherPub)})
		require.NoError(err)
		got, err := ks.VerifySignature(ctx, token)
		require.Error(err)
		assert.Nil(got)
		assert.Truef(errors.Is(err, ErrUnknownKey), "wanted \"%s\" but got \"%s\"", ErrUnknownKey, err)
	})
	t.Run("not-a-jwt", func(t *testing.T) {
		require := require.New(t)
		ks, err := NewStaticKeySet([]crypto.PublicKey{TestParsePublicKey(t, pub)})
		require.NoError(err)
		_, err = ks.VerifySignature(ctx, "not-a-jwt")
		require.Error(err)
		require.True(errors.Is(err, ErrInvalidParameter))
	})
	t.Run("no-keys", func(t *testing.T) {
		require := require.New(t)
		_, err := NewStaticKeySet(nil)
		require.Error(err)
		require.True(errors.Is(err, ErrInvalidParameter))
	})
}

func TestNewJSONWebKeySet(t *testing.T) {
	t.Parallel()
	t.Run("missing-url", func(t *testing.T) {
		require := require.New(t)
		_, err := NewJSONWebKeySet(context.Background(), "", "")
		require.Error(err)
		require.True(errors.Is(err, ErrInvalidParameter))
	})
	t.Run("verifies-against-provider-jwks", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		_, priv := tp.SigningKeys()

		ks, err := NewJSONWebKeySet(context.Background(), tp.Addr()+"/certs", tp.CACert())
		require.NoError(err)

		token := TestSignJWT(t, priv, jwt.Claims{
			Subject: "alice",
			Expiry:  jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}, nil)
		got, err := ks.VerifySignature(context.Background(), token)
		require.NoError(err)
		assert.Equal("alice", got["sub"])
	})
	t.Run("invalid-jwks-data", func(t *testing.T) {
		require := require.New(t)
		tp := StartTestProvider(t)
		tp.InvalidJWKS()
		_, priv := tp.SigningKeys()

		ks, err := NewJSONWebKeySet(context.Background(), tp.Addr()+"/certs", tp.CACert())
		require.NoError(err)

		token := TestSignJWT(t, priv, jwt.Claims{Subject: "alice"}, nil)
		_, err = ks.VerifySignature(context.Background(), token)
		require.Error(err)
		require.True(errors.Is(err, ErrInvalidSignature))
	})
}
