package oidc

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedirectURL = "https://example.com/callback"

func testNewProvider(t *testing.T, tp *TestProvider) *Provider {
	t.Helper()
	require := require.New(t)

	tp.SetClientCreds("test-client-id", "test-client-secret")
	tp.SetAllowedRedirectURIs([]string{testRedirectURL})

	c, err := NewConfig(
		tp.Addr(),
		"test-client-id",
		"test-client-secret",
		[]Alg{ES256},
		testRedirectURL,
		WithScopes("email", "profile"),
		WithProviderCA(tp.CACert()),
	)
	require.NoError(err)

	p, err := NewProvider(c)
	require.NoError(err)
	t.Cleanup(p.Done)
	return p
}

func TestNewProvider(t *testing.T) {
	t.Parallel()
	t.Run("valid", func(t *testing.T) {
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)
		require.NotNil(t, p.Keys())
	})
	t.Run("nil-config", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p, err := NewProvider(nil)
		require.Error(err)
		assert.Nil(p)
		assert.True(errors.Is(err, ErrNilParameter))
	})
	t.Run("invalid-config", func(t *testing.T) {
		require := require.New(t)
		_, err := NewProvider(&Config{})
		require.Error(err)
		require.True(errors.Is(err, ErrInvalidParameter))
	})
	t.Run("discovery-failure", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		// nothing is served under this path, so discovery 404s
		c, err := NewConfig(tp.Addr()+"/not-an-issuer", "test-client-id", "test-client-secret",
			[]Alg{ES256}, testRedirectURL, WithProviderCA(tp.CACert()))
		require.NoError(err)
		p, err := NewProvider(c)
		require.Error(err)
		assert.Nil(p)
		assert.Truef(errors.Is(err, ErrDiscoveryFailed), "wanted \"%s\" but got \"%s\"", ErrDiscoveryFailed, err)
	})
}

func TestProvider_AuthURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp := StartTestProvider(t)
	p := testNewProvider(t, tp)

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, err := NewState(1 * time.Minute)
		require.NoError(err)

		authURL, err := p.AuthURL(ctx, s)
		require.NoError(err)

		u, err := url.Parse(authURL)
		require.NoError(err)
		assert.Equal("/auth", u.Path)
		q := u.Query()
		assert.Equal("code", q.Get("response_type"))
		assert.Equal("test-client-id", q.Get("client_id"))
		assert.Equal(testRedirectURL, q.Get("redirect_uri"))
		assert.Equal(s.ID(), q.Get("state"))
		assert.Equal(s.Nonce(), q.Get("nonce"))
		assert.Equal(s.Verifier().Challenge(), q.Get("code_challenge"))
		assert.Equal("S256", q.Get("code_challenge_method"))
		assert.Contains(q.Get("scope"), "openid")
		assert.Contains(q.Get("scope"), "email")
	})
	t.Run("nil-state", func(t *testing.T) {
		require := require.New(t)
		_, err := p.AuthURL(ctx, nil)
		require.Error(err)
		require.True(errors.Is(err, ErrNilParameter))
	})
	t.Run("expired-state", func(t *testing.T) {
		require := require.New(t)
		s, err := NewState(1 * time.Nanosecond)
		require.NoError(err)
		_, err = p.AuthURL(ctx, s)
		require.Error(err)
		require.True(errors.Is(err, ErrExpiredState))
	})
}

func TestProvider_Exchange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)
		tp.SetExpectedAuthCode("test-code")
		tp.SetCustomClaims(map[string]interface{}{
			"email": "alice@example.com",
			"name":  "Alice Example",
		})

		s, err := NewState(1 * time.Minute)
		require.NoError(err)
		tp.SetExpectedAuthNonce(s.Nonce())
		tp.SetExpectedCodeChallenge(s.Verifier().Challenge())

		tk, err := p.Exchange(ctx, s, s.ID(), "test-code")
		require.NoError(err)
		require.NotNil(tk)
		assert.NotEmpty(tk.IDToken())
		assert.True(tk.Valid())

		var claims map[string]interface{}
		require.NoError(tk.IDToken().Claims(&claims))
		assert.Equal("alice@example.com", claims["email"])
		assert.Equal(s.Nonce(), claims["nonce"])
	})
	t.Run("state-mismatch-makes-no-network-call", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)
		tp.SetExpectedAuthCode("test-code")

		s, err := NewState(1 * time.Minute)
		require.NoError(err)

		tk, err := p.Exchange(ctx, s, "attacker-forged-state", "test-code")
		require.Error(err)
		assert.Nil(tk)
		assert.Truef(errors.Is(err, ErrResponseStateInvalid), "wanted \"%s\" but got \"%s\"", ErrResponseStateInvalid, err)
		assert.Equal(0, tp.CallCount("/token"))
	})
	t.Run("expired-state-makes-no-network-call", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)
		tp.SetExpectedAuthCode("test-code")

		s, err := NewState(1 * time.Nanosecond)
		require.NoError(err)

		_, err = p.Exchange(ctx, s, s.ID(), "test-code")
		require.Error(err)
		assert.True(errors.Is(err, ErrExpiredState))
		assert.Equal(0, tp.CallCount("/token"))
	})
	t.Run("wrong-code", func(t *testing.T) {
		require := require.New(t)
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)
		tp.SetExpectedAuthCode("test-code")

		s, err := NewState(1 * time.Minute)
		require.NoError(err)

		_, err = p.Exchange(ctx, s, s.ID(), "a-previously-used-code")
		require.Error(err)
		require.True(errors.Is(err, ErrExchangeFailed))
	})
	t.Run("nonce-mismatch-establishes-nothing", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)
		tp.SetExpectedAuthCode("test-code")
		tp.SetNonceOverride("replayed-nonce")

		s, err := NewState(1 * time.Minute)
		require.NoError(err)

		tk, err := p.Exchange(ctx, s, s.ID(), "test-code")
		require.Error(err)
		assert.Nil(tk)
		assert.Truef(errors.Is(err, ErrInvalidNonce), "wanted \"%s\" but got \"%s\"", ErrInvalidNonce, err)
	})
	t.Run("missing-id-token", func(t *testing.T) {
		require := require.New(t)
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)
		tp.SetExpectedAuthCode("test-code")
		tp.OmitIDTokens()

		s, err := NewState(1 * time.Minute)
		require.NoError(err)

		_, err = p.Exchange(ctx, s, s.ID(), "test-code")
		require.Error(err)
		require.True(errors.Is(err, ErrMissingIDToken))
	})
	t.Run("wrong-audience", func(t *testing.T) {
		require := require.New(t)
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)
		tp.SetExpectedAuthCode("test-code")
		tp.SetCustomAudience("some-other-client")

		s, err := NewState(1 * time.Minute)
		require.NoError(err)

		_, err = p.Exchange(ctx, s, s.ID(), "test-code")
		require.Error(err)
		require.True(errors.Is(err, ErrIDTokenVerificationFailed))
	})
	t.Run("expired-id-token", func(t *testing.T) {
		require := require.New(t)
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)
		tp.SetExpectedAuthCode("test-code")
		tp.SetReplyExpiry(-1 * time.Minute)

		s, err := NewState(1 * time.Minute)
		require.NoError(err)

		_, err = p.Exchange(ctx, s, s.ID(), "test-code")
		require.Error(err)
		require.True(errors.Is(err, ErrIDTokenVerificationFailed))
	})
}

func TestProvider_RefreshToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)

		tk, err := p.RefreshToken(ctx, "test-refresh-token")
		require.NoError(err)
		assert.True(tk.Valid())
		assert.Equal(1, tp.CallCount("/token"))
	})
	t.Run("revoked-refresh-token-is-definitive", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)

		tk, err := p.RefreshToken(ctx, "revoked-refresh-token")
		require.Error(err)
		assert.Nil(tk)
		assert.Truef(errors.Is(err, ErrRefreshFailed), "wanted \"%s\" but got \"%s\"", ErrRefreshFailed, err)
	})
	t.Run("empty-refresh-token", func(t *testing.T) {
		require := require.New(t)
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)

		_, err := p.RefreshToken(ctx, "")
		require.Error(err)
		require.True(errors.Is(err, ErrInvalidParameter))
		require.Equal(0, tp.CallCount("/token"))
	})
}

func TestProvider_UserInfo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)
		tp.SetExpectedAuthCode("test-code")

		s, err := NewState(1 * time.Minute)
		require.NoError(err)
		tp.SetExpectedAuthNonce(s.Nonce())

		tk, err := p.Exchange(ctx, s, s.ID(), "test-code")
		require.NoError(err)

		var claims map[string]interface{}
		err = p.UserInfo(ctx, tk.StaticTokenSource(), &claims)
		require.NoError(err)
		assert.Equal("alice@example.com", claims["email"])
	})
	t.Run("nil-token-source", func(t *testing.T) {
		require := require.New(t)
		tp := StartTestProvider(t)
		p := testNewProvider(t, tp)
		err := p.UserInfo(ctx, nil, &map[string]interface{}{})
		require.Error(err)
		require.True(errors.Is(err, ErrNilParameter))
	})
}

func TestProvider_EndSessionURL(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	p := testNewProvider(t, tp)

	got, err := p.EndSessionURL("https://example.com/")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/logout", u.Path)
	assert.Equal(t, "https://example.com/", u.Query().Get("post_logout_redirect_uri"))
	assert.Equal(t, "test-client-id", u.Query().Get("client_id"))
}
