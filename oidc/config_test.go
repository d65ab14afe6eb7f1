package oidc

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := NewConfig(
			"https://accounts.example.com",
			"client-id", "client-secret",
			[]Alg{RS256, ES256},
			"https://app.example.com/api/auth/callback",
			WithScopes("email", "profile"),
			WithAudiences("client-id"),
			WithLogger(hclog.NewNullLogger()),
		)
		require.NoError(err)
		assert.Equal("https://accounts.example.com", c.Issuer)
		assert.Equal([]string{"email", "profile"}, c.Scopes)
		assert.Equal([]Alg{RS256, ES256}, c.SupportedSigningAlgs)
	})
	t.Run("secret-is-redacted", func(t *testing.T) {
		assert := assert.New(t)
		secret := ClientSecret("super secret")
		assert.Equal(RedactedClientSecret, secret.String())
		got, err := secret.MarshalJSON()
		require.NoError(t, err)
		assert.NotContains(string(got), "super secret")
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	valid := func() *Config {
		return &Config{
			ClientID:             "client-id",
			ClientSecret:         "client-secret",
			Issuer:               "https://accounts.example.com",
			SupportedSigningAlgs: []Alg{RS256},
			RedirectURL:          "https://app.example.com/api/auth/callback",
		}
	}
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantIsErr error
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing-client-id", mutate: func(c *Config) { c.ClientID = "" }, wantIsErr: ErrInvalidParameter},
		{name: "missing-client-secret", mutate: func(c *Config) { c.ClientSecret = "" }, wantIsErr: ErrInvalidParameter},
		{name: "missing-issuer", mutate: func(c *Config) { c.Issuer = "" }, wantIsErr: ErrInvalidParameter},
		{name: "bad-issuer-scheme", mutate: func(c *Config) { c.Issuer = "ldap://accounts.example.com" }, wantIsErr: ErrInvalidIssuer},
		{name: "missing-redirect", mutate: func(c *Config) { c.RedirectURL = "" }, wantIsErr: ErrInvalidParameter},
		{name: "no-algs", mutate: func(c *Config) { c.SupportedSigningAlgs = nil }, wantIsErr: ErrInvalidParameter},
		{name: "bad-alg", mutate: func(c *Config) { c.SupportedSigningAlgs = []Alg{"HS256"} }, wantIsErr: ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantIsErr == nil {
				require.NoError(err)
				return
			}
			require.Error(err)
			assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
		})
	}
	t.Run("nil-config", func(t *testing.T) {
		var c *Config
		err := c.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNilParameter))
	})
	t.Run("reports-all-problems", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := &Config{}
		err := c.Validate()
		require.Error(err)
		// every missing field shows up, not just the first.
		for _, want := range []string{"client id", "client secret", "issuer", "redirect URL", "supported algorithms"} {
			assert.Contains(err.Error(), want)
		}
	})
}
