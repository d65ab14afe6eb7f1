package oidc

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// ClientSecret is a relying party client secret
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config represents the configuration for a typical 3-legged OIDC
// authorization code flow.
type Config struct {
	// ClientID is the relying party ID
	ClientID string

	// ClientSecret is the relying party secret.  It is required: the code
	// exchange happens server-side, where a secret can be kept confidential.
	ClientSecret ClientSecret

	// Scopes is a list of additional oidc scopes to request of the provider.
	// The required "openid" scope is always requested and should not be part
	// of this optional list.
	Scopes []string

	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.
	Issuer string

	// SupportedSigningAlgs is a list of supported signing algorithms. List of
	// currently supported algs: RS256, RS384, RS512, ES256, ES384, ES512,
	// PS256, PS384, PS512, EdDSA
	SupportedSigningAlgs []Alg

	// RedirectURL is the URL where the provider will redirect responses to
	// authentication requests.
	RedirectURL string

	// Audiences is an optional list of case-sensitive strings used when
	// verifying an id_token's "aud" claim
	Audiences []string

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string

	// Logger is an optional hclog.Logger.  When nil, the provider is silent.
	Logger hclog.Logger
}

// NewConfig composes a new config for a provider.
//
// Supported options: WithScopes, WithAudiences, WithProviderCA, WithLogger
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, supported []Alg, redirectURL string, opt ...Option) (*Config, error) {
	const op = "oidc.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:               issuer,
		ClientID:             clientID,
		ClientSecret:         clientSecret,
		SupportedSigningAlgs: supported,
		RedirectURL:          redirectURL,
		Scopes:               opts.withScopes,
		Audiences:            opts.withAudiences,
		ProviderCA:           opts.withProviderCA,
		Logger:               opts.withLogger,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration.  Among other validations, it verifies
// the issuer is not empty, but it doesn't verify the Issuer is discoverable
// via an http request.  All problems found are reported, not just the first.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client secret is empty: %w", op, ErrInvalidParameter))
	}
	if c.RedirectURL == "" {
		result = multierror.Append(result, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter))
	}
	switch {
	case c.Issuer == "":
		result = multierror.Append(result, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter))
	default:
		u, err := url.Parse(c.Issuer)
		switch {
		case err != nil:
			result = multierror.Append(result, fmt.Errorf("%s: issuer %q is invalid (%s): %w", op, c.Issuer, err, ErrInvalidIssuer))
		case u.Scheme != "https" && u.Scheme != "http":
			result = multierror.Append(result, fmt.Errorf("%s: issuer %q scheme is not http or https: %w", op, c.Issuer, ErrInvalidIssuer))
		}
	}
	if len(c.SupportedSigningAlgs) == 0 {
		result = multierror.Append(result, fmt.Errorf("%s: supported algorithms is empty: %w", op, ErrInvalidParameter))
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			result = multierror.Append(result, fmt.Errorf("%s: unsupported algorithm %q: %w", op, a, ErrInvalidParameter))
		}
	}
	return result.ErrorOrNil()
}

// configOptions is the set of available options
type configOptions struct {
	withScopes     []string
	withAudiences  []string
	withProviderCA string
	withLogger     hclog.Logger
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of scopes for the provider's config
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithAudiences provides an optional list of audiences for the provider's
// config
func WithAudiences(auds ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudiences = auds
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithLogger provides an optional logger for the provider's config
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogger = l
		}
	}
}
