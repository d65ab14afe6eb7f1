package oidc

import (
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// DefaultIDLength is the default length for generated IDs, which are used for
// state and nonce parameters.  27 base64url chars encode 160 bits of
// cryptographically secure randomness, which makes collisions negligible.
const DefaultIDLength = 27

// NewID generates a ID with an optional prefix.   The ID generated is
// suitable for a State's ID or Nonce.
//
// Supported options: WithPrefix
func NewID(opt ...Option) (string, error) {
	const op = "oidc.NewID"
	opts := getIDOpts(opt...)
	data, err := uuid.GenerateRandomBytes(20)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIDGeneratorFailed)
	}
	id := base64.RawURLEncoding.EncodeToString(data)
	switch {
	case opts.withPrefix != "":
		return fmt.Sprintf("%s_%s", opts.withPrefix, id), nil
	default:
		return id, nil
	}
}

// idOptions is the set of available options for NewID
type idOptions struct {
	withPrefix string
}

// idDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func idDefaults() idOptions {
	return idOptions{}
}

// getIDOpts gets the defaults and applies the opt overrides passed in.
func getIDOpts(opt ...Option) idOptions {
	opts := idDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPrefix provides an optional prefix for a new ID.  When this options is
// provided, NewID will prepend the prefix and an underscore to the new
// identifier.
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*idOptions); ok {
			o.withPrefix = prefix
		}
	}
}
