package session

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type
type Option func(interface{})

// options is the set of available options for Service
type options struct {
	withTTL           time.Duration
	withFlowTTL       time.Duration
	withSecureCookies bool
	withLogger        hclog.Logger
	withNowFunc       func() time.Time
}

// defaults is the default options
func defaults() options {
	return options{
		withTTL:           DefaultTTL,
		withFlowTTL:       DefaultFlowTTL,
		withSecureCookies: true,
	}
}

// getOpts gets the options and applies them
func getOpts(opt ...Option) options {
	opts := defaults()
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(&opts)
	}
	return opts
}

// WithTTL overrides the default session validity window
func WithTTL(ttl time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			if ttl > 0 {
				o.withTTL = ttl
			}
		}
	}
}

// WithFlowTTL overrides the default login attempt validity window
func WithFlowTTL(ttl time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			if ttl > 0 {
				o.withFlowTTL = ttl
			}
		}
	}
}

// WithSecureCookies controls the Secure attribute on the cookies the service
// writes.  Disable only for plain-http local development.
func WithSecureCookies(secure bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withSecureCookies = secure
		}
	}
}

// WithLogger provides a logger for the service
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withLogger = l
		}
	}
}

// WithNow provides an option to override the time source (valuable for
// testing)
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withNowFunc = now
		}
	}
}
