package httpapi

import (
	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type
type Option func(interface{})

// options is the set of available options for Server
type options struct {
	withLogger  hclog.Logger
	withBaseURL string
}

// getOpts gets the options and applies them
func getOpts(opt ...Option) options {
	var opts options
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(&opts)
	}
	return opts
}

// WithLogger provides a logger for the server
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withLogger = l
		}
	}
}

// WithBaseURL provides the externally visible base URL, used as the
// post-logout redirect target for RP-initiated logout.
func WithBaseURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withBaseURL = u
		}
	}
}
