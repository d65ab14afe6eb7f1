package oidc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
)

// NewHTTPClient creates a new http client which will use the optional CA
// certificate PEM if provided, otherwise it will use the installed system CA
// chain.
func NewHTTPClient(caPEM string) (*http.Client, error) {
	const op = "oidc.NewHTTPClient"
	tr := cleanhttp.DefaultPooledTransport()

	if caPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}

	return &http.Client{
		Transport: tr,
	}, nil
}

// HTTPClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key
// used by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so
// the returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}
