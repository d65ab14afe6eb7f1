package oidc

import (
	"fmt"
	"time"
)

// State represents one OIDC authentication flow for a user. It contains the
// data needed to uniquely represent that one-time flow across the multiple
// interactions needed to complete it.  ID() is passed throughout the OIDC
// interactions (as the oauth "state" parameter) to uniquely identify the
// flow's state.  The ID() and Nonce() cannot be equal and will be used during
// the flow to prevent CSRF and replay attacks (see the oidc spec for
// specifics).
//
// A State is single-use: it is created when a login starts and must be
// discarded once the flow completes or fails.
type State struct {
	// id is a unique identifier and an opaque value used to maintain state
	// between the oidc request and the callback.
	id string

	// nonce is a unique value used to associate the flow with the id_token
	// the provider returns for it.
	nonce string

	// verifier is the PKCE code verifier/challenge pair bound to the flow.
	verifier *CodeVerifier

	// expiration is the expiration time for the State
	expiration time.Time

	// nowFunc is an optional function that returns the current time
	nowFunc func() time.Time
}

// DefaultStateExpirySkew defines a default time skew when checking a State's
// expiration.
const DefaultStateExpirySkew = 1 * time.Second

// NewState creates a new State with a generated ID, nonce and PKCE verifier.
// The expireIn bounds how long the user has to complete the flow; the
// callback must reject callbacks for expired states.
//
// Supported options: WithNow
func NewState(expireIn time.Duration, opt ...Option) (*State, error) {
	const op = "oidc.NewState"
	opts := getStOpts(opt...)
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	nonce, err := NewID(WithPrefix("n"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state's nonce: %w", op, err)
	}
	id, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state's id: %w", op, err)
	}
	v, err := NewCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state's code verifier: %w", op, err)
	}
	s := &State{
		id:       id,
		nonce:    nonce,
		verifier: v,
		nowFunc:  opts.withNowFunc,
	}
	s.expiration = s.now().Add(expireIn)
	return s, nil
}

// RestoreState recreates a State from values previously produced by NewState
// and held in a flow-scoped store across the provider redirect.  The id and
// nonce must be non-empty and not equal to each other.
func RestoreState(id, nonce string, verifier *CodeVerifier, expiresAt time.Time, opt ...Option) (*State, error) {
	const op = "oidc.RestoreState"
	opts := getStOpts(opt...)
	if id == "" {
		return nil, fmt.Errorf("%s: id is empty: %w", op, ErrInvalidParameter)
	}
	if nonce == "" {
		return nil, fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	if id == nonce {
		return nil, fmt.Errorf("%s: id and nonce are equal: %w", op, ErrInvalidParameter)
	}
	if verifier == nil {
		return nil, fmt.Errorf("%s: code verifier is nil: %w", op, ErrNilParameter)
	}
	if expiresAt.IsZero() {
		return nil, fmt.Errorf("%s: expiration is zero: %w", op, ErrInvalidParameter)
	}
	return &State{
		id:         id,
		nonce:      nonce,
		verifier:   verifier,
		expiration: expiresAt,
		nowFunc:    opts.withNowFunc,
	}, nil
}

// ID returns the unique identifier for the flow, which is used as the oauth
// state parameter.
func (s *State) ID() string { return s.id }

// Nonce returns the flow's nonce
func (s *State) Nonce() string { return s.nonce }

// Verifier returns the flow's PKCE code verifier
func (s *State) Verifier() *CodeVerifier { return s.verifier }

// Expiration returns the flow's expiration time
func (s *State) Expiration() time.Time { return s.expiration }

// IsExpired returns true if the state has expired. Supports the
// WithExpirySkew option and if none is provided it will use the
// DefaultStateExpirySkew.
func (s *State) IsExpired(opt ...Option) bool {
	opts := getStOpts(opt...)
	return s.expiration.Before(s.now().Add(opts.withExpirySkew))
}

// now returns the current time using the optional nowFunc
func (s *State) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now() // fallback to standard library time
}

// stOptions is the set of available options for State functions
type stOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// stDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func stDefaults() stOptions {
	return stOptions{
		withExpirySkew: DefaultStateExpirySkew,
	}
}

// getStOpts gets the state defaults and applies the opt overrides passed in
func getStOpts(opt ...Option) stOptions {
	opts := stDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
