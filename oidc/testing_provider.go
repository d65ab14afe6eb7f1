package oidc

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local server that supports test provider capabilities
// which make writing tests much easier.  It implements the discovery, JWKS,
// auth, token (authorization_code and refresh_token grants, with PKCE
// checks), userinfo and end-session endpoints.  Much of this began life in
// Consul's oauthtest package; a big thanks to the original contributors.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks                *jose.JSONWebKeySet
	allowedRedirectURIs []string
	replySubject        string
	replyUserinfo       map[string]interface{}

	mu                    sync.Mutex
	clientID              string
	clientSecret          string
	expectedAuthCode      string
	expectedAuthNonce     string
	expectedCodeChallenge string
	expectedRefreshToken  string
	replyExpiry           time.Duration
	customClaims          map[string]interface{}
	customAudience        string
	nonceOverride         string
	omitIDToken           bool
	omitRefreshToken      bool
	disableUserInfo       bool
	invalidJWKS           bool
	reqCounts             map[string]int

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// StartTestProvider creates and starts a disposable TestProvider on a random
// local port, served over TLS.  Use CACert() to trust its certificate.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t: t,
		allowedRedirectURIs: []string{
			"https://example.com/callback",
		},
		replySubject: "alice@example.com",
		replyUserinfo: map[string]interface{}{
			"email": "alice@example.com",
			"name":  "Alice Example",
		},
		expectedRefreshToken: "test-refresh-token",
		replyExpiry:          1 * time.Hour,
		reqCounts:            map[string]int{},
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()
	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running
// webserver, which also serves as its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the auth code to return from /auth and the
// allowed auth code for /token.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce embedded in issued id_tokens. Is
// also captured automatically from /auth requests.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetExpectedCodeChallenge configures the S256 code challenge /token will
// check code_verifier values against.  Is also captured automatically from
// /auth requests.
func (p *TestProvider) SetExpectedCodeChallenge(challenge string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedCodeChallenge = challenge
}

// SetExpectedRefreshToken configures the refresh token /token accepts for the
// refresh_token grant.
func (p *TestProvider) SetExpectedRefreshToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedRefreshToken = token
}

// SetReplyExpiry configures how long issued tokens live.
func (p *TestProvider) SetReplyExpiry(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyExpiry = d
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs
// for the OIDC workflow.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetCustomClaims lets you set claims to return in the JWT issued by the OIDC
// workflow.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience configures what audience value to embed in the JWT issued
// by the OIDC workflow.
func (p *TestProvider) SetCustomAudience(customAudience string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// SetNonceOverride forces the given nonce into issued id_tokens regardless of
// what the flow requested, to simulate a replayed token.
func (p *TestProvider) SetNonceOverride(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonceOverride = nonce
}

// OmitIDTokens forces an error state where the /token endpoint does not
// return id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitRefreshTokens makes the /token endpoint leave out refresh_token.
func (p *TestProvider) OmitRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = true
}

// DisableUserInfo makes the userinfo endpoint return 404 and omits it from
// the discovery config.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// InvalidJWKS makes the JWKS endpoint return data that isn't a key set.
func (p *TestProvider) InvalidJWKS() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidJWKS = true
}

// CallCount reports how many requests the provider has served for the given
// path (for example "/token").  Tests use it to assert that protocol-integrity
// failures abort a flow before any network call is made.
func (p *TestProvider) CallCount(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reqCounts[path]
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// issueSignedJWT builds and signs the id_token/access_token for a token
// response.  Callers must hold p.mu.
func (p *TestProvider) issueSignedJWT(nonce string) string {
	stdClaims := jwt.Claims{
		Subject:   p.replySubject,
		Issuer:    p.Addr(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		NotBefore: jwt.NewNumericDate(time.Now().Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(time.Now().Add(p.replyExpiry)),
		Audience:  jwt.Audience{p.clientID},
	}
	if p.customAudience != "" {
		stdClaims.Audience = jwt.Audience{p.customAudience}
	}

	privateClaims := map[string]interface{}{}
	for k, v := range p.customClaims {
		privateClaims[k] = v
	}
	switch {
	case p.nonceOverride != "":
		privateClaims["nonce"] = p.nonceOverride
	case nonce != "":
		privateClaims["nonce"] = nonce
	}

	return TestSignJWT(p.t, p.ecdsaPrivateKey, stdClaims, privateClaims)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()
	p.reqCounts[req.URL.Path]++

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		reply := struct {
			Issuer             string `json:"issuer"`
			AuthEndpoint       string `json:"authorization_endpoint"`
			TokenEndpoint      string `json:"token_endpoint"`
			JWKSURI            string `json:"jwks_uri"`
			UserinfoEndpoint   string `json:"userinfo_endpoint,omitempty"`
			EndSessionEndpoint string `json:"end_session_endpoint"`
		}{
			Issuer:             p.Addr(),
			AuthEndpoint:       p.Addr() + "/auth",
			TokenEndpoint:      p.Addr() + "/token",
			JWKSURI:            p.Addr() + "/certs",
			UserinfoEndpoint:   p.Addr() + "/userinfo",
			EndSessionEndpoint: p.Addr() + "/logout",
		}
		if p.disableUserInfo {
			reply.UserinfoEndpoint = ""
		}

		_ = p.writeJSON(w, &reply)

	case "/auth":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		qv := req.URL.Query()

		if qv.Get("response_type") != "code" {
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		}

		if p.expectedAuthCode == "" {
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}

		// capture the flow's nonce and PKCE challenge so /token can check the
		// verifier and embed the nonce without extra test wiring.
		if nonce := qv.Get("nonce"); nonce != "" {
			p.expectedAuthNonce = nonce
		}
		if challenge := qv.Get("code_challenge"); challenge != "" {
			if qv.Get("code_challenge_method") != "S256" {
				p.writeAuthErrorResponse(w, req, "invalid_request", "code_challenge_method must be S256")
				return
			}
			p.expectedCodeChallenge = challenge
		}

		state := qv.Get("state")
		if state == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		}

		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing redirect_uri parameter")
			return
		}

		redirectURI += "?state=" + url.QueryEscape(state) +
			"&code=" + url.QueryEscape(p.expectedAuthCode)

		http.Redirect(w, req, redirectURI, http.StatusFound)

	case "/certs":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if p.invalidJWKS {
			_, _ = w.Write([]byte("It's not a keyset!"))
			return
		}
		_ = p.writeJSON(w, p.jwks)

	case "/token":
		p.serveToken(w, req)

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reply := map[string]interface{}{
			"sub": p.replySubject,
		}
		for k, v := range p.replyUserinfo {
			reply[k] = v
		}
		_ = p.writeJSON(w, reply)

	case "/logout":
		redirectURI := req.URL.Query().Get("post_logout_redirect_uri")
		if redirectURI == "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, req, redirectURI, http.StatusFound)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// serveToken handles both the authorization_code and refresh_token grants.
// Callers must hold p.mu.
func (p *TestProvider) serveToken(w http.ResponseWriter, req *http.Request) {
	if req.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var nonce string
	switch req.FormValue("grant_type") {
	case "authorization_code":
		switch {
		case !strListContains(p.allowedRedirectURIs, req.FormValue("redirect_uri")):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case req.FormValue("code") != p.expectedAuthCode:
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected auth code")
			return
		}
		if p.expectedCodeChallenge != "" {
			verifier := req.FormValue("code_verifier")
			if verifier == "" {
				_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "missing code_verifier")
				return
			}
			sum := sha256.Sum256([]byte(verifier))
			if base64.RawURLEncoding.EncodeToString(sum[:]) != p.expectedCodeChallenge {
				_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "code_verifier does not match challenge")
				return
			}
		}
		nonce = p.expectedAuthNonce

	case "refresh_token":
		if req.FormValue("refresh_token") != p.expectedRefreshToken {
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected refresh token")
			return
		}

	default:
		_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
		return
	}

	jwtData := p.issueSignedJWT(nonce)

	reply := struct {
		AccessToken  string `json:"access_token"`
		IDToken      string `json:"id_token,omitempty"`
		RefreshToken string `json:"refresh_token,omitempty"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
	}{
		AccessToken:  jwtData,
		IDToken:      jwtData,
		RefreshToken: p.expectedRefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(p.replyExpiry.Seconds()),
	}
	if p.omitIDToken {
		reply.IDToken = ""
	}
	if p.omitRefreshToken {
		reply.RefreshToken = ""
	}
	_ = p.writeJSON(w, &reply)
}

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response
func testJWKS(t *testing.T, pubKey string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(block)

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key: pub,
			},
		},
	}
}
