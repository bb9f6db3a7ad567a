package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/roach88/edgerelay/internal/clock"
)

const (
	defaultTimeout = 30 * time.Second

	// maxResponseBody caps how much of a response body is kept.
	maxResponseBody = 1 << 20

	// tokenLifetimeFactor is the share of the advertised token lifetime
	// the credential is used for, so it does not expire mid-request.
	tokenLifetimeFactor = 0.99
)

// Client is what the scheduler needs from the transport.
type Client interface {
	// Authenticate obtains a fresh credential.
	Authenticate(ctx context.Context) error
	// Send posts {"items":[...]} to url and returns the response for any
	// status code.
	Send(ctx context.Context, url string, items []json.RawMessage) (*Response, error)
}

// OAuthClient is a Client that authenticates with the OAuth 2.0
// client-credentials grant.
type OAuthClient struct {
	clientID   string
	config     clientcredentials.Config
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger

	mu        sync.Mutex
	token     *oauth2.Token
	expiresAt time.Time
}

// Option configures an OAuthClient.
type Option func(*OAuthClient)

// WithHTTPClient replaces the HTTP client used for token and data requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *OAuthClient) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *OAuthClient) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithClock replaces the clock used for credential expiry.
func WithClock(clk clock.Clock) Option {
	return func(c *OAuthClient) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *OAuthClient) { c.logger = l }
}

// NewOAuthClient returns a client for the given credentials. Nothing is
// requested until Authenticate or Send is called.
func NewOAuthClient(clientID, clientSecret, tokenURL string, opts ...Option) *OAuthClient {
	c := &OAuthClient{
		clientID: clientID,
		config: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: &http.Client{Timeout: defaultTimeout},
		clock:      clock.Real(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate requests a new token regardless of the cached one.
func (c *OAuthClient) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *OAuthClient) authenticateLocked(ctx context.Context) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	// oauth2 derives Expiry from the wall clock, so the lifetime is measured
	// against wall time and then applied to the injected clock.
	requested := time.Now()
	token, err := c.config.Token(ctx)
	if err != nil {
		c.token = nil
		return classifyTokenError(c.config.TokenURL, err)
	}

	c.token = token
	if token.Expiry.IsZero() {
		// No expires_in: keep the token until the server rejects it.
		c.expiresAt = time.Time{}
	} else {
		lifetime := token.Expiry.Sub(requested).Round(time.Second)
		c.expiresAt = c.clock.Now().Add(time.Duration(float64(lifetime) * tokenLifetimeFactor))
	}
	c.logger.Debug("authenticated", "token_url", c.config.TokenURL, "valid_until", c.expiresAt)
	return nil
}

// classifyTokenError maps errors from the oauth2 package to AuthError or
// NetworkError.
func classifyTokenError(tokenURL string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &AuthError{StatusCode: status, Body: retrieveErr.Body, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &NetworkError{URL: tokenURL, Err: err}
	}
	return &AuthError{Err: err}
}

// bearer returns a valid access token, authenticating first if the cached
// one has expired.
func (c *OAuthClient) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil || (!c.expiresAt.IsZero() && !c.clock.Now().Before(c.expiresAt)) {
		if err := c.authenticateLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.token.AccessToken, nil
}

// Send posts items as one package.
func (c *OAuthClient) Send(ctx context.Context, target string, items []json.RawMessage) (*Response, error) {
	accessToken, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	body, err := EncodePackage(items)
	if err != nil {
		return nil, fmt.Errorf("encode package: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.Must(uuid.NewV7()).String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("clientid", c.clientID)
	req.Header.Set("X-Request-ID", requestID)

	start := c.clock.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		RawBody:    raw,
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp.Body); err != nil {
			c.logger.Debug("response body is not a result envelope",
				"url", target, "status", httpResp.StatusCode, "error", err)
		}
	}

	c.logger.Debug("package sent",
		"url", target,
		"request_id", requestID,
		"items", len(items),
		"status", resp.StatusCode,
		"duration", c.clock.Now().Sub(start),
	)
	return resp, nil
}
