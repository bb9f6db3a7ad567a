package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edgerelay/internal/clock"
)

// fakeCloud is an httptest server speaking the token and monitoring APIs.
type fakeCloud struct {
	*httptest.Server

	mu         sync.Mutex
	tokens     int
	tokenCode  int
	dataCode   int
	dataBody   string
	lastBody   []byte
	lastHeader http.Header
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	fc := &fakeCloud{
		tokenCode: http.StatusOK,
		dataCode:  http.StatusOK,
		dataBody:  `{"result":[{"max_allowed_items":500,"current_item_index":1}]}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		defer fc.mu.Unlock()

		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-1" || pass != "s3cret" || r.FormValue("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if fc.tokenCode != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(fc.tokenCode)
			fmt.Fprint(w, `{"error":"invalid_client"}`)
			return
		}
		fc.tokens++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":100}`, fc.tokens)
	})
	mux.HandleFunc("/things/EQ1", func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		defer fc.mu.Unlock()

		fc.lastBody, _ = io.ReadAll(r.Body)
		fc.lastHeader = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fc.dataCode)
		fmt.Fprint(w, fc.dataBody)
	})

	fc.Server = httptest.NewServer(mux)
	t.Cleanup(fc.Close)
	return fc
}

func (fc *fakeCloud) tokenCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.tokens
}

func newTestClient(fc *fakeCloud, clk clock.Clock) *OAuthClient {
	return NewOAuthClient("client-1", "s3cret", fc.URL+"/token",
		WithHTTPClient(fc.Client()),
		WithClock(clk),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func items(values ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		out[i] = json.RawMessage(v)
	}
	return out
}

func TestAuthenticate_Success(t *testing.T) {
	fc := newFakeCloud(t)
	c := newTestClient(fc, clock.Fake(time.Unix(0, 0)))

	require.NoError(t, c.Authenticate(context.Background()))
	assert.Equal(t, 1, fc.tokenCount())
}

func TestAuthenticate_Rejected(t *testing.T) {
	fc := newFakeCloud(t)
	fc.tokenCode = http.StatusUnauthorized
	c := newTestClient(fc, clock.Fake(time.Unix(0, 0)))

	err := c.Authenticate(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Contains(t, string(authErr.Body), "invalid_client")
}

func TestAuthenticate_Unreachable(t *testing.T) {
	fc := newFakeCloud(t)
	c := newTestClient(fc, clock.Fake(time.Unix(0, 0)))
	fc.Close()

	err := c.Authenticate(context.Background())
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestSend_SetsHeaders(t *testing.T) {
	fc := newFakeCloud(t)
	c := newTestClient(fc, clock.Fake(time.Unix(0, 0)))

	resp, err := c.Send(context.Background(), fc.URL+"/things/EQ1", items(`{"v":1}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "application/json", fc.lastHeader.Get("Content-Type"))
	assert.Equal(t, "Bearer tok-1", fc.lastHeader.Get("Authorization"))
	assert.Equal(t, "client-1", fc.lastHeader.Get("clientid"))
	assert.NotEmpty(t, fc.lastHeader.Get("X-Request-ID"))
}

func TestSend_DecodesResult(t *testing.T) {
	fc := newFakeCloud(t)
	c := newTestClient(fc, clock.Fake(time.Unix(0, 0)))

	resp, err := c.Send(context.Background(), fc.URL+"/things/EQ1", items(`{"v":1}`, `{"v":2}`))
	require.NoError(t, err)

	first, ok := resp.First()
	require.True(t, ok)
	require.NotNil(t, first.MaxAllowedItems)
	require.NotNil(t, first.CurrentItemIndex)
	assert.Equal(t, 500, *first.MaxAllowedItems)
	assert.Equal(t, 1, *first.CurrentItemIndex)
}

func TestSend_ReturnsErrorStatuses(t *testing.T) {
	fc := newFakeCloud(t)
	fc.dataCode = http.StatusInternalServerError
	fc.dataBody = "upstream exploded"
	c := newTestClient(fc, clock.Fake(time.Unix(0, 0)))

	resp, err := c.Send(context.Background(), fc.URL+"/things/EQ1", items(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "upstream exploded", string(resp.RawBody))
	_, ok := resp.First()
	assert.False(t, ok)
}

func TestSend_ReauthenticatesAfterLifetime(t *testing.T) {
	fc := newFakeCloud(t)
	clk := clock.Fake(time.Unix(0, 0))
	c := newTestClient(fc, clk)
	ctx := context.Background()
	url := fc.URL + "/things/EQ1"

	_, err := c.Send(ctx, url, items(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, fc.tokenCount(), "first send authenticates lazily")

	// expires_in is 100s; the token is used for 99s.
	clk.Advance(98 * time.Second)
	_, err = c.Send(ctx, url, items(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, fc.tokenCount())

	clk.Advance(time.Second)
	_, err = c.Send(ctx, url, items(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 2, fc.tokenCount())
	assert.Equal(t, "Bearer tok-2", fc.lastHeader.Get("Authorization"))
}

func TestSend_TokenLifetimeFollowsInjectedClock(t *testing.T) {
	fc := newFakeCloud(t)
	clk := clock.Fake(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC))
	c := newTestClient(fc, clk)
	ctx := context.Background()
	url := fc.URL + "/things/EQ1"

	require.NoError(t, c.Authenticate(ctx))

	clk.Advance(98 * time.Second)
	_, err := c.Send(ctx, url, items(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, fc.tokenCount(), "token still valid on the injected clock")

	clk.Advance(time.Second)
	_, err = c.Send(ctx, url, items(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 2, fc.tokenCount())
}

func TestSend_AuthFailureIsReturned(t *testing.T) {
	fc := newFakeCloud(t)
	fc.tokenCode = http.StatusForbidden
	c := newTestClient(fc, clock.Fake(time.Unix(0, 0)))

	_, err := c.Send(context.Background(), fc.URL+"/things/EQ1", items(`{}`))
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusForbidden, authErr.StatusCode)
}

func TestSend_PackageGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	tests := []struct {
		name  string
		items []json.RawMessage
	}{
		{"package_items", items(`{"b": 1, "a": 2}`, `{"timestamp": "2026-03-01T12:00:00Z", "isEvent": true, "x": [1, 2]}`)},
		{"package_empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newFakeCloud(t)
			c := newTestClient(fc, clock.Fake(time.Unix(0, 0)))

			_, err := c.Send(context.Background(), fc.URL+"/things/EQ1", tt.items)
			require.NoError(t, err)
			g.Assert(t, tt.name, fc.lastBody)
		})
	}
}

func TestResponse_MarshalJSON(t *testing.T) {
	resp := &Response{StatusCode: 412, RawBody: []byte(`{"result":[{"message":"no"}]}`)}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"statusCode":412,"body":{"result":[{"message":"no"}]}}`, string(data))

	resp = &Response{StatusCode: 500, RawBody: []byte("oops")}
	data, err = json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"statusCode":500,"body":"oops"}`, string(data))
}
