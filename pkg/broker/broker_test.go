package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/joeydtaylor/steeze-tokenproxy/pkg/assertion"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/exchange"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/forward"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/manifest"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/status"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/tokencache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeTokens struct {
	mu    sync.Mutex
	seen  []string
	token string
	err   error
}

func (f *fakeTokens) EnsureValid(_ context.Context, e *tokencache.Entry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, e.PathPrefix)
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

type call struct{ auth, host, path string }

type fakeForwarder struct {
	calls []call
	err   error
}

func (f *fakeForwarder) Forward(w http.ResponseWriter, r *http.Request, auth, host string) error {
	f.calls = append(f.calls, call{auth, host, r.URL.Path})
	if f.err != nil {
		return f.err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

type recorder struct{ codes map[string]int }

func (r *recorder) ObserveProxied(prefix, _ string, code int) { r.codes[prefix] = code }

func cfg(enabled bool, prefixes ...string) manifest.Config {
	c := manifest.Config{Enabled: enabled}
	for i, p := range prefixes {
		c.PathPrefixAuths = append(c.PathPrefixAuths, manifest.PathPrefixAuth{
			PathPrefix:   p,
			ServiceHost:  "https://up" + string(rune('a'+i)) + ".example",
			TokenURL:     "https://auth.example/token",
			AuthIssuer:   "iss",
			TokenTTL:     60,
			CertPassword: "changeit",
		})
	}
	return c
}

var nextHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})

func serve(b *Broker, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	b.Middleware()(nextHandler).ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestFirstConfiguredPrefixWins(t *testing.T) {
	tokens := &fakeTokens{token: "tok"}
	fwd := &fakeForwarder{}
	b := New(cfg(true, "/api", "/api/v2"), tokens, fwd)

	w := serve(b, http.MethodGet, "/api/v2/items")
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, fwd.calls, 1)
	assert.Equal(t, call{"Bearer tok", "https://upa.example", "/api/v2/items"}, fwd.calls[0])
	assert.Equal(t, []string{"/api"}, tokens.seen)
}

func TestHandleDispatchesWithoutMiddleware(t *testing.T) {
	fwd := &fakeForwarder{}
	b := New(cfg(true, "/api"), &fakeTokens{token: "tok"}, fwd)

	w := httptest.NewRecorder()
	b.Handle(w, httptest.NewRequest(http.MethodGet, "/api/x", nil), nextHandler)
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, fwd.calls, 1)

	w = httptest.NewRecorder()
	b.Handle(w, httptest.NewRequest(http.MethodGet, "/elsewhere", nil), nextHandler)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Len(t, fwd.calls, 1)
}

func TestPrefixMatchIsPlainStringPrefix(t *testing.T) {
	b := New(cfg(true, "/api"), &fakeTokens{token: "t"}, &fakeForwarder{})
	assert.NotNil(t, b.Match("/apiary"))
	assert.Nil(t, b.Match("/ap"))
	assert.Nil(t, b.Match("/other/api"))
}

func TestNoMatchPassesThroughUntouched(t *testing.T) {
	tokens := &fakeTokens{token: "t"}
	fwd := &fakeForwarder{}
	b := New(cfg(true, "/api"), tokens, fwd)

	w := serve(b, http.MethodOptions, "/health")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Empty(t, tokens.seen)
	assert.Empty(t, fwd.calls)
}

func TestDisabledBrokerPassesEverythingThrough(t *testing.T) {
	tokens := &fakeTokens{token: "t"}
	b := New(cfg(false, "/api"), tokens, &fakeForwarder{})
	assert.False(t, b.Enabled())

	w := serve(b, http.MethodGet, "/api/x")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Empty(t, tokens.seen)
}

func TestMiddlewareUsesOneTablePerRequest(t *testing.T) {
	// Neither table forwards on its own: one is disabled, the other has no
	// prefixes. Only a request that mixed them could reach the forwarder.
	disabled := cfg(false, "/api")
	empty := cfg(true)
	fwd := &fakeForwarder{}
	b := New(disabled, &fakeTokens{token: "t"}, fwd)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			if i%2 == 0 {
				b.Apply(empty)
			} else {
				b.Apply(disabled)
			}
		}
	}()

	h := b.Middleware()(nextHandler)
	for i := 0; i < 2000; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))
		require.Equal(t, http.StatusTeapot, w.Code)
	}
	<-done
	assert.Empty(t, fwd.calls)
}

func TestTokenFailureIsNeverForwarded(t *testing.T) {
	fwd := &fakeForwarder{}
	rec := &recorder{codes: map[string]int{}}
	b := New(cfg(true, "/api"), &fakeTokens{err: status.TokenExchange(`{"error":"invalid_client"}`)}, fwd, WithRecorder(rec))

	w := serve(b, http.MethodGet, "/api/x")
	assert.Empty(t, fwd.calls)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body status.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ERR10052", body.Code)
	assert.Equal(t, `{"error":"invalid_client"}`, body.Description)
	assert.Equal(t, http.StatusBadGateway, rec.codes["/api"])
}

func TestMethodNotAllowedFromRealForwarder(t *testing.T) {
	clients := clientSourceFunc(func() (*http.Client, error) {
		return nil, errors.New("no client should be built")
	})
	b := New(cfg(true, "/a"), &fakeTokens{token: "t"}, forward.New(clients, nil))

	w := serve(b, http.MethodOptions, "/a/x")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	var body status.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ERR10008", body.Code)
	assert.Equal(t, "method OPTIONS is not allowed for path /a/x", body.Description)
}

type clientSourceFunc func() (*http.Client, error)

func (f clientSourceFunc) Client() (*http.Client, error) { return f() }

func TestEndToEndThroughForwarder(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer live", r.Header.Get("Authorization"))
		assert.Equal(t, "/a/b?x=1", r.RequestURI)
		w.Header().Set("X-Trace", "t1")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "missing")
	}))
	defer up.Close()

	c := cfg(true, "/a")
	c.PathPrefixAuths[0].ServiceHost = up.URL
	clients := clientSourceFunc(func() (*http.Client, error) { return up.Client(), nil })
	b := New(c, &fakeTokens{token: "live"}, forward.New(clients, nil))

	w := serve(b, http.MethodGet, "/a/b?x=1")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "missing", w.Body.String())
	assert.Equal(t, "t1", w.Header().Get("X-Trace"))
}

func TestReloadSwapsTableAndKeepsUnchangedTokens(t *testing.T) {
	next := cfg(true, "/api")
	var loadErr error
	b := New(cfg(true, "/api", "/old"), &fakeTokens{token: "t"}, &fakeForwarder{},
		WithLoader(func() (manifest.Config, error) { return next, loadErr }))

	before := b.Match("/api/x")
	require.NotNil(t, before)
	seedState(t, before)

	require.NoError(t, b.Reload())
	after := b.Match("/api/x")
	require.NotNil(t, after)
	assert.NotSame(t, before, after, "reload builds a fresh table")
	assert.Equal(t, before.Snapshot(), after.Snapshot())
	assert.Nil(t, b.Match("/old/x"))

	// Changed credentials start from an empty token.
	next.PathPrefixAuths[0].AuthIssuer = "rotated"
	require.NoError(t, b.Reload())
	assert.Equal(t, tokencache.State{}, b.Match("/api/x").Snapshot())

	// A failed load keeps the current table.
	loadErr = errors.New("bad toml")
	current := b.Entries()
	assert.Error(t, b.Reload())
	assert.Equal(t, current, b.Entries())
}

func TestReloadWithoutLoader(t *testing.T) {
	b := New(cfg(true), &fakeTokens{}, &fakeForwarder{})
	assert.Error(t, b.Reload())
}

func TestRegistrationLogMasksPassword(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := cfg(true, "/api")
	c.PathPrefixAuths[0].TokenURL = ""
	New(c, &fakeTokens{}, &fakeForwarder{}, WithLogger(zap.New(core)))

	require.Equal(t, 1, logs.FilterMessage("token broker configured").Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("no token_url").Len())
	for _, entry := range logs.All() {
		j, err := json.Marshal(entry.ContextMap())
		require.NoError(t, err)
		assert.NotContains(t, string(j), "changeit")
	}
}

// seedState gives e a token by running a real cache refresh against stubs.
func seedState(t *testing.T, e *tokencache.Entry) {
	t.Helper()
	c := tokencache.New(stubSigner{}, stubExchanger{})
	_, err := c.EnsureValid(context.Background(), e)
	require.NoError(t, err)
	require.NotEmpty(t, e.Snapshot().AccessToken)
}

type stubSigner struct{}

func (stubSigner) Sign(assertion.Request) (string, error) { return "a.b.c", nil }

type stubExchanger struct{}

func (stubExchanger) Exchange(context.Context, string, string) (exchange.TokenResponse, error) {
	return exchange.TokenResponse{AccessToken: "seeded", ExpiresInSeconds: 3600}, nil
}
