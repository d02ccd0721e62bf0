package serverfx

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/joeydtaylor/steeze-tokenproxy/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/transport/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const testManifest = `
enabled = true
cert_filename = "missing.p12"
cert_password = "changeit"

[[path_prefix_auth]]
path_prefix = "/conquest"
service_host = "https://api.example.com"
token_url = "https://auth.example.com/token"
`

func testConfig(t *testing.T, body string) Config {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tokenproxy.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	cfg := defaultConfig()
	cfg.ManifestEnv = "TOKENPROXY_TEST_CONFIG"
	t.Setenv(cfg.ManifestEnv, p)
	return cfg
}

func TestModuleGraphIsComplete(t *testing.T) {
	require.NoError(t, fx.ValidateApp(Module()))
}

func TestBrokerFromManifest(t *testing.T) {
	cfg := testConfig(t, testManifest)
	man, err := provideManifest(cfg, zap.NewNop())
	require.NoError(t, err)

	b := provideBroker(cfg, man, provideClientFactory(man), metrics.ProvideBroker(), zap.NewNop())
	assert.True(t, b.Enabled())
	require.NotNil(t, b.Match("/conquest/items"))

	h := provideRouter(nil, http.NotFoundHandler(), b, httpx.NewChi())

	// Unreadable key: the request fails before anything is forwarded.
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conquest/items", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "ERR10061")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Reload picks up the edited file.
	require.NoError(t, os.WriteFile(os.Getenv(cfg.ManifestEnv), []byte(`enabled = false`), 0o600))
	require.NoError(t, b.Reload())
	assert.False(t, b.Enabled())
	assert.Nil(t, b.Match("/conquest/items"))
}

func TestProvideManifestFailure(t *testing.T) {
	cfg := testConfig(t, `[[path_prefix_auth]]`)
	_, err := provideManifest(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestEnvOr(t *testing.T) {
	t.Setenv("TOKENPROXY_TEST_ENV", "")
	assert.Equal(t, "def", envOr("TOKENPROXY_TEST_ENV", "def"))
	t.Setenv("TOKENPROXY_TEST_ENV", "set")
	assert.Equal(t, "set", envOr("TOKENPROXY_TEST_ENV", "def"))
}
