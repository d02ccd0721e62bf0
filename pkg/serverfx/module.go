package serverfx

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeydtaylor/steeze-tokenproxy/pkg/assertion"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/broker"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/bundlefx"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/core"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/exchange"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/forward"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/manifest"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/tokencache"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/transport/httpx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ---------- Options ----------

type Config struct {
	Service         string // for logs only
	ManifestEnv     string // TOKENPROXY_CONFIG
	DefaultManifest string // tokenproxy.toml
	ListenEnv       string // SERVER_LISTEN_ADDRESS
	DefaultListen   string // :4000
	TLSCertEnv      string // SSL_SERVER_CERTIFICATE
	TLSKeyEnv       string // SSL_SERVER_KEY
}

type Option func(*Config)

func WithService(s string) Option            { return func(c *Config) { c.Service = s } }
func WithManifestEnv(k string) Option        { return func(c *Config) { c.ManifestEnv = k } }
func WithDefaultManifest(path string) Option { return func(c *Config) { c.DefaultManifest = path } }
func WithListenEnv(k string) Option          { return func(c *Config) { c.ListenEnv = k } }
func WithTLSCertKeyEnv(cert, key string) Option {
	return func(c *Config) { c.TLSCertEnv, c.TLSKeyEnv = cert, key }
}

func defaultConfig() Config {
	return Config{
		Service:         "tokenproxy",
		ManifestEnv:     "TOKENPROXY_CONFIG",
		DefaultManifest: "tokenproxy.toml",
		ListenEnv:       "SERVER_LISTEN_ADDRESS",
		DefaultListen:   ":4000",
		TLSCertEnv:      "SSL_SERVER_CERTIFICATE",
		TLSKeyEnv:       "SSL_SERVER_KEY",
	}
}

func (c Config) manifestPath() string { return envOr(c.ManifestEnv, c.DefaultManifest) }

// Module returns a complete Fx option set; add app-specific fx.Invoke(...) alongside.
func Module(opts ...Option) fx.Option {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return fx.Options(
		// Loggers, access log, metrics
		bundlefx.Module,
		// Router impl
		fx.Provide(httpx.NewChi),
		// Config into DI
		fx.Provide(func() Config { return cfg }),
		fx.Provide(provideManifest),
		// Broker graph
		fx.Provide(provideClientFactory),
		fx.Provide(provideBroker),
		// Router
		fx.Provide(fx.Annotate(
			provideRouter,
			fx.ParamTags(``, `name:"metrics"`, ``, ``), // lm,m,b,r
			fx.ResultTags(`name:"app"`),
		)),
		// Lifecycle
		fx.Invoke(registerHooks),
		fx.Invoke(registerReload),
		fx.Invoke(registerPathLabels),
	)
}

// ---------- Broker graph ----------

func provideManifest(cfg Config, zl *zap.Logger) (manifest.Config, error) {
	path := cfg.manifestPath()
	man, err := core.LoadConfig(path)
	if err != nil {
		zl.Error("manifest load failed", zap.Error(err), zap.String("path", path))
		return manifest.Config{}, err
	}
	return man, nil
}

// The shared client lives for the process; a reload does not rebuild it.
func provideClientFactory(man manifest.Config) *httpx.ClientFactory {
	return httpx.NewClientFactory(core.ClientOptions(man))
}

func provideBroker(cfg Config, man manifest.Config, clients *httpx.ClientFactory, m *metrics.Broker, zl *zap.Logger) *broker.Broker {
	cache := tokencache.New(
		assertion.NewSigner(),
		exchange.NewExchanger(clients, zl.Named("exchange")),
		tokencache.WithLogger(zl.Named("tokencache")),
		tokencache.WithObserver(m),
	)
	path := cfg.manifestPath()
	return broker.New(man, cache, forward.New(clients, zl.Named("forward")),
		broker.WithLoader(func() (manifest.Config, error) { return core.LoadConfig(path) }),
		broker.WithLogger(zl.Named("broker")),
		broker.WithRecorder(m),
	)
}

// registerPathLabels keeps the per-uri request metric bounded by labelling
// proxied requests with their prefix.
func registerPathLabels(b *broker.Broker) {
	metrics.SetPathNormalizer(metrics.ByPrefix(func(path string) (string, bool) {
		if e := b.Match(path); e != nil {
			return e.PathPrefix, true
		}
		return "", false
	}))
}

// ---------- Router ----------

func provideRouter(
	lm *logger.Middleware,
	/* name:"metrics" */ m http.Handler,
	b *broker.Broker,
	r httpx.Router,
) http.Handler {
	return core.BuildRouter(core.BuildDeps{
		LogMW:   lm,
		Metrics: m,
		Broker:  b.Middleware(),
		Router:  r,
	})
}

// ---------- Lifecycle (HTTP server + reload) ----------

type serverDeps struct {
	fx.In
	Logger *zap.Logger
	App    http.Handler `name:"app"`
}

func registerHooks(lc fx.Lifecycle, cfg Config, d serverDeps) {
	addr := envOr(cfg.ListenEnv, cfg.DefaultListen)
	cert := os.Getenv(cfg.TLSCertEnv)
	key := os.Getenv(cfg.TLSKeyEnv)

	srv := &http.Server{
		Addr:              addr,
		Handler:           d.App,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS13, MaxVersion: tls.VersionTLS13},
	}
	useTLS := fileExists(cert) && fileExists(key)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if useTLS {
				d.Logger.Info("server starting (TLS)", zap.String("service", cfg.Service), zap.String("addr", addr), zap.String("cert", cert))
				go func() {
					if err := srv.ListenAndServeTLS(cert, key); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Logger.Fatal("server failed", zap.Error(err))
					}
				}()
			} else {
				d.Logger.Info("server starting (PLAINTEXT)", zap.String("service", cfg.Service), zap.String("addr", addr))
				srv.TLSConfig = nil
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Logger.Fatal("server failed", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Logger.Info("server stopping")
			return srv.Shutdown(ctx)
		},
	})
}

// registerReload re-reads the manifest on SIGHUP.
func registerReload(lc fx.Lifecycle, b *broker.Broker, zl *zap.Logger) {
	sig := make(chan os.Signal, 1)
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			signal.Notify(sig, syscall.SIGHUP)
			go func() {
				for {
					select {
					case <-sig:
						if err := b.Reload(); err == nil {
							zl.Info("manifest reloaded", zap.Int("pathPrefixes", len(b.Entries())))
						}
					case <-done:
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			signal.Stop(sig)
			close(done)
			return nil
		},
	})
}

// ---------- tiny helpers ----------

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
