// Package broker routes requests under configured path prefixes through the
// token cache and forwarder; everything else passes to the next handler.
package broker

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/manifest"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/status"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/tokencache"
	"go.uber.org/zap"
)

type TokenSource interface {
	EnsureValid(ctx context.Context, e *tokencache.Entry) (string, error)
}

type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request, authorization, host string) error
}

// Recorder receives one call per request handled for a prefix.
type Recorder interface {
	ObserveProxied(prefix, method string, code int)
}

// Loader re-reads the manifest on Reload.
type Loader func() (manifest.Config, error)

// table is immutable once published.
type table struct {
	enabled bool
	entries []*tokencache.Entry
}

type Broker struct {
	tokens   TokenSource
	fwd      Forwarder
	load     Loader
	log      *zap.Logger
	recorder Recorder

	current atomic.Pointer[table]
}

type Option func(*Broker)

func WithLoader(l Loader) Option      { return func(b *Broker) { b.load = l } }
func WithLogger(l *zap.Logger) Option { return func(b *Broker) { b.log = l } }
func WithRecorder(r Recorder) Option  { return func(b *Broker) { b.recorder = r } }

func New(cfg manifest.Config, tokens TokenSource, fwd Forwarder, opts ...Option) *Broker {
	b := &Broker{tokens: tokens, fwd: fwd, log: zap.NewNop()}
	for _, o := range opts {
		o(b)
	}
	b.Apply(cfg)
	return b
}

func (b *Broker) Enabled() bool { return b.current.Load().enabled }

// Entries returns the prefix table in match order.
func (b *Broker) Entries() []*tokencache.Entry {
	return append([]*tokencache.Entry(nil), b.current.Load().entries...)
}

// Apply publishes a new prefix table built from cfg. Entries whose prefix and
// credentials are unchanged keep their current token.
func (b *Broker) Apply(cfg manifest.Config) {
	prev := map[string]*tokencache.Entry{}
	if old := b.current.Load(); old != nil {
		for _, e := range old.entries {
			prev[e.PathPrefix] = e
		}
	}

	t := &table{enabled: cfg.Enabled, entries: make([]*tokencache.Entry, 0, len(cfg.PathPrefixAuths))}
	for _, p := range cfg.PathPrefixAuths {
		e := tokencache.NewEntry(p)
		if o := prev[e.PathPrefix]; e.SameCredentials(o) {
			e.Adopt(o)
		}
		t.entries = append(t.entries, e)
		if p.TokenURL == "" {
			b.log.Warn("path prefix has no token_url; requests will fail", zap.String("pathPrefix", p.PathPrefix))
		}
	}
	b.current.Store(t)
	b.log.Info("token broker configured", zap.Object("config", cfg))
}

// Reload re-reads the manifest and swaps the prefix table. On error the
// current table stays in place.
func (b *Broker) Reload() error {
	if b.load == nil {
		return errors.New("broker: no loader configured")
	}
	cfg, err := b.load()
	if err != nil {
		b.log.Error("reload failed; keeping current prefix table", zap.Error(err))
		return err
	}
	b.Apply(cfg)
	return nil
}

// Match returns the first entry whose prefix starts path, in configured order.
func (b *Broker) Match(path string) *tokencache.Entry { return b.current.Load().match(path) }

func (t *table) match(path string) *tokencache.Entry {
	for _, e := range t.entries {
		if strings.HasPrefix(path, e.PathPrefix) {
			return e
		}
	}
	return nil
}

// Handle serves r when its path matches a prefix and delegates to next
// otherwise. A token failure is written as an error body and the request is
// not forwarded.
func (b *Broker) Handle(w http.ResponseWriter, r *http.Request, next http.Handler) {
	b.handle(b.current.Load(), w, r, next)
}

// handle dispatches against one table snapshot so a concurrent reload cannot
// mix two tables within a request.
func (b *Broker) handle(t *table, w http.ResponseWriter, r *http.Request, next http.Handler) {
	e := t.match(r.URL.Path)
	if e == nil {
		b.log.Debug("no path prefix matched", zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
		return
	}
	b.log.Debug("path prefix matched", zap.String("path", r.URL.Path), zap.String("pathPrefix", e.PathPrefix))

	ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
	defer func() {
		if b.recorder != nil {
			b.recorder.ObserveProxied(e.PathPrefix, r.Method, ww.Status())
		}
	}()

	tok, err := b.tokens.EnsureValid(r.Context(), e)
	if err != nil {
		b.fail(ww, r, e, err)
		return
	}
	if err := b.fwd.Forward(ww, r, "Bearer "+tok, e.UpstreamHost); err != nil {
		b.fail(ww, r, e, err)
	}
}

func (b *Broker) fail(w http.ResponseWriter, r *http.Request, e *tokencache.Entry, err error) {
	lvl := b.log.Error
	if status.Is(err, status.KindMethodNotAllowed) {
		lvl = b.log.Warn
	}
	lvl("request failed",
		zap.String("pathPrefix", e.PathPrefix),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	status.Write(w, err)
}

// Middleware adapts the broker to a handler chain. When disabled every
// request goes straight to next.
func (b *Broker) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := b.current.Load()
			if !t.enabled {
				next.ServeHTTP(w, r)
				return
			}
			b.handle(t, w, r, next)
		})
	}
}
