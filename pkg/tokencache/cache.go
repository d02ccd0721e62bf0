// Package tokencache keeps one access token per configured path prefix and
// refreshes it through a signed client assertion when it is close to expiry.
package tokencache

import (
	"context"
	"fmt"
	"time"

	"github.com/joeydtaylor/steeze-tokenproxy/pkg/assertion"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/exchange"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/status"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// ExpirySkewMillis: a token this close to its recorded expiry is treated as expired.
	ExpirySkewMillis int64 = 5_000
	// RefreshBufferMillis is taken off the server's expires_in when recording expiry.
	RefreshBufferMillis int64 = 60_000

	DefaultRefreshTimeout = 30 * time.Second
)

type Signer interface {
	Sign(req assertion.Request) (string, error)
}

type Exchanger interface {
	Exchange(ctx context.Context, tokenURL, assertion string) (exchange.TokenResponse, error)
}

// Observer receives one call per refresh attempt.
type Observer interface {
	ObserveRefresh(prefix string, took time.Duration, err error)
}

type Cache struct {
	signer    Signer
	exchanger Exchanger
	log       *zap.Logger
	now       func() time.Time
	observer  Observer
	timeout   time.Duration

	flights singleflight.Group
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }
func WithLogger(l *zap.Logger) Option       { return func(c *Cache) { c.log = l } }
func WithObserver(o Observer) Option        { return func(c *Cache) { c.observer = o } }

// WithRefreshTimeout bounds one shared refresh, independent of any caller.
func WithRefreshTimeout(d time.Duration) Option { return func(c *Cache) { c.timeout = d } }

func New(signer Signer, exchanger Exchanger, opts ...Option) *Cache {
	c := &Cache{
		signer:    signer,
		exchanger: exchanger,
		log:       zap.NewNop(),
		now:       time.Now,
		timeout:   DefaultRefreshTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Expired reports whether s must be refreshed at nowMillis.
func Expired(s State, nowMillis int64) bool {
	return nowMillis >= s.ExpiresAtMillis-ExpirySkewMillis
}

// EnsureValid returns a usable access token for e, refreshing it first when
// it is expired. Concurrent callers on one entry share a single refresh. A
// failed refresh leaves the previous state untouched. A caller that stops
// waiting gets a ConnectionError wrapping its context error.
func (c *Cache) EnsureValid(ctx context.Context, e *Entry) (string, error) {
	if s := e.Snapshot(); !Expired(s, c.now().UnixMilli()) {
		return s.AccessToken, nil
	}

	// Keyed by entry identity: after a reload the old and new entry for a
	// prefix are distinct and must not share a flight.
	key := fmt.Sprintf("%p", e)
	ch := c.flights.DoChan(key, func() (any, error) {
		if s := e.Snapshot(); !Expired(s, c.now().UnixMilli()) {
			return s.AccessToken, nil
		}
		// Shared by every waiter; one caller going away must not cancel it.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.refresh(rctx, e)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", status.Connection(e.TokenURL, ctx.Err())
	}
}

func (c *Cache) refresh(ctx context.Context, e *Entry) (tok string, err error) {
	start := c.now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveRefresh(e.PathPrefix, c.now().Sub(start), err)
		}
	}()

	signed, err := c.signer.Sign(e.AssertionRequest())
	if err != nil {
		c.log.Error("client assertion failed", zap.String("pathPrefix", e.PathPrefix), zap.Error(err))
		return "", err
	}

	res, err := c.exchanger.Exchange(ctx, e.TokenURL, signed)
	if err != nil {
		c.log.Error("token refresh failed",
			zap.String("pathPrefix", e.PathPrefix),
			zap.String("tokenUrl", e.TokenURL),
			zap.Error(err),
		)
		return "", err
	}

	exp := c.now().UnixMilli() + res.ExpiresInSeconds*1000 - RefreshBufferMillis
	e.store(State{AccessToken: res.AccessToken, ExpiresAtMillis: exp})

	c.log.Info("token refreshed",
		zap.String("pathPrefix", e.PathPrefix),
		zap.Int64("expiresIn", res.ExpiresInSeconds),
		zap.Time("expiresAt", time.UnixMilli(exp)),
	)
	return res.AccessToken, nil
}
