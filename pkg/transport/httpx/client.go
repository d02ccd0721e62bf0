package httpx

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeydtaylor/steeze-tokenproxy/pkg/status"
	"golang.org/x/net/http2"
)

// ClientOptions configure the single outbound client shared by the token
// exchange and the upstream forward.
type ClientOptions struct {
	ConnectTimeout time.Duration
	Timeout        time.Duration
	ProxyHost      string
	ProxyPort      int // 0 means 443
	EnableHTTP2    bool
	TrustStore     string // PEM bundle; empty uses the system roots
	VerifyHostname bool
}

// ClientFactory builds the outbound client on first use and hands out the
// same instance afterwards. A failed build is not memoised, so a corrected
// environment recovers on the next call.
type ClientFactory struct {
	build func() (*http.Client, error)

	mu     sync.Mutex
	client atomic.Pointer[http.Client]
}

// NewClientFactory returns a factory building clients from opts.
func NewClientFactory(opts ClientOptions) *ClientFactory {
	return &ClientFactory{build: func() (*http.Client, error) { return NewHTTPClient(opts) }}
}

// NewClientFactoryFunc returns a factory using build; handy for tests.
func NewClientFactoryFunc(build func() (*http.Client, error)) *ClientFactory {
	return &ClientFactory{build: build}
}

// Client returns the shared client, constructing it at most once.
func (f *ClientFactory) Client() (*http.Client, error) {
	if c := f.client.Load(); c != nil {
		return c, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.client.Load(); c != nil {
		return c, nil
	}
	c, err := f.build()
	if err != nil {
		return nil, status.TransportInit(err)
	}
	if c == nil {
		return nil, status.TransportInit(errors.New("client builder returned nil"))
	}
	f.client.Store(c)
	return c, nil
}

// NewHTTPClient builds a TLS-enabled client honouring opts.
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	tlsCfg, err := tlsConfig(opts)
	if err != nil {
		return nil, err
	}

	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = 10 * time.Second
	}
	dialer := &net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}

	tr := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsCfg,
		TLSHandshakeTimeout: connect,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		// Upstream bodies are relayed byte for byte; never let the
		// transport negotiate and transparently decode gzip.
		DisableCompression: true,
	}

	if opts.ProxyHost != "" {
		port := opts.ProxyPort
		if port == 0 {
			port = 443
		}
		pu, err := url.Parse("http://" + net.JoinHostPort(opts.ProxyHost, strconv.Itoa(port)))
		if err != nil {
			return nil, fmt.Errorf("proxy %s: %w", opts.ProxyHost, err)
		}
		tr.Proxy = http.ProxyURL(pu)
	}

	if opts.EnableHTTP2 {
		if err := http2.ConfigureTransport(tr); err != nil {
			return nil, fmt.Errorf("http2: %w", err)
		}
	}

	return &http.Client{Transport: tr, Timeout: opts.Timeout}, nil
}

func tlsConfig(opts ClientOptions) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	var roots *x509.CertPool
	if opts.TrustStore != "" {
		b, err := os.ReadFile(opts.TrustStore)
		if err != nil {
			return nil, fmt.Errorf("truststore: %w", err)
		}
		roots = x509.NewCertPool()
		if !roots.AppendCertsFromPEM(b) {
			return nil, fmt.Errorf("truststore %s: no PEM certificates", opts.TrustStore)
		}
		cfg.RootCAs = roots
	}

	if !opts.VerifyHostname {
		// Chain is still verified; only the name check is skipped.
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("tls: no peer certificates")
			}
			vo := x509.VerifyOptions{Roots: roots, Intermediates: x509.NewCertPool()}
			for _, c := range cs.PeerCertificates[1:] {
				vo.Intermediates.AddCert(c)
			}
			_, err := cs.PeerCertificates[0].Verify(vo)
			return err
		}
	}
	return cfg, nil
}
