package manifest

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Validate normalises the manifest in place and rejects values the broker
// cannot run with. An empty token_url or key file is accepted here; those
// surface as request-time errors for the affected prefix only.
func (c *Config) Validate() error {
	if c.ProxyPort < 0 || c.ProxyPort > 65535 {
		return fmt.Errorf("proxy_port %d out of range", c.ProxyPort)
	}
	c.ProxyHost = strings.TrimSpace(c.ProxyHost)
	if c.Client.ConnectTimeoutMS < 0 {
		return errors.New("client.connect_timeout_ms must be >= 0")
	}
	if c.Client.TimeoutMS < 0 {
		return errors.New("client.timeout_ms must be >= 0")
	}

	seen := make(map[string]int, len(c.PathPrefixAuths))
	for i := range c.PathPrefixAuths {
		p := &c.PathPrefixAuths[i]
		if err := p.normalize(c); err != nil {
			return fmt.Errorf("path_prefix_auth %d: %w", i, err)
		}
		if err := p.validate(); err != nil {
			return fmt.Errorf("path_prefix_auth %d (%s): %w", i, p.PathPrefix, err)
		}
		if j, dup := seen[p.PathPrefix]; dup {
			return fmt.Errorf("path_prefix_auth %d: path_prefix %q already defined by entry %d", i, p.PathPrefix, j)
		}
		seen[p.PathPrefix] = i
	}
	return nil
}

// ResolvePaths makes relative key and truststore paths relative to dir.
func (c *Config) ResolvePaths(dir string) {
	c.CertFilename = resolve(dir, c.CertFilename)
	c.Client.TrustStore = resolve(dir, c.Client.TrustStore)
	for i := range c.PathPrefixAuths {
		c.PathPrefixAuths[i].CertFilename = resolve(dir, c.PathPrefixAuths[i].CertFilename)
	}
}

func resolve(dir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}

// normalize trims fields, applies defaults and inherits the top-level key.
// The prefix is not cleaned: matching is by plain string prefix, so a
// trailing slash is significant.
func (p *PathPrefixAuth) normalize(c *Config) error {
	p.PathPrefix = strings.TrimSpace(p.PathPrefix)
	if p.PathPrefix == "" {
		return errors.New("path_prefix is required")
	}
	if !strings.HasPrefix(p.PathPrefix, "/") {
		p.PathPrefix = "/" + p.PathPrefix
	}
	p.ServiceHost = strings.TrimRight(strings.TrimSpace(p.ServiceHost), "/")
	p.TokenURL = strings.TrimSpace(p.TokenURL)
	if p.TokenTTL == 0 {
		p.TokenTTL = DefaultTokenTTL
	}
	if strings.TrimSpace(p.CertFilename) == "" {
		p.CertFilename = c.CertFilename
		if p.CertPassword.IsZero() {
			p.CertPassword = c.CertPassword
		}
	}
	return nil
}

func (p *PathPrefixAuth) validate() error {
	if p.ServiceHost == "" {
		return errors.New("service_host is required")
	}
	u, err := url.Parse(p.ServiceHost)
	if err != nil {
		return fmt.Errorf("service_host: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("service_host scheme %q must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("service_host has no host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New("service_host must not carry a query or fragment")
	}
	if p.TokenURL != "" {
		if tu, err := url.Parse(p.TokenURL); err != nil || tu.Host == "" {
			return fmt.Errorf("token_url %q is not an absolute url", p.TokenURL)
		}
	}
	if p.TokenTTL < 0 {
		return errors.New("token_ttl must be >= 0")
	}
	return nil
}
