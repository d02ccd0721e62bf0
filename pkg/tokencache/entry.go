package tokencache

import (
	"sync/atomic"

	"github.com/joeydtaylor/steeze-tokenproxy/pkg/assertion"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/manifest"
)

// State is the token currently held for a prefix. ExpiresAtMillis is the
// wall-clock instant (Unix ms) after which AccessToken must not be used; zero
// means no token has been fetched yet.
type State struct {
	AccessToken     string
	ExpiresAtMillis int64
}

// Entry is the per-prefix credential record. Configuration fields are fixed
// at construction; the token state is replaced as a whole by the Cache only.
type Entry struct {
	PathPrefix      string
	UpstreamHost    string
	TokenURL        string
	Issuer          string
	Subject         string
	Audience        string
	TokenTTLSeconds int
	KeyFile         string
	KeyPassword     manifest.Secret

	state atomic.Pointer[State]
}

// NewEntry builds an entry from a validated prefix configuration.
func NewEntry(p manifest.PathPrefixAuth) *Entry {
	return &Entry{
		PathPrefix:      p.PathPrefix,
		UpstreamHost:    p.ServiceHost,
		TokenURL:        p.TokenURL,
		Issuer:          p.AuthIssuer,
		Subject:         p.AuthSubject,
		Audience:        p.AuthAudience,
		TokenTTLSeconds: p.TokenTTL,
		KeyFile:         p.CertFilename,
		KeyPassword:     p.CertPassword,
	}
}

// Snapshot returns a consistent copy of the token and its expiry.
func (e *Entry) Snapshot() State {
	if s := e.state.Load(); s != nil {
		return *s
	}
	return State{}
}

func (e *Entry) store(s State) { e.state.Store(&s) }

// AssertionRequest describes the client assertion this prefix signs.
func (e *Entry) AssertionRequest() assertion.Request {
	return assertion.Request{
		Issuer:      e.Issuer,
		Subject:     e.Subject,
		Audience:    e.Audience,
		TTLSeconds:  e.TokenTTLSeconds,
		KeyFile:     e.KeyFile,
		KeyPassword: e.KeyPassword.Value(),
	}
}

// SameCredentials reports whether o would obtain tokens from the same
// authorization server under the same identity.
func (e *Entry) SameCredentials(o *Entry) bool {
	return o != nil &&
		e.PathPrefix == o.PathPrefix &&
		e.TokenURL == o.TokenURL &&
		e.Issuer == o.Issuer &&
		e.Subject == o.Subject &&
		e.Audience == o.Audience &&
		e.TokenTTLSeconds == o.TokenTTLSeconds &&
		e.KeyFile == o.KeyFile &&
		e.KeyPassword == o.KeyPassword
}

// Adopt copies o's token state into e. Used when a reload keeps a prefix's
// credentials unchanged so the fresh table does not force a refresh.
func (e *Entry) Adopt(o *Entry) {
	if s := o.state.Load(); s != nil {
		e.store(*s)
	}
}
