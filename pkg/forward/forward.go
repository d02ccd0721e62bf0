// Package forward relays an inbound request to an upstream host with a bearer
// token and copies the upstream response back unchanged.
package forward

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/joeydtaylor/steeze-tokenproxy/pkg/status"
	"go.uber.org/zap"
)

// ClientSource hands out the shared outbound client.
type ClientSource interface {
	Client() (*http.Client, error)
}

type Forwarder struct {
	clients ClientSource
	log     *zap.Logger
}

func New(clients ClientSource, log *zap.Logger) *Forwarder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Forwarder{clients: clients, log: log}
}

// Target builds the upstream URL for r. Methods without a body always carry
// the query separator, even when the inbound query is empty.
func Target(m Method, host string, r *http.Request) string {
	u := host + r.URL.EscapedPath()
	if rules[m].withQuery {
		u += "?" + r.URL.RawQuery
	}
	return u
}

// Forward sends r to host with the given Authorization value and writes the
// upstream response to w. Nothing is written to w when an error is returned.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, authorization, host string) error {
	m := ParseMethod(r.Method)
	rl, ok := rules[m]
	if !ok {
		return status.MethodNotAllowed(r.Method, r.URL.Path)
	}
	target := Target(m, host, r)

	var body io.Reader = http.NoBody
	if rl.withBody {
		buf, err := readBody(r)
		if err != nil {
			return status.Wrap(status.KindUnknown, "reading request body", err)
		}
		body = bytes.NewReader(buf)
	}

	hc, err := f.clients.Client()
	if err != nil {
		return err
	}

	out, err := http.NewRequestWithContext(r.Context(), rl.verb, target, body)
	if err != nil {
		return status.Upstream(target, err)
	}
	out.Header.Set("Authorization", authorization)
	if ct := r.Header.Get("Content-Type"); ct != "" {
		out.Header.Set("Content-Type", ct)
	}

	f.log.Debug("forwarding", zap.String("method", rl.verb), zap.String("target", target))
	res, err := hc.Do(out)
	if err != nil {
		f.log.Error("upstream request failed", zap.String("target", target), zap.Error(err))
		return status.Upstream(target, err)
	}
	defer res.Body.Close()

	relayHeaders(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		// Status is already on the wire; the client sees a truncated body.
		f.log.Warn("relaying upstream body", zap.String("target", target), zap.Error(err))
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// relayHeaders copies every upstream header except HTTP/2 pseudo-headers,
// adding each value of a multi-value header in order.
func relayHeaders(dst, src http.Header) {
	for name, values := range src {
		if name == "" || strings.HasPrefix(name, ":") {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}
