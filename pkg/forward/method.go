package forward

import (
	"net/http"
	"strings"
)

// Method is the closed set of verbs the forwarder relays.
type Method int

const (
	Unsupported Method = iota
	MethodGet
	MethodDelete
	MethodPost
	MethodPut
	MethodPatch
)

// rule says how the outbound request is built for a method.
type rule struct {
	verb      string
	withQuery bool // append the inbound raw query
	withBody  bool // send the buffered inbound body
}

var rules = map[Method]rule{
	MethodGet:    {verb: http.MethodGet, withQuery: true},
	MethodDelete: {verb: http.MethodDelete, withQuery: true},
	MethodPost:   {verb: http.MethodPost, withBody: true},
	MethodPut:    {verb: http.MethodPut, withBody: true},
	MethodPatch:  {verb: http.MethodPatch, withBody: true},
}

var byVerb = func() map[string]Method {
	m := make(map[string]Method, len(rules))
	for k, r := range rules {
		m[r.verb] = k
	}
	return m
}()

// ParseMethod maps a request method to its Method, ignoring case. Unknown
// verbs are Unsupported.
func ParseMethod(verb string) Method { return byVerb[strings.ToUpper(verb)] }

func (m Method) String() string {
	if r, ok := rules[m]; ok {
		return r.verb
	}
	return "UNSUPPORTED"
}

func (m Method) Supported() bool {
	_, ok := rules[m]
	return ok
}
