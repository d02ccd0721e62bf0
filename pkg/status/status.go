// Package status defines the broker's error taxonomy. Every failure that can
// end a proxied request is a *Error carrying a stable code, the HTTP status it
// maps to and a human readable detail.
package status

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the failure classes.
type Kind int

const (
	KindUnknown Kind = iota
	KindKeyLoad
	KindSigning
	KindConfig
	KindTransportInit
	KindConnection
	KindTokenExchange
	KindMethodNotAllowed
	KindUpstream
)

type kindInfo struct {
	name    string
	code    string
	status  int
	message string
}

var kinds = map[Kind]kindInfo{
	KindKeyLoad:          {"KeyLoadError", "ERR10061", http.StatusInternalServerError, "Unable to load the signing key"},
	KindSigning:          {"SigningError", "ERR10062", http.StatusInternalServerError, "Unable to sign the client assertion"},
	KindConfig:           {"ConfigError", "ERR10056", http.StatusInternalServerError, "OAuth server url is missing"},
	KindTransportInit:    {"TransportInitError", "ERR10055", http.StatusInternalServerError, "Unable to create the outbound client"},
	KindConnection:       {"ConnectionError", "ERR10053", http.StatusBadGateway, "Unable to establish connection"},
	KindTokenExchange:    {"TokenExchangeError", "ERR10052", http.StatusBadGateway, "Unable to get the access token"},
	KindMethodNotAllowed: {"MethodNotAllowedError", "ERR10008", http.StatusMethodNotAllowed, "Method not allowed"},
	KindUpstream:         {"UpstreamError", "ERR10063", http.StatusBadGateway, "Upstream request failed"},
	KindUnknown:          {"UnknownError", "ERR10000", http.StatusInternalServerError, "Unexpected error"},
}

func (k Kind) info() kindInfo {
	if i, ok := kinds[k]; ok {
		return i
	}
	return kinds[KindUnknown]
}

func (k Kind) String() string { return k.info().name }

// Code is the stable machine readable code for the kind.
func (k Kind) Code() string { return k.info().code }

// HTTPStatus is the response status written for the kind.
func (k Kind) HTTPStatus() int { return k.info().status }

// Error is the single error type returned across component boundaries.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.info().message
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %s: %v", e.Kind.Code(), msg, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s %s: %s", e.Kind.Code(), msg, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Kind.Code(), msg, e.Err)
	}
	return e.Kind.Code() + " " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the stable code of the error's kind.
func (e *Error) Code() string { return e.Kind.Code() }

// Message returns the fixed human readable message of the error's kind.
func (e *Error) Message() string { return e.Kind.info().message }

// New builds an error of the given kind.
func New(k Kind, detail string) *Error { return &Error{Kind: k, Detail: detail} }

// Wrap builds an error of the given kind around a cause.
func Wrap(k Kind, detail string, err error) *Error { return &Error{Kind: k, Detail: detail, Err: err} }

func KeyLoad(detail string, err error) *Error { return Wrap(KindKeyLoad, detail, err) }
func Signing(err error) *Error                { return Wrap(KindSigning, "", err) }
func Config(field string) *Error              { return New(KindConfig, field) }
func TransportInit(err error) *Error          { return Wrap(KindTransportInit, "", err) }
func Connection(url string, err error) *Error { return Wrap(KindConnection, url, err) }
func TokenExchange(detail string) *Error      { return New(KindTokenExchange, detail) }
func Upstream(url string, err error) *Error   { return Wrap(KindUpstream, url, err) }

func MethodNotAllowed(method, path string) *Error {
	return New(KindMethodNotAllowed, fmt.Sprintf("method %s is not allowed for path %s", method, path))
}

// From extracts a *Error from err's chain.
func From(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	se, ok := From(err)
	return ok && se.Kind == k
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	if se, ok := From(err); ok {
		return se.Kind
	}
	return KindUnknown
}
