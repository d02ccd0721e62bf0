// Package exchange trades a signed client assertion for an access token at an
// authorization server (client_credentials grant, jwt-bearer client auth).
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/joeydtaylor/steeze-tokenproxy/pkg/codec"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/status"
	"go.uber.org/zap"
)

const (
	GrantType           = "client_credentials"
	ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

// TokenResponse is the parsed body of a successful exchange.
type TokenResponse struct {
	AccessToken      string
	TokenType        string
	Scope            string
	ExpiresInSeconds int64
}

// ClientSource hands out the shared outbound client.
// *httpx.ClientFactory satisfies it.
type ClientSource interface {
	Client() (*http.Client, error)
}

type Exchanger struct {
	clients ClientSource
	log     *zap.Logger
}

func NewExchanger(clients ClientSource, log *zap.Logger) *Exchanger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exchanger{clients: clients, log: log}
}

// Exchange posts the assertion to tokenURL and parses the token response.
func (e *Exchanger) Exchange(ctx context.Context, tokenURL, assertion string) (TokenResponse, error) {
	if strings.TrimSpace(tokenURL) == "" {
		return TokenResponse{}, status.Config("tokenUrl")
	}
	hc, err := e.clients.Client()
	if err != nil {
		e.log.Error("cannot create outbound client", zap.Error(err))
		return TokenResponse{}, err
	}

	form := url.Values{}
	form.Set("grant_type", GrantType)
	form.Set("client_assertion_type", ClientAssertionType)
	form.Set("client_assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, status.Connection(tokenURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := hc.Do(req)
	if err != nil {
		e.log.Error("token request failed", zap.String("tokenUrl", tokenURL), zap.Error(err))
		return TokenResponse{}, status.Connection(tokenURL, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return TokenResponse{}, status.Connection(tokenURL, err)
	}

	if res.StatusCode != http.StatusOK {
		e.log.Error("token request rejected",
			zap.String("tokenUrl", tokenURL),
			zap.Int("status", res.StatusCode),
			zap.ByteString("body", body),
		)
		return TokenResponse{}, status.TokenExchange(string(body))
	}

	m, err := codec.DecodeObject(body)
	if err != nil {
		return TokenResponse{}, status.TokenExchange("response body is not a JSON")
	}
	tr := TokenResponse{
		AccessToken: stringField(m, "access_token"),
		TokenType:   stringField(m, "token_type"),
		Scope:       stringField(m, "scope"),
	}
	if tr.ExpiresInSeconds, err = intField(m, "expires_in"); err != nil {
		return TokenResponse{}, status.TokenExchange(err.Error())
	}
	return tr, nil
}

func stringField(m map[string]any, k string) string {
	s, _ := m[k].(string)
	return s
}

// intField accepts integral JSON numbers and numeric strings; some servers
// quote expires_in.
func intField(m map[string]any, k string) (int64, error) {
	switch v := m[k].(type) {
	case nil:
		return 0, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s: %w", k, err)
		}
		return int64(f), nil
	case string:
		n, err := json.Number(v).Int64()
		if err != nil {
			return 0, fmt.Errorf("%s is not a number: %q", k, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s has unexpected type %T", k, v)
	}
}
