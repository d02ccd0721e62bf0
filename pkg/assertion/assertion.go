// Package assertion builds the signed JWT client assertions presented to an
// authorization server in a jwt-bearer client-credentials exchange.
package assertion

import (
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/status"
)

// Claims are the inputs of a single assertion.
type Claims struct {
	Issuer     string
	Subject    string
	Audience   string
	JTI        string
	TTLSeconds int
	// IssuedAt defaults to time.Now when zero.
	IssuedAt time.Time
}

// Build signs an RS256 assertion over iss, sub, aud, jti, iat and exp.
// aud is emitted as a plain string, not an array.
func Build(c Claims, key *rsa.PrivateKey) (string, error) {
	if key == nil {
		return "", status.KeyLoad("signing key not loaded", nil)
	}
	iat := c.IssuedAt
	if iat.IsZero() {
		iat = time.Now()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": c.Issuer,
		"sub": c.Subject,
		"aud": c.Audience,
		"jti": c.JTI,
		"iat": iat.Unix(),
		"exp": iat.Unix() + int64(c.TTLSeconds),
	})
	signed, err := tok.SignedString(key)
	if err != nil {
		return "", status.Signing(err)
	}
	return signed, nil
}

// Request describes the assertion a prefix needs, including where its
// signing key lives.
type Request struct {
	Issuer      string
	Subject     string
	Audience    string
	TTLSeconds  int
	KeyFile     string
	KeyPassword string
}

// Signer loads the signing key and builds a fresh assertion per call.
// Keys are read on every call so a rotated keystore is picked up without a
// restart.
type Signer struct {
	LoadKey func(path, password string) (*rsa.PrivateKey, error)
	Now     func() time.Time
	NewJTI  func() string
}

// NewSigner returns a Signer reading keys from disk, using wall-clock time and
// random UUID jti values.
func NewSigner() *Signer {
	return &Signer{LoadKey: LoadKey, Now: time.Now, NewJTI: uuid.NewString}
}

// Sign builds and signs the assertion described by req.
func (s *Signer) Sign(req Request) (string, error) {
	key, err := s.LoadKey(req.KeyFile, req.KeyPassword)
	if err != nil {
		if _, ok := status.From(err); ok {
			return "", err
		}
		return "", status.KeyLoad(req.KeyFile, err)
	}
	return Build(Claims{
		Issuer:     req.Issuer,
		Subject:    req.Subject,
		Audience:   req.Audience,
		JTI:        s.NewJTI(),
		TTLSeconds: req.TTLSeconds,
		IssuedAt:   s.Now(),
	}, key)
}
