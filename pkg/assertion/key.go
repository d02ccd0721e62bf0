package assertion

import (
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joeydtaylor/steeze-tokenproxy/pkg/status"
	"software.sslmate.com/src/go-pkcs12"
)

// LoadKey reads an RSA private key from a PKCS#12 keystore (.p12/.pfx) or a
// PEM file (PKCS#1 or PKCS#8). The password unlocks PKCS#12 stores and is
// ignored for PEM. Errors never include the password.
func LoadKey(path, password string) (*rsa.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, status.KeyLoad("cert_filename is empty", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, status.KeyLoad(path, err)
	}
	return ParseKey(path, data, password)
}

// ParseKey decodes key material already read from name.
func ParseKey(name string, data []byte, password string) (*rsa.PrivateKey, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".p12", ".pfx":
		return parsePKCS12(name, data, password)
	}
	if block, _ := pem.Decode(data); block == nil {
		// Not PEM; keystores are sometimes shipped without an extension.
		return parsePKCS12(name, data, password)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, status.KeyLoad(name, err)
	}
	return key, nil
}

func parsePKCS12(name string, data []byte, password string) (*rsa.PrivateKey, error) {
	priv, _, _, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, status.KeyLoad(name, err)
	}
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, status.KeyLoad(name, errors.New("keystore does not hold an RSA private key"))
	}
	return key, nil
}
