// internal/pkg/jwt/loader.go
package jwt

import (
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

type Config struct {
	PubPath  string
	Issuer   string
	Audience string
}

// LoadVerifier reads the identity service's RSA public key (PKIX or PKCS1 PEM) and
// builds a Verifier. This service never signs tokens.
func LoadVerifier(cfg Config) (*Verifier, error) {
	pemBytes, err := os.ReadFile(cfg.PubPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key %s: %w", cfg.PubPath, err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key %s: %w", cfg.PubPath, err)
	}
	return NewVerifier(pub, cfg.Issuer, cfg.Audience), nil
}
