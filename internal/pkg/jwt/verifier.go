// internal/pkg/jwt/verifier.go
package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"

	xerrors "propdesk-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const PurposeAccess = "access"

var (
	errNotAccess = errors.New("token is not an access token")
	errTemporary = errors.New("temporary token cannot be used for access")
	errNoAccount = errors.New("token carries no account")
)

type Verifier struct {
	pub    *rsa.PublicKey
	parser *jwt.Parser
}

func NewVerifier(pub *rsa.PublicKey, issuer, audience string) *Verifier {
	return &Verifier{
		pub: pub,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
	}
}

// Verify checks signature, issuer, audience and expiry. Every failure wraps
// xerrors.ErrUnauthorized.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if v.pub == nil {
		return nil, fmt.Errorf("verifier has no public key: %w", xerrors.ErrUnauthorized)
	}

	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.pub, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrUnauthorized, err)
	}
	return claims, nil
}

// VerifyAccessToken additionally requires a non-temporary access token scoped to an account.
func (v *Verifier) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	switch {
	case claims.SessionPurpose != PurposeAccess:
		err = errNotAccess
	case claims.IsTemp:
		err = errTemporary
	case claims.AccountID <= 0:
		err = errNoAccount
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrUnauthorized, err)
	}
	return claims, nil
}
