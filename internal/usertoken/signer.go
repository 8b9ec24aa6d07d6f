package usertoken

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"personapost/pkg/domain"
)

// Signer mints HS256 tokens accepted by a Verifier configured with the same
// secret. Production tokens come from the auth service; this is for local
// development and tests.
type Signer struct {
	secret   []byte
	issuer   string
	audience string
}

// NewSigner returns a signer for secret. Empty issuer/audience use defaults.
func NewSigner(secret, issuer, audience string) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("signing secret required")
	}
	return &Signer{
		secret:   []byte(secret),
		issuer:   orDefault(issuer, DefaultIssuer),
		audience: orDefault(audience, DefaultAudience),
	}, nil
}

// Sign issues a token for userID with role, valid for ttl.
func (s *Signer) Sign(userID string, role domain.UserRole, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now().UTC()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Second)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
