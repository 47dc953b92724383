package jwt

import (
	"strings"
	"time"
)

// Service is a wrapper for JWT operations bound to one signing secret
type Service struct {
	secretKey []byte
	issuer    string
	expiry    time.Duration
}

// NewService creates a new JWT service. The issuer is checked on validation when non-empty.
func NewService(secretKey, issuer string, expiry time.Duration) (*Service, error) {
	if secretKey == "" {
		return nil, ErrEmptySecret
	}

	if expiry == 0 {
		expiry = 24 * time.Hour
	}

	return &Service{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		expiry:    expiry,
	}, nil
}

// GenerateToken generates an ID token for a principal
func (s *Service) GenerateToken(uid, email, displayName string) (string, error) {
	return generateToken(s.secretKey, s.issuer, s.expiry, uid, email, displayName)
}

// ValidateToken validates an ID token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*JWTClaims, error) {
	return validateToken(s.secretKey, s.issuer, tokenString)
}

// BearerToken strips the "Bearer " prefix from an Authorization header value
func BearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return header
}
