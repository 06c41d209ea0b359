package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ServiceClaims identify this service to the profile service.
type ServiceClaims struct {
	TokenType string `json:"token_type"`
	OpenID    string `json:"openid,omitempty"`
	jwt.RegisteredClaims
}

// ServiceTokenSigner mints short-lived HS256 tokens that authenticate calls
// from this service to the profile service.
type ServiceTokenSigner struct {
	issuer   string
	audience string
	secret   []byte
}

func NewServiceTokenSigner(issuer, audience, secret string) *ServiceTokenSigner {
	return &ServiceTokenSigner{
		issuer:   issuer,
		audience: audience,
		secret:   []byte(secret),
	}
}

func (s *ServiceTokenSigner) Sign(openID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ServiceClaims{
		TokenType: "service",
		OpenID:    openID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   s.issuer,
			Audience:  []string{s.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *ServiceTokenSigner) Parse(raw string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.audience))
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != "service" {
		return nil, fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	return claims, nil
}
