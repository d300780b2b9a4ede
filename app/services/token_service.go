package services

import (
	"fmt"
	"time"

	"provision-svc/app/domains"

	"github.com/golang-jwt/jwt/v5"
)

// TokenResolver maps a machine token to the node it was issued for
type TokenResolver interface {
	ResolveToken(token string) (string, error)
}

// TokenService issues and resolves machine tokens
type TokenService struct {
	secret     []byte
	expiration time.Duration
}

// NewTokenService creates a new token service
func NewTokenService(secret string, expirationSec int64) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		expiration: time.Duration(expirationSec) * time.Second,
	}
}

// Claims represents the token claims
type Claims struct {
	NodeID string `json:"node_id"`
	jwt.RegisteredClaims
}

// GenerateToken generates a token bound to a node
func (s *TokenService) GenerateToken(nodeID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		NodeID: nodeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   nodeID,
			Issuer:    "provision-svc",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ResolveToken validates a token and returns its node ID.
// Every failure wraps domains.ErrUnknownToken.
func (s *TokenService) ResolveToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domains.ErrUnknownToken, err)
	}

	if !token.Valid || claims.NodeID == "" {
		return "", domains.ErrUnknownToken
	}

	return claims.NodeID, nil
}
