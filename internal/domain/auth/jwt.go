// Package auth validates bearer tokens issued for store staff and mints
// development tokens. Issuing production tokens is the identity provider's job.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "storecount/internal/core/context"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         "storecount",
		AccessTokenTTL: 15 * time.Minute,
	}
}

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	// Stores maps a store id to the capabilities granted there.
	Stores  map[string][]string `json:"stores,omitempty"`
	IsAdmin bool                `json:"adm,omitempty"`
}

// TokenSubject is who a token is minted for.
type TokenSubject struct {
	UserID  string
	Stores  map[string][]string
	IsAdmin bool
}

// JWTService handles JWT operations.
type JWTService struct {
	config JWTConfig
	now    func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	return &JWTService{config: config, now: time.Now}
}

// GenerateAccessToken signs a token for subject.
func (s *JWTService) GenerateAccessToken(subject TokenSubject) (string, time.Time, error) {
	if subject.UserID == "" {
		return "", time.Time{}, errors.New("token subject requires a user id")
	}

	now := s.now()
	expiresAt := now.Add(s.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   subject.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:  subject.UserID,
		Stores:  subject.Stores,
		IsAdmin: subject.IsAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates JWT and returns user context.
func (s *JWTService) ValidateToken(tokenString string) (*appctx.Caller, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	},
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, errors.New("token carries no user id")
	}

	return &appctx.Caller{
		UserID:            claims.UserID,
		StoreCapabilities: claims.Stores,
		IsAdmin:           claims.IsAdmin,
	}, nil
}
