package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"glucolog/internal/engine/credentials"
	"glucolog/internal/platform/config"
)

type Claims struct {
	UserID string `json:"uid"`
	Tier   string `json:"tier"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type TokenService struct {
	config      config.JWTConfig
	defaultTier string
	now         func() time.Time
}

func NewTokenService(cfg config.JWTConfig, defaultTier string) *TokenService {
	return &TokenService{config: cfg, defaultTier: defaultTier, now: time.Now}
}

func (s *TokenService) GenerateAccessToken(userID, tier, email string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		Tier:   tier,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(s.config.Issuer), jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// VerifySession resolves a session token to the identity admission control charges.
func (s *TokenService) VerifySession(_ context.Context, token string) (credentials.Identity, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return credentials.Identity{}, err
	}
	tier := claims.Tier
	if tier == "" {
		tier = s.defaultTier
	}
	return credentials.Identity{PrincipalID: claims.UserID, Tier: tier}, nil
}
