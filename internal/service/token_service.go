package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/convivencia-api/internal/models"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
)

// TokenConfig describes how access tokens from the identity provider are verified.
type TokenConfig struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

// TokenService validates HS256 access tokens and exposes their claims.
type TokenService struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenService constructs the validator.
func NewTokenService(cfg TokenConfig) *TokenService {
	return &TokenService{cfg: cfg, now: time.Now}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(s.cfg.Leeway))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" || !claims.Role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token lacks a staff identity")
	}
	return claims, nil
}
