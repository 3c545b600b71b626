package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/convivencia-api/internal/models"
	appErrors "github.com/noah-isme/convivencia-api/pkg/errors"
)

func signTestToken(t *testing.T, method jwt.SigningMethod, secret string, claims *models.JWTClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func staffClaims(role models.UserRole, issuer string, expires time.Time) *models.JWTClaims {
	return &models.JWTClaims{
		UserID: "user-1",
		Role:   role,
		Email:  "inspectoria@colegio.cl",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(expires.Add(-time.Hour)),
		},
	}
}

func TestTokenServiceValidateToken(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "idp.colegio.cl"})
	token := signTestToken(t, jwt.SigningMethodHS256, "secret", staffClaims(models.RoleInspector, "idp.colegio.cl", time.Now().Add(time.Hour)))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.Actor{ID: "user-1", Role: models.RoleInspector}, claims.Actor())
}

func TestTokenServiceRejectsInvalidTokens(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "idp.colegio.cl"})
	future := time.Now().Add(time.Hour)

	cases := map[string]string{
		"wrong secret":  signTestToken(t, jwt.SigningMethodHS256, "other", staffClaims(models.RoleAdmin, "idp.colegio.cl", future)),
		"wrong issuer":  signTestToken(t, jwt.SigningMethodHS256, "secret", staffClaims(models.RoleAdmin, "elsewhere", future)),
		"expired":       signTestToken(t, jwt.SigningMethodHS256, "secret", staffClaims(models.RoleAdmin, "idp.colegio.cl", time.Now().Add(-time.Minute))),
		"unknown role":  signTestToken(t, jwt.SigningMethodHS256, "secret", staffClaims("STUDENT", "idp.colegio.cl", future)),
		"system role":   signTestToken(t, jwt.SigningMethodHS256, "secret", staffClaims(models.RoleSystem, "idp.colegio.cl", future)),
		"wrong alg":     signTestToken(t, jwt.SigningMethodHS512, "secret", staffClaims(models.RoleAdmin, "idp.colegio.cl", future)),
		"not a jwt":     "abc.def",
		"empty payload": "",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
		})
	}
}

func TestTokenServiceSubjectFallback(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret"})
	claims := staffClaims(models.RolePrincipal, "", time.Now().Add(time.Hour))
	claims.UserID = ""
	claims.Subject = "user-sub"

	parsed, err := svc.ValidateToken(signTestToken(t, jwt.SigningMethodHS256, "secret", claims))
	require.NoError(t, err)
	assert.Equal(t, "user-sub", parsed.UserID)
}
