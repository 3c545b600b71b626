package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the access token payload issued by the identity provider.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor converts claims into the identity recorded on audit entries.
func (c *JWTClaims) Actor() Actor {
	if c == nil {
		return SystemActor
	}
	return Actor{ID: c.UserID, Role: c.Role}
}
