package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token belongs to an administrator.
func (c *JWTClaims) IsAdmin() bool {
	return c.Actor().IsAdmin()
}

// Actor is the validated caller identity handed to services.
type Actor struct {
	UserID string
	Role   UserRole
}

// Actor extracts the caller identity from the token claims.
func (c *JWTClaims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{UserID: c.UserID, Role: c.Role}
}

// IsAdmin reports whether the actor may mutate enrollment and assignment state.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}
