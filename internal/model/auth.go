package model

import "github.com/golang-jwt/jwt/v5"

// UserClaims are the JWT claims carrying a pre-validated user identity,
// issued by the surrounding product's auth layer.
type UserClaims struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Identity resolves the acting user id, falling back to the subject claim.
func (c *UserClaims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}
