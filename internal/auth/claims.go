package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
	// TokenTypeStream only opens the live call feed. It travels in a URL query string,
	// so it is short-lived and accepted nowhere else.
	TokenTypeStream TokenType = "stream"
)

// Claims carry the agent that owns calls, numbers and call history.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

// carriesRole reports whether tokens of type t must name a role.
func (t TokenType) carriesRole() bool {
	return t == TokenTypeAccess || t == TokenTypeStream
}
