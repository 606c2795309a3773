package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"voice-orchestrator/internal/config"
)

var (
	ErrTokenType   = errors.New("auth: unexpected token type")
	ErrMissingUser = errors.New("auth: token has no user_id")
	ErrMissingRole = errors.New("auth: token has no role")
)

// clockSkew is tolerated on iat/exp.
const clockSkew = 30 * time.Second

// Manager issues and verifies HS256 tokens for agents.
type Manager struct {
	secret    []byte
	issuer    string
	audience  string
	ttl       map[TokenType]time.Duration
	validator func(now time.Time) *jwt.Validator
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	streamTTL := cfg.StreamTokenTTL
	if streamTTL <= 0 {
		streamTTL = time.Minute
	}

	m := &Manager{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		ttl: map[TokenType]time.Duration{
			TokenTypeAccess:  cfg.AccessTokenTTL,
			TokenTypeRefresh: cfg.RefreshTokenTTL,
			TokenTypeStream:  streamTTL,
		},
	}
	m.validator = func(now time.Time) *jwt.Validator {
		opts := []jwt.ParserOption{
			jwt.WithTimeFunc(func() time.Time { return now }),
			jwt.WithLeeway(clockSkew),
			jwt.WithIssuedAt(),
			jwt.WithExpirationRequired(),
		}
		if m.issuer != "" {
			opts = append(opts, jwt.WithIssuer(m.issuer))
		}
		if m.audience != "" {
			opts = append(opts, jwt.WithAudience(m.audience))
		}
		return jwt.NewValidator(opts...)
	}
	return m, nil
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (m *Manager) IssuePair(now time.Time, userID, role string) (TokenPair, error) {
	access, err := m.issue(now, TokenTypeAccess, userID, role)
	if err != nil {
		return TokenPair{}, err
	}
	// Refresh tokens do not carry a role.
	refresh, err := m.issue(now, TokenTypeRefresh, userID, "")
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueStream returns a token for the live feed URL and its lifetime.
func (m *Manager) IssueStream(now time.Time, userID, role string) (string, time.Duration, error) {
	tok, err := m.issue(now, TokenTypeStream, userID, role)
	return tok, m.ttl[TokenTypeStream], err
}

// Verify parses tokenString and checks it is an unexpired token of the expected type.
// Time claims are validated against now rather than the wall clock.
func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return Claims{}, err
	}
	if err := m.validator(now).Validate(claims.RegisteredClaims); err != nil {
		return Claims{}, err
	}

	switch {
	case claims.TokenType != expected:
		return Claims{}, fmt.Errorf("%w: got %q, want %q", ErrTokenType, claims.TokenType, expected)
	case claims.UserID == "":
		return Claims{}, ErrMissingUser
	case expected.carriesRole() && claims.Role == "":
		return Claims{}, ErrMissingRole
	}
	return claims, nil
}

func (m *Manager) issue(now time.Time, tokenType TokenType, userID, role string) (string, error) {
	if userID == "" {
		return "", ErrMissingUser
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl[tokenType])),
			ID:        uuid.NewString(),
		},
		UserID:    userID,
		Role:      role,
		TokenType: tokenType,
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}
