package authz

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/pkg/acl"
)

// Common errors for session token operations.
var (
	ErrInvalidToken        = errors.New("invalid session token")
	ErrExpiredToken        = errors.New("session token has expired")
	ErrInvalidSecretLength = errors.New("session secret must be at least 32 characters")
)

// SessionCookie is the cookie the SSO collaborator sets after
// authenticating a user.
const SessionCookie = "connector-session"

// Claims is the session token payload: the authenticated user plus group
// memberships resolved at login time.
type Claims struct {
	jwt.RegisteredClaims

	Username string   `json:"username"`
	Groups   []string `json:"groups,omitempty"`
}

// SessionConfig holds configuration for session token handling.
type SessionConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "connector".
	Issuer string

	// Duration is the session lifetime. Default: 30 minutes.
	Duration time.Duration
}

// SessionService mints and validates session tokens and resolves request
// identities from them.
type SessionService struct {
	config SessionConfig
}

// NewSessionService creates a session service with the given configuration.
func NewSessionService(config SessionConfig) (*SessionService, error) {
	if len(config.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if config.Issuer == "" {
		config.Issuer = "connector"
	}
	if config.Duration == 0 {
		config.Duration = 30 * time.Minute
	}
	return &SessionService{config: config}, nil
}

// Mint creates a signed session token for the authenticated identity.
func (s *SessionService) Mint(id acl.Identity) (string, error) {
	if id.Anonymous() {
		return "", fmt.Errorf("%w: anonymous identity", ErrInvalidToken)
	}
	now := time.Now()
	groups := make([]string, 0, len(id.Groups))
	for _, g := range id.Groups {
		groups = append(groups, g.Name)
	}
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   id.User.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.Duration)),
		},
		Username: id.User.Name,
		Groups:   groups,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

// Validate checks a session token and returns its claims.
func (s *SessionService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IdentityFromRequest resolves the caller's identity from the session
// cookie. Missing or invalid cookies yield the anonymous identity; expired
// or malformed tokens are logged at debug level.
func (s *SessionService) IdentityFromRequest(r *http.Request) acl.Identity {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return acl.Identity{}
	}
	claims, err := s.Validate(cookie.Value)
	if err != nil {
		logger.Debug("Rejecting session cookie", logger.KeyError, err.Error())
		return acl.Identity{}
	}
	return identityFromClaims(claims)
}

func identityFromClaims(claims *Claims) acl.Identity {
	user, err := acl.NewUser(claims.Username)
	if err != nil {
		return acl.Identity{}
	}
	id := acl.Identity{User: user}
	for _, g := range claims.Groups {
		group, err := acl.NewGroup(g)
		if err != nil {
			continue
		}
		id.Groups = append(id.Groups, group)
	}
	return id
}
