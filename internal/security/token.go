package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultSessionTTL = 7 * 24 * time.Hour

var ErrInvalidSession = errors.New("invalid session")

// SessionIdentity is what a session token asserts about the admin principal.
type SessionIdentity struct {
	AdminID   string
	Email     string
	FirstName string
	LastName  string
}

type SessionClaims struct {
	AdminID   string `json:"adminId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	jwt.RegisteredClaims
}

func (c SessionClaims) Identity() SessionIdentity {
	return SessionIdentity{
		AdminID:   c.AdminID,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
}

// SessionTokens issues and verifies the stateless admin session token. Validity is
// decided by signature and expiry alone; nothing is stored server-side.
type SessionTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionTokens(secret []byte, ttl time.Duration) (*SessionTokens, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	key := make([]byte, len(secret))
	copy(key, secret)

	return &SessionTokens{
		secret: key,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock swaps the time source; used by tests to step past expiry.
func (s *SessionTokens) WithClock(now func() time.Time) *SessionTokens {
	clone := *s
	clone.now = now
	return &clone
}

func (s *SessionTokens) TTL() time.Duration {
	return s.ttl
}

func (s *SessionTokens) Issue(identity SessionIdentity) (string, error) {
	if identity.AdminID == "" {
		return "", errors.New("session identity has no admin id")
	}

	now := s.now()
	claims := SessionClaims{
		AdminID:   identity.AdminID,
		Email:     identity.Email,
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.AdminID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

func (s *SessionTokens) Verify(tokenStr string) (SessionClaims, error) {
	if tokenStr == "" {
		return SessionClaims{}, fmt.Errorf("%w: empty token", ErrInvalidSession)
	}

	var claims SessionClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !token.Valid || claims.AdminID == "" {
		return SessionClaims{}, fmt.Errorf("%w: missing identity", ErrInvalidSession)
	}
	return claims, nil
}
