package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/capitalize-ai/ai-twin/internal/model"
	"github.com/capitalize-ai/ai-twin/pkg/clock"
)

// SessionPrefix starts every session id.
const SessionPrefix = "sess_"

// ErrInvalidSession is returned for client secrets that do not verify.
var ErrInvalidSession = errors.New("invalid session")

// SessionService issues and verifies session client secrets.
type SessionService struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewSessionService creates a new session service.
func NewSessionService(secret string, ttl time.Duration, c clock.Clock) *SessionService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionService{secret: []byte(secret), ttl: ttl, clock: c}
}

// Create issues a new session. The client secret is an HS256 token whose
// subject is the session id.
func (s *SessionService) Create() (model.Session, error) {
	now := s.clock.Now()
	id := SessionPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	expires := now.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to sign session: %w", err)
	}

	return model.Session{ID: id, ClientSecret: signed, ExpiresAt: expires.UTC()}, nil
}

// Parse verifies a client secret and returns its session id.
func (s *SessionService) Parse(clientSecret string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(clientSecret, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !strings.HasPrefix(claims.Subject, SessionPrefix) {
		return "", fmt.Errorf("%w: unexpected subject", ErrInvalidSession)
	}
	return claims.Subject, nil
}
