package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

// CookieName carries the session token. The cookie is an opaque credential:
// the core only ever sees the Identity parsed out of it.
const CookieName = "clinic_session"

var (
	ErrInvalidToken = errors.New("invalid session token")
)

// Identity is who a request runs as. It is passed explicitly into every
// core call instead of living in a shared current-user object.
type Identity struct {
	UserID uuid.UUID
	Role   scheduling.Role
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// SessionManager mints and parses the HS256 session tokens set after
// inscription or connexion.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

func (m *SessionManager) Issue(identity Identity) (string, error) {
	now := m.now()
	claims := sessionClaims{
		Role: string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

func (m *SessionManager) Parse(raw string) (Identity, error) {
	var claims sessionClaims

	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID: userID,
		Role:   scheduling.Role(claims.Role),
	}, nil
}
