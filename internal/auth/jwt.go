package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lalith-99/studybuddy/internal/models"
)

const issuer = "studybuddy"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token revoked")
)

// Claims is the payload inside every JWT token.
//
// The middleware reads these back on every request, which is how the server
// knows who is calling without a database lookup. RegisteredClaims.ID (jti)
// is what logout revokes.
type Claims struct {
	UserID uuid.UUID   `json:"user_id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed HS256 JWT for a given user.
func GenerateToken(userID uuid.UUID, email string, role models.Role, secret string, ttl time.Duration) (string, *Claims, error) {
	now := time.Now()

	claims := &Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	return signed, claims, nil
}

// ParseToken validates a JWT string and extracts the claims.
//
// It verifies:
//  1. The signature matches our secret (not tampered with).
//  2. The token hasn't expired.
//  3. The signing method is HMAC. Anything else ("none", RSA) is rejected
//     before the key is handed out, which blocks algorithm confusion.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("parse token: %w", ErrInvalidToken)
	}

	return claims, nil
}

// Manager issues and verifies session tokens and remembers which ones were
// signed out.
type Manager struct {
	secret  string
	ttl     time.Duration
	revoked RevocationStore
}

func NewManager(secret string, ttl time.Duration, revoked RevocationStore) *Manager {
	return &Manager{secret: secret, ttl: ttl, revoked: revoked}
}

func (m *Manager) Issue(u *models.User) (string, *Claims, error) {
	return GenerateToken(u.ID, u.Email, u.Role, m.secret, m.ttl)
}

// Verify parses the token and rejects it if it has been revoked.
func (m *Manager) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := ParseToken(tokenString, m.secret)
	if err != nil {
		return nil, err
	}
	revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}

// Revoke signs the token out until it would have expired anyway.
func (m *Manager) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return fmt.Errorf("revoke token: missing token id")
	}
	expires := time.Now().Add(m.ttl)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return m.revoked.Revoke(ctx, claims.ID, expires)
}
