// Package auth issues and validates the bearer tokens that guard scene and
// bug authoring.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// RoleAdmin is the only role the API recognizes.
	RoleAdmin = "admin"

	DefaultTokenExpiry = 12 * time.Hour
	// DefaultLeeway is the clock skew tolerated on expiry.
	DefaultLeeway = 30 * time.Second
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrEmptySubject = errors.New("subject cannot be empty")
	ErrNotAdmin     = errors.New("token does not grant admin access")
)

// Claims are the registered claims plus the caller's role.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTService signs HS256 admin tokens with its first key and accepts tokens
// signed by any of its keys, so a secret can be rotated without logging
// authors out.
type JWTService struct {
	keys   [][]byte
	leeway time.Duration
}

func NewJWTService(secret string) *JWTService {
	return NewJWTServiceWithRotation(secret, "")
}

// NewJWTServiceWithRotation signs with current and also accepts previous.
// An empty previous disables rotation.
func NewJWTServiceWithRotation(current, previous string) *JWTService {
	s := &JWTService{keys: [][]byte{[]byte(current)}, leeway: DefaultLeeway}
	if previous != "" {
		s.keys = append(s.keys, []byte(previous))
	}
	return s
}

func (s *JWTService) WithLeeway(leeway time.Duration) *JWTService {
	s.leeway = leeway
	return s
}

// GenerateAdminToken signs an admin token for subject. A non-positive ttl
// uses DefaultTokenExpiry.
func (s *JWTService) GenerateAdminToken(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}
	if ttl <= 0 {
		ttl = DefaultTokenExpiry
	}
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: RoleAdmin,
	}).SignedString(s.keys[0])
}

// ValidateToken returns the claims of a token signed by any accepted key.
// A token that verifies but has expired yields ErrExpiredToken; every other
// failure is ErrInvalidToken.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.leeway),
	)

	expired := false
	for _, key := range s.keys {
		claims := &Claims{}
		_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err == nil {
			return claims, nil
		}
		expired = expired || errors.Is(err, jwt.ErrTokenExpired)
	}
	if expired {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}

// ValidateAdminToken also requires the admin role and a subject.
func (s *JWTService) ValidateAdminToken(tokenString string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin || claims.Subject == "" {
		return nil, ErrNotAdmin
	}
	return claims, nil
}
