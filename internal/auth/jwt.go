package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token roles
const (
	RoleAdmin    = "admin"
	RoleRealtime = "realtime"
)

const (
	AdminTokenTTL    = 12 * time.Hour
	RealtimeTokenTTL = 60 * time.Second
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongRole    = errors.New("token role not allowed")
)

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	Role    string `json:"role"`
	Email   string `json:"email,omitempty"`
	Subject string `json:"subject,omitempty"` // tutoring subject for realtime tokens
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 tokens with one shared secret
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer creates an issuer for secret
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

// GenerateAdminToken generates a back-office token for email
func (i *Issuer) GenerateAdminToken(email string) (string, time.Time, error) {
	return i.sign(&JWTClaims{Role: RoleAdmin, Email: email}, AdminTokenTTL)
}

// GenerateRealtimeToken generates a short-lived token that opens one realtime session
func (i *Issuer) GenerateRealtimeToken(subject string) (string, time.Time, error) {
	return i.sign(&JWTClaims{Role: RoleRealtime, Subject: subject}, RealtimeTokenTTL)
}

func (i *Issuer) sign(claims *JWTClaims, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// ValidateRole validates the token and requires role
func (i *Issuer) ValidateRole(tokenString, role string) (*JWTClaims, error) {
	claims, err := i.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Role != role {
		return nil, ErrWrongRole
	}
	return claims, nil
}
