package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Roles carried in access tokens.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Claims are the access token claims shared by the client and the fake backend.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the subject a token pair is issued for.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// TokenPair is the result of a login or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Issuer signs and validates HS256 tokens.
type Issuer struct {
	secretKey     []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	now           func() time.Time
}

// NewIssuer creates an issuer with the given lifetimes.
func NewIssuer(secretKey string, accessExpiry, refreshExpiry time.Duration) *Issuer {
	return &Issuer{
		secretKey:     []byte(secretKey),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		now:           time.Now,
	}
}

// Issue creates an access/refresh pair. Each refresh token carries a unique
// ID so the backend can rotate and revoke it.
func (s *Issuer) Issue(id Identity) (TokenPair, error) {
	now := s.now()
	pair := TokenPair{
		RefreshID:        uuid.New().String(),
		AccessExpiresAt:  now.Add(s.accessExpiry),
		RefreshExpiresAt: now.Add(s.refreshExpiry),
	}

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: id.UserID,
		Email:  id.Email,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(pair.AccessExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   id.UserID,
			ID:        uuid.New().String(),
		},
	})
	var err error
	if pair.AccessToken, err = access.SignedString(s.secretKey); err != nil {
		return TokenPair{}, err
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(pair.RefreshExpiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		Subject:   id.UserID,
		ID:        pair.RefreshID,
	})
	if pair.RefreshToken, err = refresh.SignedString(s.secretKey); err != nil {
		return TokenPair{}, err
	}

	return pair, nil
}

// ValidateAccess verifies signature and expiry of an access token.
func (s *Issuer) ValidateAccess(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateRefresh verifies a refresh token and returns its subject and ID.
func (s *Issuer) ValidateRefresh(tokenString string) (userID, refreshID string, err error) {
	claims := &jwt.RegisteredClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return "", "", err
	}
	return claims.Subject, claims.ID, nil
}

func (s *Issuer) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// AccessExpiry returns the access token lifetime.
func (s *Issuer) AccessExpiry() time.Duration {
	return s.accessExpiry
}
