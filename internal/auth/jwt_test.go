package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer() *Issuer {
	return NewIssuer(
		"test-secret-key-for-testing-purposes",
		15*time.Minute,
		7*24*time.Hour,
	)
}

func testIdentity() Identity {
	return Identity{UserID: "user-123", Email: "test@example.com", Role: RoleUser}
}

func TestIssuer_Issue(t *testing.T) {
	issuer := newTestIssuer()

	pair, err := issuer.Issue(testIdentity())

	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEmpty(t, pair.RefreshID)
	assert.True(t, pair.AccessExpiresAt.After(time.Now()))
	assert.True(t, pair.AccessExpiresAt.Before(time.Now().Add(16*time.Minute)))
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))
	assert.Equal(t, 15*time.Minute, issuer.AccessExpiry())
}

func TestIssuer_Issue_UniqueRefreshIDs(t *testing.T) {
	issuer := newTestIssuer()

	first, err := issuer.Issue(testIdentity())
	require.NoError(t, err)
	second, err := issuer.Issue(testIdentity())
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshID, second.RefreshID)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestIssuer_ValidateAccess_Valid(t *testing.T) {
	issuer := newTestIssuer()
	pair, err := issuer.Issue(Identity{UserID: "user-456", Email: "admin@example.com", Role: RoleAdmin})
	require.NoError(t, err)

	claims, err := issuer.ValidateAccess(pair.AccessToken)

	require.NoError(t, err)
	assert.Equal(t, "user-456", claims.UserID)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "user-456", claims.Subject)
}

func TestIssuer_ValidateAccess_Expired(t *testing.T) {
	issuer := newTestIssuer()
	pair, err := issuer.Issue(testIdentity())
	require.NoError(t, err)

	// Move the issuer's clock past the access expiry
	issuer.now = func() time.Time { return time.Now().Add(time.Hour) }

	claims, err := issuer.ValidateAccess(pair.AccessToken)

	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)
}

func TestIssuer_ValidateAccess_Invalid(t *testing.T) {
	issuer := newTestIssuer()

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"random string", "not-a-valid-token"},
		{"malformed JWT", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := issuer.ValidateAccess(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestIssuer_ValidateAccess_WrongSignature(t *testing.T) {
	issuer1 := NewIssuer("secret-key-1", 15*time.Minute, 7*24*time.Hour)
	issuer2 := NewIssuer("secret-key-2", 15*time.Minute, 7*24*time.Hour)

	pair, err := issuer1.Issue(testIdentity())
	require.NoError(t, err)

	claims, err := issuer2.ValidateAccess(pair.AccessToken)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestIssuer_ValidateAccess_WrongAlgorithm(t *testing.T) {
	issuer := newTestIssuer()

	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		UserID: "user-123",
		Email:  "test@example.com",
		Role:   RoleUser,
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	claims, err := issuer.ValidateAccess(tokenString)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestIssuer_ValidateRefresh(t *testing.T) {
	issuer := newTestIssuer()
	pair, err := issuer.Issue(testIdentity())
	require.NoError(t, err)

	userID, refreshID, err := issuer.ValidateRefresh(pair.RefreshToken)

	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
	assert.Equal(t, pair.RefreshID, refreshID)
}

func TestIssuer_ValidateRefresh_Invalid(t *testing.T) {
	issuer := newTestIssuer()

	_, _, err := issuer.ValidateRefresh("garbage")

	assert.ErrorIs(t, err, ErrInvalidToken)
}

// ============================================
// Client-side decoding
// ============================================

func TestDecode_ReadsClaimsWithoutSecret(t *testing.T) {
	pair, err := newTestIssuer().Issue(testIdentity())
	require.NoError(t, err)

	claims, err := Decode(pair.AccessToken)

	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, RoleUser, claims.Role)
	assert.False(t, claims.ExpiredAt(time.Now()))
	assert.True(t, claims.ExpiredAt(time.Now().Add(time.Hour)))
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode("opaque-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpired(t *testing.T) {
	pair, err := newTestIssuer().Issue(testIdentity())
	require.NoError(t, err)

	assert.False(t, Expired(pair.AccessToken, time.Now()))
	assert.True(t, Expired(pair.AccessToken, time.Now().Add(16*time.Minute)))
	// Opaque tokens are left to the server
	assert.False(t, Expired("opaque-token", time.Now().Add(time.Hour)))
}

func TestClaims_NoExpiry(t *testing.T) {
	c := &Claims{}
	assert.False(t, c.ExpiredAt(time.Now()))
}
