package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)

	token, exp, err := m.GenerateAccessToken("user-1", "ana@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.ParseAndValidate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, jwt.ClaimStrings{Audience}, claims.Audience)
}

func TestJWTRejectsExpired(t *testing.T) {
	m := NewJWTManager(testSecret, time.Minute)
	token, _, err := m.GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = m.ParseAndValidate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRejectsForeignSecretAndAudience(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)

	other := NewJWTManager("outro-segredo-com-32-caracteres!!", time.Hour)
	token, _, err := other.GenerateAccessToken("user-1", "")
	require.NoError(t, err)
	_, err = m.ParseAndValidate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		Audience:  jwt.ClaimStrings{"saas"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := foreign.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = m.ParseAndValidate(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ParseAndValidate("nao.e.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRequiresSubject(t *testing.T) {
	_, _, err := NewJWTManager(testSecret, time.Hour).GenerateAccessToken(" ", "")
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := Hash("senha-forte-123")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	ok, err := Verify("senha-forte-123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify("errada", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefreshToken(t *testing.T) {
	raw, hashed, err := GenerateRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, hashed)
	assert.Equal(t, hashed, HashRefreshToken(raw))

	raw2, _, err := GenerateRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, raw2)
}
