package uploads

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(now time.Time) *Signer {
	s := NewSigner([]byte("segredo-de-teste"), "https://api.receitas.dev/", 15*time.Minute)
	s.now = func() time.Time { return now }
	return s
}

func tokenFromURL(t *testing.T, u string) string {
	t.Helper()
	const prefix = "https://api.receitas.dev/uploads/"
	require.True(t, strings.HasPrefix(u, prefix), u)
	return strings.TrimPrefix(u, prefix)
}

func TestSignerIssueAndVerify(t *testing.T) {
	now := time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)
	s := newTestSigner(now)

	ticket, err := s.Issue("users/u/x/bolo.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "PUT", ticket.Method)
	assert.Equal(t, now.Add(15*time.Minute), ticket.ExpiresAt)

	claims, err := s.Verify(tokenFromURL(t, ticket.UploadURL))
	require.NoError(t, err)
	assert.Equal(t, "users/u/x/bolo.pdf", claims.Subject)
	assert.Equal(t, jwt.ClaimStrings{UploadAudience}, claims.Audience)
	assert.Equal(t, "application/pdf", claims.ContentType)
}

func TestSignerRejectsExpired(t *testing.T) {
	now := time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)
	s := newTestSigner(now)
	ticket, err := s.Issue("k", "text/plain")
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(15 * time.Minute) }
	_, err = s.Verify(tokenFromURL(t, ticket.UploadURL))
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func validClaims(key string) Claims {
	return Claims{
		ContentType: "application/pdf",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   key,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestSignerRejectsTampering(t *testing.T) {
	s := newTestSigner(time.Now())
	token, err := s.Sign(validClaims("users/a/x/f.pdf"))
	require.NoError(t, err)

	forged, err := s.Sign(validClaims("users/b/x/f.pdf"))
	require.NoError(t, err)
	forgedParts := strings.Split(forged, ".")
	tokenParts := strings.Split(token, ".")
	require.Len(t, forgedParts, 3)
	require.Len(t, tokenParts, 3)
	spliced := forgedParts[0] + "." + forgedParts[1] + "." + tokenParts[2]

	other := NewSigner([]byte("outro"), "", time.Minute)

	for _, bad := range []string{"", ".", "abc", "a.b.c", spliced, token + "x"} {
		_, err := s.Verify(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignerRejectsForeignTokens(t *testing.T) {
	secret := []byte("segredo-de-teste")
	s := newTestSigner(time.Now())
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	session, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ContentType: "application/pdf",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "users/a/x/f.pdf",
			Audience:  jwt.ClaimStrings{"receitas"},
			ExpiresAt: exp,
		},
	}).SignedString(secret)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ContentType:      "application/pdf",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "users/a/x/f.pdf", Audience: jwt.ClaimStrings{UploadAudience}},
	}).SignedString(secret)
	require.NoError(t, err)

	noContentType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "users/a/x/f.pdf", Audience: jwt.ClaimStrings{UploadAudience}, ExpiresAt: exp},
	}).SignedString(secret)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("users/a/x/f.pdf")).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"audience de sessão": session,
		"sem exp":            noExpiry,
		"sem content type":   noContentType,
		"alg none":           unsigned,
	} {
		_, err := s.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}

	_, err = s.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "k"}})
	assert.Error(t, err)
}

func TestNewKeyAndOwnership(t *testing.T) {
	user := uuid.New()
	key := NewKey(user, "Receita da Vó.pdf")

	parts := strings.Split(key, "/")
	require.Len(t, parts, 4)
	assert.Equal(t, "users", parts[0])
	assert.Equal(t, user.String(), parts[1])
	_, err := uuid.Parse(parts[2])
	assert.NoError(t, err)
	assert.Equal(t, "Receita-da-Vo.pdf", parts[3])
	assert.Equal(t, "Receita-da-Vo.pdf", FileName(key))

	assert.True(t, OwnedBy(key, user))
	assert.False(t, OwnedBy(key, uuid.New()))
	assert.False(t, OwnedBy("users/"+user.String()+"/", user))
	assert.False(t, OwnedBy("users/"+user.String()+"/../outro/x", user))
	assert.NotEqual(t, key, NewKey(user, "Receita da Vó.pdf"))
}

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"bolo.pdf":              "bolo.pdf",
		"../../etc/passwd":      "passwd",
		`C:\fotos\pão de ló.JPG`: "pao-de-lo.JPG",
		"   ":                   "arquivo",
		"...":                   "arquivo",
		"a  --  b.txt":          "a-b.txt",
		"receita..final.md":     "receita.final.md",
		"emoji 🍰 bolo.png":      "emoji-bolo.png",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFileName(in), in)
	}

	long := SanitizeFileName(strings.Repeat("a", 300) + ".pdf")
	assert.LessOrEqual(t, len(long), maxFileNameLength)
	assert.True(t, strings.HasSuffix(long, ".pdf"))
}
