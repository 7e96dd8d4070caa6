package account

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestaozabele/receitas/internal/auth"
	httpmiddleware "github.com/gestaozabele/receitas/internal/http/middleware"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type refreshRecord struct {
	userID  uuid.UUID
	expires time.Time
	revoked bool
}

type memoryRepo struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*User
	refresh map[string]*refreshRecord
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[uuid.UUID]*User{}, refresh: map[string]*refreshRecord{}}
}

func (m *memoryRepo) CreateUser(ctx context.Context, user *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return nil, ErrEmailTaken
		}
	}
	cp := *user
	cp.CreatedAt = time.Now()
	m.users[cp.ID] = &cp
	return &cp, nil
}

func (m *memoryRepo) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryRepo) InsertRefreshToken(ctx context.Context, userID uuid.UUID, hash string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[hash] = &refreshRecord{userID: userID, expires: expires}
	return nil
}

func (m *memoryRepo) RotateRefreshToken(ctx context.Context, oldHash, newHash string, newExpiry, now time.Time) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.refresh[oldHash]
	if !ok || rec.revoked || !now.Before(rec.expires) {
		return uuid.Nil, auth.ErrInvalidRefresh
	}
	rec.revoked = true
	m.refresh[newHash] = &refreshRecord{userID: rec.userID, expires: newExpiry}
	return rec.userID, nil
}

func (m *memoryRepo) RevokeRefreshToken(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.refresh[hash]; ok {
		rec.revoked = true
	}
	return nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	return NewService(repo, auth.NewJWTManager(testSecret, time.Hour), 24*time.Hour, zerolog.Nop()), repo
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService()

	tests := []struct {
		name  string
		input RegisterInput
		field string
	}{
		{"email vazio", RegisterInput{Password: "segredo123"}, "email"},
		{"email inválido", RegisterInput{Email: "ana@", Password: "segredo123"}, "email"},
		{"senha curta", RegisterInput{Email: "ana@example.com", Password: "curta"}, "password"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.input)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, repo := newTestService()

	result, err := svc.Register(context.Background(), RegisterInput{Email: "  Ana@Example.com ", Password: "segredo123"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", result.User.Email)
	assert.Equal(t, "ana", result.User.Name)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Len(t, repo.refresh, 1)

	claims, err := svc.JWT().ParseAndValidate(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID.String(), claims.Subject)

	_, err = svc.Register(context.Background(), RegisterInput{Email: "ana@example.com", Password: "outrasenha"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Login(context.Background(), "ana@example.com", "errada123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(context.Background(), "bia@example.com", "segredo123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	logged, err := svc.Login(context.Background(), "ANA@example.com", "segredo123")
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, logged.User.ID)

	me, err := svc.Me(context.Background(), result.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", me.Email)
}

func TestCreateUserWithoutSession(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, 0, zerolog.Nop())

	user, err := svc.CreateUser(context.Background(), RegisterInput{Email: "bia@example.com", Name: "  Bia   Souza ", Password: "segredo123"})
	require.NoError(t, err)
	assert.Equal(t, "Bia Souza", user.Name)
	assert.Empty(t, repo.refresh)

	_, err = svc.CreateUser(context.Background(), RegisterInput{Email: "bia@example.com", Password: "segredo123"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _ := newTestService()
	first, err := svc.Register(context.Background(), RegisterInput{Email: "ana@example.com", Name: "Ana", Password: "segredo123"})
	require.NoError(t, err)

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, "Ana", second.User.Name)

	_, err = svc.Refresh(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefresh)

	require.NoError(t, svc.Logout(context.Background(), second.RefreshToken))
	_, err = svc.Refresh(context.Background(), second.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefresh)

	_, err = svc.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrInvalidRefresh)
}

func TestRefreshRejectsExpired(t *testing.T) {
	svc, _ := newTestService()
	result, err := svc.Register(context.Background(), RegisterInput{Email: "ana@example.com", Password: "segredo123"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	_, err = svc.Refresh(context.Background(), result.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefresh)
}

type httpEnv struct {
	svc    *Service
	router http.Handler
}

func newHTTPEnv() *httpEnv {
	svc, _ := newTestService()
	h := NewHandler(svc, true)

	r := chi.NewRouter()
	h.RegisterPublicRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(httpmiddleware.Auth(svc.JWT()))
		h.RegisterRoutes(r)
	})
	return &httpEnv{svc: svc, router: r}
}

func (e *httpEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}

func TestHTTPSessionFlow(t *testing.T) {
	env := newHTTPEnv()

	rec := env.do(jsonRequest(http.MethodPost, "/auth/register", `{"email":"ana@example.com","name":"Ana","password":"segredo123"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cookie := refreshCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	var body struct {
		Data struct {
			AccessToken string `json:"access_token"`
			User        User   `json:"user"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, rec.Body.String(), "password_hash")

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.Data.AccessToken)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ana@example.com"`)

	req = jsonRequest(http.MethodPost, "/auth/refresh", "")
	req.AddCookie(cookie)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := refreshCookie(rec)
	require.NotNil(t, rotated)
	assert.NotEqual(t, cookie.Value, rotated.Value)

	req = jsonRequest(http.MethodPost, "/auth/refresh", "")
	req.AddCookie(cookie)
	rec = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = jsonRequest(http.MethodPost, "/auth/logout", "")
	req.Header.Set("X-Refresh-Token", rotated.Value)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -1, refreshCookie(rec).MaxAge)

	req = jsonRequest(http.MethodPost, "/auth/refresh", "")
	req.Header.Set("X-Refresh-Token", rotated.Value)
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
}

func TestHTTPErrors(t *testing.T) {
	env := newHTTPEnv()
	_, err := env.svc.Register(context.Background(), RegisterInput{Email: "ana@example.com", Password: "segredo123"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"json inválido", jsonRequest(http.MethodPost, "/auth/login", "{"), http.StatusBadRequest, "VALIDATION"},
		{"login sem senha", jsonRequest(http.MethodPost, "/auth/login", `{"email":"ana@example.com"}`), http.StatusBadRequest, "VALIDATION"},
		{"senha errada", jsonRequest(http.MethodPost, "/auth/login", `{"email":"ana@example.com","password":"errada123"}`), http.StatusUnauthorized, "AUTH"},
		{"email duplicado", jsonRequest(http.MethodPost, "/auth/register", `{"email":"ana@example.com","password":"segredo123"}`), http.StatusConflict, "CONFLICT"},
		{"refresh ausente", jsonRequest(http.MethodPost, "/auth/refresh", ""), http.StatusUnauthorized, "AUTH"},
		{"me sem token", httptest.NewRequest(http.MethodGet, "/me", nil), http.StatusUnauthorized, "AUTH"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(tc.req)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"code":"`+tc.code+`"`)
		})
	}
}
