package account

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gestaozabele/receitas/internal/auth"
	"github.com/gestaozabele/receitas/internal/util"
)

// Repository persiste usuários e refresh tokens.
type Repository interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	InsertRefreshToken(ctx context.Context, userID uuid.UUID, hash string, expires time.Time) error
	// RotateRefreshToken revoga oldHash e grava newHash atomicamente,
	// devolvendo o dono; tokens revogados ou expirados resultam em auth.ErrInvalidRefresh.
	RotateRefreshToken(ctx context.Context, oldHash, newHash string, newExpiry, now time.Time) (uuid.UUID, error)
	RevokeRefreshToken(ctx context.Context, hash string) error
}

// Service concentra cadastro, login e sessões.
type Service struct {
	repo       Repository
	jwt        *auth.JWTManager
	refreshTTL time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, jwt *auth.JWTManager, refreshTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{repo: repo, jwt: jwt, refreshTTL: refreshTTL, logger: logger, now: time.Now}
}

// JWT expõe o gerenciador usado pelo middleware de autenticação.
func (s *Service) JWT() *auth.JWTManager {
	return s.jwt
}

// Register cria a conta e já devolve uma sessão.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*LoginResult, error) {
	user, err := s.CreateUser(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user)
}

// CreateUser valida e grava a conta sem abrir sessão. Usado também pela CLI admin.
func (s *Service) CreateUser(ctx context.Context, input RegisterInput) (*User, error) {
	email := util.NormalizeEmail(input.Email)
	if err := util.ValidateEmail(email); err != nil {
		return nil, &ValidationError{Field: "email", Message: err.Error()}
	}
	name := strings.Join(strings.Fields(input.Name), " ")
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, &ValidationError{Field: "name", Message: "muito longo"}
	}
	if err := util.ValidatePassword(input.Password); err != nil {
		return nil, &ValidationError{Field: "password", Message: err.Error()}
	}

	hash, err := auth.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.CreateUser(ctx, &User{ID: uuid.New(), Email: email, Name: name, PasswordHash: hash})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("conta criada")
	return user, nil
}

// Login autentica por e-mail e senha.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, util.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn().Msg("login: usuário não encontrado")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID.String()).Msg("login: verificação de senha falhou")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		s.logger.Warn().Str("user_id", user.ID.String()).Msg("login: senha inválida")
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, user)
}

// Refresh troca um refresh token válido por uma nova sessão; o token usado é revogado.
func (s *Service) Refresh(ctx context.Context, rawToken string) (*LoginResult, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, auth.ErrInvalidRefresh
	}

	rawNext, nextHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	expires := now.Add(s.refreshTTL)

	userID, err := s.repo.RotateRefreshToken(ctx, auth.HashRefreshToken(rawToken), nextHash, expires, now)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.ErrInvalidRefresh
		}
		return nil, err
	}

	token, accessExpiry, err := s.jwt.GenerateAccessToken(user.ID.String(), user.Email)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken:   token,
		AccessExpiry:  accessExpiry,
		RefreshToken:  rawNext,
		RefreshExpiry: expires,
		User:          user,
	}, nil
}

// Logout revoga o refresh token informado; tokens desconhecidos são ignorados.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	if strings.TrimSpace(rawToken) == "" {
		return nil
	}
	return s.repo.RevokeRefreshToken(ctx, auth.HashRefreshToken(rawToken))
}

// Me devolve o perfil do usuário autenticado.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

func (s *Service) issue(ctx context.Context, user *User) (*LoginResult, error) {
	token, accessExpiry, err := s.jwt.GenerateAccessToken(user.ID.String(), user.Email)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	expires := s.now().UTC().Add(s.refreshTTL)
	if err := s.repo.InsertRefreshToken(ctx, user.ID, refreshHash, expires); err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:   token,
		AccessExpiry:  accessExpiry,
		RefreshToken:  rawRefresh,
		RefreshExpiry: expires,
		User:          user,
	}, nil
}
