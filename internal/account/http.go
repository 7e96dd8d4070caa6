package account

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gestaozabele/receitas/internal/auth"
	httpmiddleware "github.com/gestaozabele/receitas/internal/http/middleware"
	"github.com/gestaozabele/receitas/internal/http/response"
)

const refreshCookieName = "receitas_refresh"

// AccountService é o contrato usado pelos handlers.
type AccountService interface {
	Register(ctx context.Context, input RegisterInput) (*LoginResult, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Refresh(ctx context.Context, rawToken string) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Me(ctx context.Context, userID uuid.UUID) (*User, error)
}

type Handler struct {
	service    AccountService
	devCookies bool
}

// NewHandler cria o handler; devCookies relaxa Secure/SameSite para origens locais.
func NewHandler(service AccountService, devCookies bool) *Handler {
	return &Handler{service: service, devCookies: devCookies}
}

// RegisterPublicRoutes registra cadastro, login e sessão.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/logout", h.handleLogout)
	})
}

// RegisterRoutes registra as rotas autenticadas.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input RegisterInput
	if err := response.DecodeJSON(r, &input); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "JSON inválido", nil)
		return
	}

	result, err := h.service.Register(r.Context(), input)
	if err != nil {
		h.handleAuthError(w, r, err)
		return
	}
	h.writeLoginSuccess(w, http.StatusCreated, result)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := response.DecodeJSON(r, &payload); err != nil {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "JSON inválido", nil)
		return
	}
	if strings.TrimSpace(payload.Email) == "" || payload.Password == "" {
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, "email e senha são obrigatórios", nil)
		return
	}

	result, err := h.service.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.handleAuthError(w, r, err)
		return
	}
	h.writeLoginSuccess(w, http.StatusOK, result)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := refreshFromRequest(r)
	if token == "" {
		response.WriteError(w, http.StatusUnauthorized, response.CodeAuth, "refresh ausente", nil)
		return
	}

	result, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefresh) {
			h.clearRefreshCookie(w)
		}
		h.handleAuthError(w, r, err)
		return
	}
	h.writeLoginSuccess(w, http.StatusOK, result)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := refreshFromRequest(r); token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			response.WriteInternal(w, r, "account", err)
			return
		}
	}
	h.clearRefreshCookie(w)
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	subject, err := uuid.Parse(httpmiddleware.GetSubject(r.Context()))
	if err != nil {
		response.WriteError(w, http.StatusUnauthorized, response.CodeAuth, "subject inválido", nil)
		return
	}

	user, err := h.service.Me(r.Context(), subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.WriteError(w, http.StatusUnauthorized, response.CodeAuth, "conta não encontrada", nil)
			return
		}
		response.WriteInternal(w, r, "account", err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		response.WriteError(w, http.StatusBadRequest, response.CodeValidation, ve.Message, map[string]any{"field": ve.Field})
	case errors.Is(err, ErrInvalidCredentials):
		response.WriteError(w, http.StatusUnauthorized, response.CodeAuth, err.Error(), nil)
	case errors.Is(err, auth.ErrInvalidRefresh):
		response.WriteError(w, http.StatusUnauthorized, response.CodeAuth, "refresh inválido", nil)
	case errors.Is(err, ErrEmailTaken):
		response.WriteError(w, http.StatusConflict, response.CodeConflict, err.Error(), map[string]any{"field": "email"})
	default:
		response.WriteInternal(w, r, "account", err)
	}
}

func (h *Handler) writeLoginSuccess(w http.ResponseWriter, status int, result *LoginResult) {
	h.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiry)

	response.WriteJSON(w, status, map[string]any{
		"access_token":  result.AccessToken,
		"expires_at":    result.AccessExpiry,
		"refresh_token": result.RefreshToken,
		"user":          result.User,
	})
}

// refreshFromRequest aceita o cookie ou, para clientes sem cookie, o cabeçalho X-Refresh-Token.
func refreshFromRequest(r *http.Request) string {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(r.Header.Get("X-Refresh-Token"))
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, h.cookie(token, expires, 0))
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, h.cookie("", time.Time{}, -1))
}

func (h *Handler) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/auth",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !h.devCookies,
		SameSite: sameSite,
	}
}
