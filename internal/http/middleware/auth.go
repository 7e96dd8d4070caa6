package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gestaozabele/receitas/internal/auth"
	"github.com/gestaozabele/receitas/internal/http/response"
)

type contextKey string

const (
	ContextKeySubject  contextKey = "subject"
	ContextKeyAudience contextKey = "audience"
)

// Auth valida o JWT de acesso e injeta o usuário no contexto.
func Auth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				response.WriteError(w, http.StatusUnauthorized, response.CodeAuth, "token ausente", nil)
				return
			}

			claims, err := jwtManager.ParseAndValidate(strings.TrimSpace(parts[1]))
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, response.CodeAuth, "token inválido", nil)
				return
			}

			recordUser(r.Context(), claims.Subject)
			ctx := WithSubject(r.Context(), claims.Subject)
			ctx = context.WithValue(ctx, ContextKeyAudience, auth.Audience)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithSubject injeta o usuário autenticado no contexto.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ContextKeySubject, subject)
}

// GetSubject recupera subject do contexto.
func GetSubject(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeySubject).(string)
	return val
}

// GetAudience recupera audience do contexto.
func GetAudience(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeyAudience).(string)
	return val
}
