package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gestaozabele/receitas/internal/account"
	"github.com/gestaozabele/receitas/internal/auth"
	"github.com/gestaozabele/receitas/internal/catalog"
	"github.com/gestaozabele/receitas/internal/config"
	httpmiddleware "github.com/gestaozabele/receitas/internal/http/middleware"
	"github.com/gestaozabele/receitas/internal/http/response"
	"github.com/gestaozabele/receitas/internal/recipe"
	"github.com/gestaozabele/receitas/internal/staging"
	"github.com/gestaozabele/receitas/internal/uploads"
)

// ReadinessCheck testa uma dependência externa (Postgres, Redis).
type ReadinessCheck func(ctx context.Context) error

// Options reúne os handlers e dependências montados em cmd/api.
type Options struct {
	AllowOrigins    []string
	RateLimitPublic config.RateLimitConfig
	RateLimitAuth   config.RateLimitConfig
	JWT             *auth.JWTManager

	Accounts *account.Handler
	Recipes  *recipe.Handler
	Catalog  *catalog.Handler
	Uploads  *uploads.Handler

	Checks       map[string]ReadinessCheck
	StagingStats func() staging.Stats
}

type Handler struct {
	checks       map[string]ReadinessCheck
	stagingStats func() staging.Stats
}

// NewRouter devolve o roteador configurado.
func NewRouter(opts Options) http.Handler {
	h := &Handler{checks: opts.Checks, stagingStats: opts.StagingStats}

	publicLimiter := httpmiddleware.NewRateLimiter(opts.RateLimitPublic.RequestsPerSecond, opts.RateLimitPublic.Burst)
	authLimiter := httpmiddleware.NewRateLimiter(opts.RateLimitAuth.RequestsPerSecond, opts.RateLimitAuth.Burst)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(opts.AllowOrigins))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(publicLimiter))

		opts.Accounts.RegisterPublicRoutes(public)
		opts.Uploads.RegisterPublicRoutes(public)
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Auth(opts.JWT))
		private.Use(httpmiddleware.UserRateLimit(authLimiter))

		opts.Accounts.RegisterRoutes(private)
		opts.Recipes.RegisterRoutes(private)
		opts.Catalog.RegisterRoutes(private)
		opts.Uploads.RegisterRoutes(private)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.WriteError(w, http.StatusNotFound, response.CodeNotFound, "rota não encontrada", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.WriteError(w, http.StatusMethodNotAllowed, response.CodeValidation, "método não permitido", nil)
	})

	return r
}

// Health responde sem tocar dependências.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.stagingStats != nil {
		body["staging"] = h.stagingStats()
	}
	response.WriteJSON(w, http.StatusOK, body)
}

// Ready executa os checks configurados.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failures := map[string]any{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		response.WriteError(w, http.StatusServiceUnavailable, response.CodeInternal, "dependências indisponíveis", failures)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
