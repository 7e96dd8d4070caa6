package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gestaozabele/receitas/internal/account"
	"github.com/gestaozabele/receitas/internal/auth"
	"github.com/gestaozabele/receitas/internal/catalog"
	"github.com/gestaozabele/receitas/internal/config"
	"github.com/gestaozabele/receitas/internal/db"
	internalhttp "github.com/gestaozabele/receitas/internal/http"
	httpmiddleware "github.com/gestaozabele/receitas/internal/http/middleware"
	"github.com/gestaozabele/receitas/internal/metadata"
	"github.com/gestaozabele/receitas/internal/recipe"
	"github.com/gestaozabele/receitas/internal/staging"
	"github.com/gestaozabele/receitas/internal/storage"
	"github.com/gestaozabele/receitas/internal/uploads"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, component("db")); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	checks := map[string]internalhttp.ReadinessCheck{"db": pool.Ping}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis parse: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var cmdable redis.Cmdable
	if redisClient != nil {
		cmdable = redisClient
	}
	cache, err := staging.New(cfg.Staging, cmdable, component("staging"))
	if err != nil {
		return fmt.Errorf("staging: %w", err)
	}

	var stagingStats func() staging.Stats
	if mem, ok := cache.(*staging.MemoryCache); ok {
		janitor := staging.NewJanitor(mem, cfg.Staging.SweepInterval, component("staging-janitor"))
		janitor.Start(ctx)
		defer janitor.Stop()
		stagingStats = mem.Stats
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	fetcher := metadata.NewFetcher(metadata.ConfigFrom(cfg.Metadata), component("metadata"))
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	signer := uploads.NewSigner([]byte("uploads|"+cfg.JWTSecret), cfg.PublicBaseURL, cfg.Staging.UploadURLTTL)

	accountService := account.NewService(account.NewRepository(pool), jwtManager, cfg.JWTRefreshTTL, component("account"))
	recipeService := recipe.NewService(recipe.NewRepository(pool), cache, fetcher, store, component("recipe"))
	catalogService := catalog.NewService(catalog.NewRepository(pool), component("catalog"))

	handler := internalhttp.NewRouter(internalhttp.Options{
		AllowOrigins:    cfg.AllowOrigins,
		RateLimitPublic: cfg.RateLimitPublic,
		RateLimitAuth:   cfg.RateLimitAuth,
		JWT:             jwtManager,
		Accounts:        account.NewHandler(accountService, httpmiddleware.HasLocalOrigin(cfg.AllowOrigins)),
		Recipes:         recipe.NewHandler(recipeService),
		Catalog:         catalog.NewHandler(catalogService),
		Uploads:         uploads.NewHandler(cache, signer, cfg.Staging.MaxItemBytes, component("uploads")),
		Checks:          checks,
		StagingStats:    stagingStats,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("staging_backend", cfg.Staging.Backend).
			Str("storage_provider", cfg.Storage.Provider).
			Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("encerrando...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
}

func component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
