// Package staging guarda temporariamente os bytes enviados por upload até que a
// receita correspondente seja criada ou atualizada.
//
// Os dados vivem apenas enquanto o TTL permitir: reiniciar o processo (backend em
// memória) descarta uploads pendentes, que podem ser reenviados pelo cliente.
package staging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gestaozabele/receitas/internal/config"
)

var (
	// ErrInvalidArgument indica chave, conteúdo ou content type ausentes.
	ErrInvalidArgument = errors.New("staging: argumento inválido")
	// ErrSizeLimitExceeded indica conteúdo acima do limite por item.
	ErrSizeLimitExceeded = errors.New("staging: tamanho máximo excedido")
)

// Blob é um upload pendente.
type Blob struct {
	Key         string
	Content     []byte
	ContentType string
	ExpiresAt   time.Time
}

// Cache define o contrato comum aos backends de staging.
type Cache interface {
	// Add insere ou sobrescreve a entrada com TTL renovado.
	Add(ctx context.Context, key string, content []byte, contentType string) error
	// TryGet lê a entrada sem removê-la nem renovar o TTL.
	TryGet(ctx context.Context, key string) (Blob, bool)
	// Remove é idempotente.
	Remove(ctx context.Context, key string)
	ContainsKey(ctx context.Context, key string) bool
	// Clear é best-effort.
	Clear(ctx context.Context)
}

// Limits agrupa os limites aplicados na inserção.
type Limits struct {
	MaxItemBytes  int64
	MaxTotalBytes int64
	TTL           time.Duration
}

// LimitsFromConfig converte a configuração da aplicação.
func LimitsFromConfig(cfg config.StagingConfig) Limits {
	return Limits{
		MaxItemBytes:  cfg.MaxItemBytes,
		MaxTotalBytes: cfg.MaxTotalBytes,
		TTL:           cfg.TTL,
	}
}

func (l Limits) validate() error {
	if l.MaxItemBytes <= 0 {
		return errors.New("staging: limite por item deve ser positivo")
	}
	if l.TTL <= 0 {
		return errors.New("staging: TTL deve ser positivo")
	}
	if l.MaxTotalBytes > 0 && l.MaxTotalBytes < l.MaxItemBytes {
		return errors.New("staging: limite total menor que o limite por item")
	}
	return nil
}

func validateEntry(key string, content []byte, contentType string, maxItem int64) error {
	if key == "" {
		return fmt.Errorf("%w: chave vazia", ErrInvalidArgument)
	}
	if len(content) == 0 {
		return fmt.Errorf("%w: conteúdo vazio", ErrInvalidArgument)
	}
	if strings.TrimSpace(contentType) == "" {
		return fmt.Errorf("%w: content type vazio", ErrInvalidArgument)
	}
	if int64(len(content)) > maxItem {
		return fmt.Errorf("%w: %d bytes (máximo %d)", ErrSizeLimitExceeded, len(content), maxItem)
	}
	return nil
}

// New escolhe o backend configurado. redisClient só é exigido para o backend redis.
func New(cfg config.StagingConfig, redisClient redis.Cmdable, logger zerolog.Logger) (Cache, error) {
	limits := LimitsFromConfig(cfg)
	switch cfg.Backend {
	case "", config.StagingBackendMemory:
		mem, err := NewMemoryCache(limits, logger)
		if err != nil {
			return nil, err
		}
		return mem, nil
	case config.StagingBackendRedis:
		if redisClient == nil {
			return nil, errors.New("staging: backend redis sem cliente configurado")
		}
		rc, err := NewRedisCache(redisClient, limits, logger)
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		return nil, fmt.Errorf("staging: backend %s não suportado", cfg.Backend)
	}
}
