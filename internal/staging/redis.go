package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisKeyPrefix     = "staging:"
	fieldContent       = "content"
	fieldContentType   = "content_type"
	redisClearScanSize = 200
)

// RedisCache compartilha os uploads pendentes entre instâncias da API.
// O limite total fica a cargo da política maxmemory do próprio Redis.
type RedisCache struct {
	client redis.Cmdable
	limits Limits
	logger zerolog.Logger
	now    func() time.Time
}

// NewRedisCache cria o backend redis.
func NewRedisCache(client redis.Cmdable, limits Limits, logger zerolog.Logger) (*RedisCache, error) {
	if err := limits.validate(); err != nil {
		return nil, err
	}
	return &RedisCache{client: client, limits: limits, logger: logger, now: time.Now}, nil
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}

// Add grava conteúdo e expiração na mesma transação MULTI/EXEC.
func (c *RedisCache) Add(ctx context.Context, key string, content []byte, contentType string) error {
	if err := validateEntry(key, content, contentType, c.limits.MaxItemBytes); err != nil {
		return err
	}

	rk := redisKey(key)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, rk)
		pipe.HSet(ctx, rk, fieldContent, content, fieldContentType, contentType)
		pipe.PExpire(ctx, rk, c.limits.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("staging: gravar no redis: %w", err)
	}
	return nil
}

// TryGet lê conteúdo e TTL num único snapshot. Falhas do redis viram "não encontrado".
func (c *RedisCache) TryGet(ctx context.Context, key string) (Blob, bool) {
	if key == "" {
		return Blob{}, false
	}

	rk := redisKey(key)
	var (
		fields *redis.MapStringStringCmd
		ttl    *redis.DurationCmd
	)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, rk)
		ttl = pipe.PTTL(ctx, rk)
		return nil
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("staging: leitura no redis falhou")
		}
		return Blob{}, false
	}

	values := fields.Val()
	content, hasContent := values[fieldContent]
	contentType := values[fieldContentType]
	if !hasContent || content == "" || contentType == "" {
		return Blob{}, false
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		return Blob{}, false
	}

	return Blob{
		Key:         key,
		Content:     []byte(content),
		ContentType: contentType,
		ExpiresAt:   c.now().Add(remaining),
	}, true
}

func (c *RedisCache) Remove(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := c.client.Del(ctx, redisKey(key)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("staging: remoção no redis falhou")
	}
}

func (c *RedisCache) ContainsKey(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	n, err := c.client.Exists(ctx, redisKey(key)).Result()
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("staging: consulta no redis falhou")
		return false
	}
	return n > 0
}

// Clear varre o prefixo com SCAN e apaga em lotes. Erros apenas interrompem a limpeza;
// as entradas restantes expiram sozinhas.
func (c *RedisCache) Clear(ctx context.Context) {
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, redisKeyPrefix+"*", redisClearScanSize).Result()
		if err != nil {
			c.logger.Warn().Err(err).Msg("staging: limpeza interrompida, entradas expiram pelo TTL")
			return
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				c.logger.Warn().Err(err).Msg("staging: limpeza interrompida, entradas expiram pelo TTL")
				return
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Info().Int64("removed", removed).Msg("staging: cache limpo")
}
