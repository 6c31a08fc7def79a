package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-canvas-live/content-service/internal/config"
	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
)

var ErrCacheMiss = errors.New("cache miss")

// RedisContentCache keeps document snapshots and board listings as JSON
// strings under <prefix>:document:<room> and <prefix>:board:<board>:items.
type RedisContentCache struct {
	client *redis.Client
	prefix string
}

func NewRedisContentCache(cfg config.RedisConfig, prefix string) (*RedisContentCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Address, err)
	}
	return &RedisContentCache{client: client, prefix: prefix}, nil
}

func (c *RedisContentCache) key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

func (c *RedisContentCache) BuildDocumentKey(roomID string) string {
	return c.key("document", roomID)
}

func (c *RedisContentCache) BuildBoardKey(boardID string) string {
	return c.key("board", boardID, "items")
}

// Get returns ErrCacheMiss for absent keys. An entry that no longer
// decodes is dropped and also reported as a miss.
func (c *RedisContentCache) Get(ctx context.Context, key string) (*ContentCacheResult, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	result := new(ContentCacheResult)
	if err := json.Unmarshal(data, result); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		_ = c.client.Del(ctx, key).Err()
		return nil, ErrCacheMiss
	}
	return result, nil
}

func (c *RedisContentCache) Set(ctx context.Context, key string, result *ContentCacheResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete unlinks keys; absent keys are not an error.
func (c *RedisContentCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Unlink(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis unlink: %w", err)
	}
	return nil
}

func (c *RedisContentCache) Close() error {
	return c.client.Close()
}
