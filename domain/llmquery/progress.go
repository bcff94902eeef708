package llmquery

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onset-project/onset/internal/config"
	"github.com/onset-project/onset/pkg/apperror"
	"github.com/onset-project/onset/pkg/logger"
)

// ProgressCache stores QueryProgress records for asynchronous polling.
// Records expire after the configured TTL.
type ProgressCache interface {
	Put(ctx context.Context, key string, progress *QueryProgress) error
	Get(ctx context.Context, key string) (*QueryProgress, error)
}

// NewProgressCache selects the Redis-backed cache when a Redis URL is
// configured and falls back to the in-process cache otherwise.
func NewProgressCache(cfg *config.Config, log *slog.Logger) (ProgressCache, error) {
	if cfg.Cache.UseRedis() {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return nil, apperror.ErrInternal.WithMessage("invalid redis url").WithInternal(err)
		}
		log.Info("using redis progress cache", slog.String("addr", opts.Addr))
		return &redisProgressCache{
			client: redis.NewClient(opts),
			ttl:    cfg.Cache.TTL,
			log:    log.With(logger.Scope("llmquery.cache")),
		}, nil
	}
	log.Info("using in-memory progress cache")
	return NewMemoryProgressCache(cfg.Cache.TTL), nil
}

// redisProgressCache stores records as JSON values with a TTL.
type redisProgressCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func (c *redisProgressCache) Put(ctx context.Context, key string, progress *QueryProgress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return apperror.ErrUnavailable.WithMessage("progress cache unavailable").WithInternal(err)
	}
	return nil
}

func (c *redisProgressCache) Get(ctx context.Context, key string) (*QueryProgress, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrQueryNotFound
	}
	if err != nil {
		return nil, apperror.ErrUnavailable.WithMessage("progress cache unavailable").WithInternal(err)
	}
	var progress QueryProgress
	if err := json.Unmarshal(payload, &progress); err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}
	return &progress, nil
}

// MemoryProgressCache is the single-process fallback. Entries are stored
// as marshaled JSON so readers always get an independent copy, and expire
// lazily on access.
type MemoryProgressCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewMemoryProgressCache creates an in-memory cache with the given TTL.
func NewMemoryProgressCache(ttl time.Duration) *MemoryProgressCache {
	return &MemoryProgressCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryProgressCache) Put(ctx context.Context, key string, progress *QueryProgress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{payload: payload, expiresAt: now.Add(c.ttl)}
	return nil
}

func (c *MemoryProgressCache) Get(ctx context.Context, key string) (*QueryProgress, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return nil, apperror.ErrQueryNotFound
	}
	var progress QueryProgress
	if err := json.Unmarshal(entry.payload, &progress); err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}
	return &progress, nil
}
