package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache holds recently fetched rates keyed by asset id.
type Cache interface {
	Get(ctx context.Context, key string) (decimal.Decimal, bool)
	Set(ctx context.Context, key string, price decimal.Decimal, ttl time.Duration)
}

type memoryEntry struct {
	price   decimal.Decimal
	expires time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		return decimal.Zero, false
	}
	return e.price, true
}

func (c *MemoryCache) Set(_ context.Context, key string, price decimal.Decimal, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{price: price, expires: c.now().Add(ttl)}
}

// RedisCache shares rates between engine instances.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "chaindonate:rate:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Get treats any redis failure as a miss so the oracle falls through to
// the providers.
func (c *RedisCache) Get(ctx context.Context, key string) (decimal.Decimal, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		// redis.Nil is a plain miss
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}

func (c *RedisCache) Set(ctx context.Context, key string, price decimal.Decimal, ttl time.Duration) {
	_ = c.client.Set(ctx, c.prefix+key, price.String(), ttl).Err()
}
