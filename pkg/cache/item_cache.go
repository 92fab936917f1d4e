package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultItemTTL bounds how long a cached item may lag behind the store when
// an eviction is missed.
const DefaultItemTTL = 5 * time.Minute

const itemCacheKeyPrefix = "inventory:item"

// ErrMiss is returned by Get when the key does not exist or has expired.
var ErrMiss = errors.New("cache miss")

// setIfGeneration writes the item hash only while the generation counter still
// holds the value the caller read before loading the item from the store.
// KEYS: item, generation. ARGV: generation, ttl ms, id, name, description.
var setIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[2]) or '0'
if cur ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'id', ARGV[3], 'name', ARGV[4], 'description', ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// CachedItem is the read model stored in Redis as a hash.
type CachedItem struct {
	ID          int64
	Name        string
	Description string
}

// ItemCache is a read-through cache for single items.
//
// Every eviction bumps a per-item generation counter. A reader takes the
// generation before it queries the store and passes it to SetIfGeneration,
// so a row read before a write can never be cached after that write's
// eviction. Both keys share a hash tag and live in one cluster slot.
// Key format: "inventory:item:{id}" and "inventory:item:{id}:gen"
type ItemCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewItemCache returns an ItemCache backed by r. A non-positive ttl uses DefaultItemTTL.
func NewItemCache(r *RedisClient, ttl time.Duration) *ItemCache {
	if ttl <= 0 {
		ttl = DefaultItemTTL
	}
	return &ItemCache{client: r.Client(), ttl: ttl}
}

// Get returns ErrMiss when the item is not cached.
func (c *ItemCache) Get(ctx context.Context, id int64) (*CachedItem, error) {
	vals, err := c.client.HGetAll(ctx, ItemKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrMiss
	}

	cachedID, err := strconv.ParseInt(vals["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("cache parse id: %w", err)
	}
	return &CachedItem{
		ID:          cachedID,
		Name:        vals["name"],
		Description: vals["description"],
	}, nil
}

// Generation returns the eviction counter of id, 0 when it was never evicted.
func (c *ItemCache) Generation(ctx context.Context, id int64) (int64, error) {
	gen, err := c.client.Get(ctx, GenerationKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache generation: %w", err)
	}
	return gen, nil
}

// SetIfGeneration caches item unless it was evicted after gen was read.
// It reports whether the item was written.
func (c *ItemCache) SetIfGeneration(ctx context.Context, item *CachedItem, gen int64) (bool, error) {
	n, err := setIfGeneration.Run(ctx, c.client,
		[]string{ItemKey(item.ID), GenerationKey(item.ID)},
		strconv.FormatInt(gen, 10),
		c.ttl.Milliseconds(),
		strconv.FormatInt(item.ID, 10),
		item.Name,
		item.Description,
	).Int()
	if err != nil {
		return false, fmt.Errorf("cache set: %w", err)
	}
	return n == 1, nil
}

// Delete evicts an item and bumps its generation in one transaction.
// Evicting a missing key is not an error.
func (c *ItemCache) Delete(ctx context.Context, id int64) error {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, GenerationKey(id))
	pipe.Expire(ctx, GenerationKey(id), c.ttl)
	pipe.Del(ctx, ItemKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// ItemKey builds the Redis key for an item id.
func ItemKey(id int64) string {
	return itemCacheKeyPrefix + ":{" + strconv.FormatInt(id, 10) + "}"
}

// GenerationKey builds the Redis key of the eviction counter for an item id.
func GenerationKey(id int64) string {
	return ItemKey(id) + ":gen"
}
