package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/coach-change-api/pkg/errors"
)

// setIfNewerScript writes ARGV[1] unless the cached document already carries a
// "version" at least ARGV[2].
var setIfNewerScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
  local ok, doc = pcall(cjson.decode, current)
  if ok and type(doc) == 'table' then
    local cached = tonumber(doc['version'])
    if cached and cached >= tonumber(ARGV[2]) then
      return 0
    end
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// CacheRepository stores JSON payloads in Redis.
type CacheRepository struct {
	client redis.Cmdable
	prefix string
}

// NewCacheRepository constructs a cache repository. Keys are namespaced by prefix.
func NewCacheRepository(client redis.Cmdable, prefix string) *CacheRepository {
	return &CacheRepository{client: client, prefix: prefix}
}

func (r *CacheRepository) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

// Get retrieves and unmarshals the cached value into the provided destination.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}

	return nil
}

// SetIfNewer stores value unless the cached entry already holds the same or a later
// version. value must marshal to a JSON object with a top-level "version" field.
// It reports whether the entry was written.
func (r *CacheRepository) SetIfNewer(ctx context.Context, key string, value interface{}, version int64, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	ttlMs := ttl.Milliseconds()
	if ttlMs <= 0 {
		ttlMs = 1
	}
	written, err := setIfNewerScript.Run(ctx, r.client, []string{r.key(key)}, payload, version, ttlMs).Int64()
	if err != nil {
		return false, fmt.Errorf("redis versioned set %s: %w", key, err)
	}
	return written == 1, nil
}

// Delete removes the given keys.
func (r *CacheRepository) Delete(ctx context.Context, keys ...string) error {
	if r.client == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}
