package storage

import (
	"context"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// SignedURLCache caches presigned download URLs in Redis so repeated listing
// of the same resources does not re-sign every object. Entries expire a bit
// before the URL itself so a cached URL is always still usable.
type SignedURLCache struct {
	store  ObjectStore
	client *redis.Client
	ttl    time.Duration
}

const urlExpirySlack = 30 * time.Second

// NewSignedURLCache wraps an ObjectStore with Redis-backed URL caching. The
// ttl should match the store's presign lifetime.
func NewSignedURLCache(store ObjectStore, client *redis.Client, ttl time.Duration) *SignedURLCache {
	return &SignedURLCache{store: store, client: client, ttl: ttl}
}

// Upload passes straight through to the underlying store.
func (c *SignedURLCache) Upload(ctx context.Context, groupID, filename, contentType string, body io.Reader) (string, error) {
	return c.store.Upload(ctx, groupID, filename, contentType, body)
}

// SignedURL returns a cached URL when present, otherwise signs and caches.
// Redis errors degrade to signing directly.
func (c *SignedURLCache) SignedURL(ctx context.Context, key string) (string, error) {
	cacheKey := "signed_url:" + key
	if cached, err := c.client.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
		return cached, nil
	}

	url, err := c.store.SignedURL(ctx, key)
	if err != nil {
		return "", err
	}

	ttl := c.ttl - urlExpirySlack
	if ttl > 0 {
		c.client.Set(ctx, cacheKey, url, ttl)
	}
	return url, nil
}

// Delete removes the object and drops its cached URL. The cache drop is
// best-effort; a stale entry just expires with the URL.
func (c *SignedURLCache) Delete(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		return err
	}
	c.client.Del(ctx, "signed_url:"+key)
	return nil
}
