/*
Package refcache is the Redis-backed cache mlsharness uses to hold
by-reference proposals between the time a member sends one and the
time a later commit references it by hash — the same role Redis plays
in internal/db.go's connection setup and internal/messaging.go's
publish-for-delivery path, repointed at proposal caching instead of
message fan-out.
*/
package refcache

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Open connects to Redis, accepting either a bare "host:port" address
// or a "redis://"/"rediss://" URL, the same dual format
// internal/db.NewDB accepted.
func Open(redisURL string) (*redis.Client, error) {
	opts := &redis.Options{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsed, err := url.Parse(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.Addr = parsed.Host
		if parsed.User != nil {
			opts.Username = parsed.User.Username()
			if pw, ok := parsed.User.Password(); ok {
				opts.Password = pw
			}
		}
		if parsed.Scheme == "rediss" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	} else {
		opts.Addr = redisURL
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// defaultTTL bounds how long a by-reference proposal stays cached
// before a commit must have referenced it; RFC 9420 leaves this
// lifetime to the implementation.
const defaultTTL = 2 * time.Hour

// Cache stores by-reference proposal bytes keyed by their reference
// hash.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps client with the default proposal-reference TTL.
func New(client *redis.Client) *Cache {
	return &Cache{client: client, ttl: defaultTTL}
}

func key(ref []byte) string {
	return "mls:proposal:" + hex.EncodeToString(ref)
}

// Put caches data under ref, refreshing its TTL.
func (c *Cache) Put(ctx context.Context, ref, data []byte) error {
	if err := c.client.Set(ctx, key(ref), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache proposal %x: %w", ref, err)
	}
	return nil
}

// Get returns the bytes cached under ref, and whether anything was
// found.
func (c *Cache) Get(ctx context.Context, ref []byte) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key(ref)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetch cached proposal %x: %w", ref, err)
	}
	return data, true, nil
}

// Delete evicts ref from the cache, used once a commit has consumed
// it.
func (c *Cache) Delete(ctx context.Context, ref []byte) error {
	if err := c.client.Del(ctx, key(ref)).Err(); err != nil {
		return fmt.Errorf("evict cached proposal %x: %w", ref, err)
	}
	return nil
}
