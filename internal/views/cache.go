// Package views keeps Redis-cached read models in step with mutations.
package views

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	versionPrefix = "views:version:"
	// BumpChannel carries "<path> <version>" for every invalidated view.
	BumpChannel = "views.bump"
)

// VersionKey returns the Redis key holding the version counter for a view path.
func VersionKey(path string) string {
	return versionPrefix + path
}

// RedisInvalidator bumps per-view version counters and announces them.
type RedisInvalidator struct {
	client *redis.Client
}

// NewRedisInvalidator constructs the invalidator. A nil client disables it.
func NewRedisInvalidator(client *redis.Client) *RedisInvalidator {
	return &RedisInvalidator{client: client}
}

// Invalidate marks every given view path stale.
func (i *RedisInvalidator) Invalidate(ctx context.Context, paths ...string) error {
	if i == nil || i.client == nil || len(paths) == 0 {
		return nil
	}
	pipe := i.client.TxPipeline()
	incrs := make([]*redis.IntCmd, len(paths))
	for idx, path := range paths {
		incrs[idx] = pipe.Incr(ctx, VersionKey(path))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("views: bump versions: %w", err)
	}
	var errs []error
	for idx, path := range paths {
		msg := path + " " + strconv.FormatInt(incrs[idx].Val(), 10)
		if err := i.client.Publish(ctx, BumpChannel, msg).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Cache stores JSON read models keyed by the current version of their view.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current version of a view path, zero when never bumped.
func (c *Cache) Version(ctx context.Context, path string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, VersionKey(path)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes a cache key bound to the current version of path.
func (c *Cache) BuildKey(ctx context.Context, path string, parts ...string) (string, error) {
	ver, err := c.Version(ctx, path)
	if err != nil {
		return "", err
	}
	segments := append([]string{"views", path}, parts...)
	return fmt.Sprintf("%s:v%d", strings.Join(segments, ":"), ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("views: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Listen subscribes to bump announcements and calls fn with each path and version
// until ctx is cancelled.
func (c *Cache) Listen(ctx context.Context, fn func(path string, version int64)) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				path, ver, found := strings.Cut(msg.Payload, " ")
				if !found {
					continue
				}
				n, err := strconv.ParseInt(ver, 10, 64)
				if err != nil {
					continue
				}
				fn(path, n)
			}
		}
	}()
	return nil
}
