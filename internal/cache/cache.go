// Package cache purges response caches left behind by previous worker
// versions. The worker keeps no offline cache of its own, so anything found
// here at activation is stale.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// Purger removes every entry from one cache.
type Purger interface {
	Name() string
	Purge(ctx context.Context) (int, error)
}

// PurgeAll runs every purger and returns the total number of removed
// entries. A failing purger does not stop the others.
func PurgeAll(ctx context.Context, purgers ...Purger) (int, error) {
	total := 0
	var errs []error
	for _, p := range purgers {
		n, err := p.Purge(ctx)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("purge %s: %w", p.Name(), err))
		}
	}
	return total, errors.Join(errs...)
}

// DirCache is a cache stored as entries under one directory.
type DirCache struct {
	dir string
}

// NewDirCache returns the cache rooted at dir.
func NewDirCache(dir string) *DirCache {
	return &DirCache{dir: dir}
}

func (c *DirCache) Name() string {
	return "dir:" + c.dir
}

// Purge removes every entry under the directory, leaving the directory
// itself. A missing directory holds nothing to purge.
func (c *DirCache) Purge(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RedisCache is a cache stored as Redis keys sharing a prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache returns the cache of keys starting with prefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Name() string {
	return "redis:" + c.prefix
}

// Purge deletes every key under the prefix. An empty prefix would match the
// whole database and is refused.
func (c *RedisCache) Purge(ctx context.Context) (int, error) {
	if c.prefix == "" {
		return 0, errors.New("refusing to purge redis without a key prefix")
	}

	removed := 0
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Del(ctx, batch...).Result()
		removed += int(n)
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	if err := flush(); err != nil {
		return removed, err
	}
	return removed, nil
}
