// Package usercache keeps chat user display records close to the renderer.
package usercache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"storyline/internal/domain"
)

// ErrMiss is returned by Get when the user is not cached.
var ErrMiss = errors.New("user not cached")

const defaultTTL = time.Hour

// RedisCache stores users as JSON under user:{space}:{id}.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and checks the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "connect to redis")
	}
	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: client, prefix: "user:", ttl: ttl}
}

func (c *RedisCache) key(spaceID, userID string) string {
	return c.prefix + spaceID + ":" + userID
}

func (c *RedisCache) Get(ctx context.Context, spaceID, userID string) (domain.User, error) {
	data, err := c.client.Get(ctx, c.key(spaceID, userID)).Bytes()
	if err == redis.Nil {
		return domain.User{}, ErrMiss
	}
	if err != nil {
		return domain.User{}, errors.Wrap(err, "lookup user")
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		return domain.User{}, errors.Wrap(err, "unmarshal user")
	}
	return u, nil
}

func (c *RedisCache) Set(ctx context.Context, u domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return errors.Wrap(err, "marshal user")
	}
	if err := c.client.Set(ctx, c.key(u.SpaceID, u.ID), data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "save user")
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, spaceID, userID string) error {
	if err := c.client.Del(ctx, c.key(spaceID, userID)).Err(); err != nil {
		return errors.Wrap(err, "delete user")
	}
	return nil
}

// DeleteSpace drops every cached user of a space.
func (c *RedisCache) DeleteSpace(ctx context.Context, spaceID string) error {
	iter := c.client.Scan(ctx, 0, c.prefix+spaceID+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "scan users")
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "delete users")
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
