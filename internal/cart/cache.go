package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_cart/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, ownerID string) (*domain.Cart, error)
	Set(ctx context.Context, c *domain.Cart) error
	Delete(ctx context.Context, ownerID string) error
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

func (r *RedisCache) Get(ctx context.Context, ownerID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var c domain.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &c, nil
}

// Set stores the cart with a jittered TTL so entries do not expire together.
func (r *RedisCache) Set(ctx context.Context, c *domain.Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL + time.Duration(rand.IntN(5))*time.Minute
	if err := r.client.Set(ctx, cacheKey(c.OwnerID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, ownerID string) error {
	if err := r.client.Del(ctx, cacheKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(ownerID string) string {
	return fmt.Sprintf("cart:%s", ownerID)
}

// NoopCache always misses.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*domain.Cart, error) { return nil, ErrCacheMiss }
func (NoopCache) Set(context.Context, *domain.Cart) error          { return nil }
func (NoopCache) Delete(context.Context, string) error             { return nil }
