package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"board-api/domain"
)

const cardsCacheKey = "board:cards"

// Cache wraps a card store with Redis-backed caching of the full board
// read. Every mutation evicts the cached list; Redis failures fall back
// to the backing store without surfacing.
type Cache struct {
	base  domain.Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client
// and TTL.
func NewCache(base domain.Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Find(ctx context.Context, id string) (domain.Card, error) {
	return c.base.Find(ctx, id)
}

func (c *Cache) ListAll(ctx context.Context) ([]domain.Card, error) {
	if cards, ok := c.loadFromCache(ctx); ok {
		return cards, nil
	}
	cards, err := c.base.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, cards)
	return cards, nil
}

func (c *Cache) CreateOne(ctx context.Context, card domain.Card) (domain.Card, error) {
	created, err := c.base.CreateOne(ctx, card)
	if err != nil {
		return domain.Card{}, err
	}
	c.evict(ctx)
	return created, nil
}

func (c *Cache) UpdateOne(ctx context.Context, id string, u domain.CardUpdate, now time.Time) (domain.Card, error) {
	updated, err := c.base.UpdateOne(ctx, id, u, now)
	if err != nil {
		return domain.Card{}, err
	}
	c.evict(ctx)
	return updated, nil
}

func (c *Cache) RunTransaction(ctx context.Context, fn func(domain.Tx) error) error {
	if err := c.base.RunTransaction(ctx, fn); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context) ([]domain.Card, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, cardsCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, cardsCacheKey).Err()
		}
		return nil, false
	}
	var cards []domain.Card
	if err := json.Unmarshal(data, &cards); err != nil {
		_ = c.redis.Del(ctx, cardsCacheKey).Err()
		return nil, false
	}
	return cards, true
}

func (c *Cache) store(ctx context.Context, cards []domain.Card) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(cards)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, cardsCacheKey, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, cardsCacheKey).Err()
}
