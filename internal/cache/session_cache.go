package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jamsync/internal/model"
)

// SessionCache holds the authority-relevant part of a jam session so that
// permission checks on hot paths skip the durable store.
type SessionCache interface {
	SetMeta(ctx context.Context, jamID string, meta *model.SessionMeta) error
	GetMeta(ctx context.Context, jamID string) (*model.SessionMeta, error)
}

type sessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache creates a session cache. Entries expire after 24h.
func NewSessionCache(client *redis.Client) SessionCache {
	return &sessionCache{
		client: client,
		ttl:    24 * time.Hour,
	}
}

func (c *sessionCache) key(jamID string) string {
	return fmt.Sprintf("jam:%s:meta", jamID)
}

func (c *sessionCache) SetMeta(ctx context.Context, jamID string, meta *model.SessionMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(jamID), data, c.ttl).Err()
}

func (c *sessionCache) GetMeta(ctx context.Context, jamID string) (*model.SessionMeta, error) {
	data, err := c.client.Get(ctx, c.key(jamID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta model.SessionMeta
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
