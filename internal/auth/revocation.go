package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const revokedKeyPrefix = "revoked_token:"

// RedisRevocationList remembers logged-out token IDs until the tokens expire.
type RedisRevocationList struct {
	Client *redis.Client
}

func NewRedisRevocationList(client *redis.Client) *RedisRevocationList {
	return &RedisRevocationList{Client: client}
}

func (c *RedisRevocationList) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := c.Client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to store revoked token in Redis: %w", err)
	}
	return nil
}

func (c *RedisRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.Client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token in Redis: %w", err)
	}
	return n > 0, nil
}
