package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

const keyPrefix = "admission_lock:event:"

// releaseScript deletes the lock only while it still holds the caller's token,
// so an expired lock taken over by another instance is never released.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis serialises admission per event across service instances.
type Redis struct {
	Client        *redis.Client
	Logger        *logger.Logger
	TTL           time.Duration
	Wait          time.Duration
	RetryInterval time.Duration
}

func NewRedis(client *redis.Client, log *logger.Logger, ttl, wait time.Duration) *Redis {
	return &Redis{
		Client:        client,
		Logger:        log,
		TTL:           ttl,
		Wait:          wait,
		RetryInterval: 25 * time.Millisecond,
	}
}

func lockKey(eventID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, eventID)
}

// TryLock makes one SETNX attempt and returns the owner token on success.
func (r *Redis) TryLock(ctx context.Context, eventID int64) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, lockKey(eventID), token, r.TTL).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Lock waits up to r.Wait for the event's admission lock. It returns a release
// func on success and an ErrConflict when the lock stayed busy.
func (r *Redis) Lock(ctx context.Context, eventID int64) (func(), error) {
	deadline := time.Now().Add(r.Wait)
	ticker := time.NewTicker(r.RetryInterval)
	defer ticker.Stop()

	for {
		token, ok, err := r.TryLock(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("acquire admission lock for event %d: %w", eventID, err)
		}
		if ok {
			return func() {
				// the request context may already be done
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := r.Unlock(releaseCtx, eventID, token); err != nil && r.Logger != nil {
					r.Logger.Warn("REDIS", fmt.Sprintf("Failed to release admission lock for event %d: %v", eventID, err))
				}
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: admission lock for event %d is busy", models.ErrConflict, eventID)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Unlock releases the lock if token still owns it.
func (r *Redis) Unlock(ctx context.Context, eventID int64, token string) error {
	err := releaseScript.Run(ctx, r.Client, []string{lockKey(eventID)}, token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (r *Redis) IsLocked(ctx context.Context, eventID int64) (bool, error) {
	n, err := r.Client.Exists(ctx, lockKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
