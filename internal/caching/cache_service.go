package caching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "gastoclaro"

// ErrLockTimeout is returned when a lock could not be acquired before the context expired.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// ReleaseFunc releases a previously acquired lock.
type ReleaseFunc func(ctx context.Context) error

type CacheService interface {
	// Per-tenant mutual exclusion for quota-checked writes
	AcquireTenantLock(ctx context.Context, scope string, tenantID uuid.UUID, ttl time.Duration) (ReleaseFunc, error)

	// Rate limiting
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	RateLimitCount(ctx context.Context, key string) (int, error)
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) error
	ResetRateLimit(ctx context.Context, key string) error

	// Session revocation
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)

	Ping(ctx context.Context) error
}

type redisCacheService struct {
	client       *redis.Client
	logger       *zap.Logger
	pollInterval time.Duration
}

// NewRedisCacheService accepts host:port or a redis:// URL.
func NewRedisCacheService(addr, password string, db int, logger *zap.Logger) CacheService {
	parsedAddr := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		logger.Warn("redis ping failed on initialization", zap.String("address", parsedAddr), zap.Error(pingErr))
	} else {
		logger.Debug("redis connection established", zap.String("address", parsedAddr))
	}

	return NewRedisCacheServiceWithClient(client, logger)
}

func NewRedisCacheServiceWithClient(client *redis.Client, logger *zap.Logger) CacheService {
	return &redisCacheService{client: client, logger: logger, pollInterval: 50 * time.Millisecond}
}

// Deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireTenantLock blocks until the lock is held or ctx is done. The lock
// expires on its own after ttl so a crashed holder cannot wedge the tenant.
func (r *redisCacheService) AcquireTenantLock(ctx context.Context, scope string, tenantID uuid.UUID, ttl time.Duration) (ReleaseFunc, error) {
	key := fmt.Sprintf("%s:lock:%s:%s", keyPrefix, scope, tenantID.String())
	token := uuid.NewString()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
			}
			return nil, err
		}
		if ok {
			return func(ctx context.Context) error {
				return releaseScript.Run(ctx, r.client, []string{key}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ticker.C:
		}
	}
}

func (r *redisCacheService) rateLimitKey(key string) string {
	return fmt.Sprintf("%s:ratelimit:%s", keyPrefix, key)
}

// hit increments a fixed-window counter, starting the window on the first hit.
func (r *redisCacheService) hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	cacheKey := r.rateLimitKey(key)
	count, err := r.client.Incr(ctx, cacheKey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, cacheKey, window).Err(); err != nil {
			r.logger.Warn("failed to set rate limit window", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return count, nil
}

// IsRateLimited counts this call and reports whether the window's limit is exceeded.
func (r *redisCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.hit(ctx, key, window)
	if err != nil {
		return true, err
	}
	return count > int64(limit), nil
}

func (r *redisCacheService) RateLimitCount(ctx context.Context, key string) (int, error) {
	count, err := r.client.Get(ctx, r.rateLimitKey(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return count, err
}

func (r *redisCacheService) IncrementRateLimit(ctx context.Context, key string, window time.Duration) error {
	_, err := r.hit(ctx, key, window)
	return err
}

func (r *redisCacheService) ResetRateLimit(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.rateLimitKey(key)).Err()
}

func revokedKey(tokenID string) string {
	return keyPrefix + ":revoked:" + tokenID
}

func (r *redisCacheService) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // already expired
	}
	return r.client.Set(ctx, revokedKey(tokenID), "1", ttl).Err()
}

func (r *redisCacheService) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
