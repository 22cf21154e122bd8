package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	apperrors "github.com/civicnet/weeklymatch/internal/errors"
	"github.com/civicnet/weeklymatch/internal/telemetry"
)

const (
	DefaultKeyPrefix = "weeklymatch:"

	lockKey        = "lock:cycle"
	lastSummaryKey = "summary:last"

	// LastSummaryTTL keeps the previous cycle's summary around for a little over two cadence periods.
	LastSummaryTTL = 15 * 24 * time.Hour
)

// ErrLockHeld is returned by AcquireLock when another run owns the cycle lock.
var ErrLockHeld = errors.New("cycle lock is held by another run")

// releaseScript deletes the key only while it still carries this holder's token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL          string
	KeyPrefix    string
	Instrumented bool
}

// RedisClientInterface is the subset of the go-redis client this package uses
type RedisClientInterface interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisService provides the cycle lock and the last-run summary store
type RedisService struct {
	client RedisClientInterface
	prefix string
}

// NewRedisService connects to Redis and verifies the connection with a ping
func NewRedisService(ctx context.Context, config RedisConfig) (*RedisService, error) {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation":    "redis_connection",
		"service":      "cache",
		"instrumented": config.Instrumented,
	})

	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, apperrors.NewConfigurationError("REDIS_URL", fmt.Sprintf("invalid Redis URL: %v", err))
	}
	opts.MaxRetries = 3

	client := redis.NewClient(opts)
	if config.Instrumented {
		telemetry.InstrumentRedisClient(client)
		logger.Debug("OpenTelemetry tracing hook added to Redis client")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.WithError(err).Error("Failed to connect to Redis")
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithField("addr", opts.Addr).Info("Redis connected successfully")
	return NewRedisServiceWithClient(client, config.KeyPrefix), nil
}

// NewRedisServiceWithClient wraps an existing client. An empty prefix uses DefaultKeyPrefix.
func NewRedisServiceWithClient(client RedisClientInterface, prefix string) *RedisService {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisService{client: client, prefix: prefix}
}

func (r *RedisService) key(name string) string {
	return r.prefix + name
}

// Lock is a held cycle lock. Release is safe to call more than once.
type Lock struct {
	service *RedisService
	key     string
	token   string
}

// AcquireLock claims the cycle lock for ttl. It returns ErrLockHeld when another run owns it.
func (r *RedisService) AcquireLock(ctx context.Context, ttl time.Duration) (*Lock, error) {
	key := r.key(lockKey)
	token := uuid.New().String()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, apperrors.NewCacheError("acquire_lock", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation": "acquire_lock",
		"key":       key,
		"ttl":       ttl.String(),
	}).Debug("Cycle lock acquired")
	return &Lock{service: r, key: key, token: token}, nil
}

// Release drops the lock if this holder still owns it. An expired or stolen lock is left alone.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || l.token == "" {
		return nil
	}
	err := l.service.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err()
	l.token = ""
	if err != nil && err != redis.Nil {
		return apperrors.NewCacheError("release_lock", err)
	}
	return nil
}

// SaveLastSummary stores the JSON encoding of summary as the most recent cycle result
func (r *RedisService) SaveLastSummary(ctx context.Context, summary interface{}) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return apperrors.NewCacheError("marshal_summary", err)
	}
	if err := r.client.Set(ctx, r.key(lastSummaryKey), data, LastSummaryTTL).Err(); err != nil {
		return apperrors.NewCacheError("save_summary", err)
	}
	return nil
}

// LoadLastSummary decodes the most recent cycle result into dest. It reports false when none is stored.
func (r *RedisService) LoadLastSummary(ctx context.Context, dest interface{}) (bool, error) {
	data, err := r.client.Get(ctx, r.key(lastSummaryKey)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewCacheError("load_summary", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, apperrors.NewCacheError("unmarshal_summary", err)
	}
	return true, nil
}

// HealthCheck verifies Redis connectivity
func (r *RedisService) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	return r.client.Close()
}
