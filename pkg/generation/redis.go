package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "aichat:generation:"
	// Records outlive any sane generation; the TTL only reaps records left
	// behind by a crashed process.
	defaultRedisTTL = time.Hour
)

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'user_id', ARGV[1], 'cancelled', '0', 'searching', '0', 'created_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

var setIfExistsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore keeps generation records in Redis hashes so a cancel issued by
// one process is observed by the process running the stream.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("redis_generation_store_ready", "addr", cfg.Addr, "db", cfg.DB)
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(messageID string) string {
	return s.prefix + messageID
}

func (s *RedisStore) Create(ctx context.Context, gen Generation) error {
	createdAt := gen.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	created, err := createScript.Run(ctx, s.client,
		[]string{s.key(gen.MessageID)},
		gen.UserID, createdAt.UnixMilli(), s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("create generation: %w", err)
	}
	if created == 0 {
		return ErrGenerationExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, messageID string) (Generation, error) {
	fields, err := s.client.HGetAll(ctx, s.key(messageID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Generation{}, ErrNotFound
		}
		return Generation{}, fmt.Errorf("get generation: %w", err)
	}
	if len(fields) == 0 {
		return Generation{}, ErrNotFound
	}

	gen := Generation{
		MessageID: messageID,
		UserID:    fields["user_id"],
		Cancelled: fields["cancelled"] == "1",
		Searching: fields["searching"] == "1",
		Error:     fields["error"],
	}
	if ms, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		gen.CreatedAt = time.UnixMilli(ms)
	}
	return gen, nil
}

func (s *RedisStore) SetCancelled(ctx context.Context, messageID string) error {
	return s.setIfExists(ctx, messageID, "cancelled", "1")
}

func (s *RedisStore) SetSearching(ctx context.Context, messageID string, searching bool) error {
	value := "0"
	if searching {
		value = "1"
	}
	return s.setIfExists(ctx, messageID, "searching", value)
}

func (s *RedisStore) SetError(ctx context.Context, messageID, errName string) error {
	return s.setIfExists(ctx, messageID, "error", errName)
}

func (s *RedisStore) setIfExists(ctx context.Context, messageID, field, value string) error {
	if err := setIfExistsScript.Run(ctx, s.client, []string{s.key(messageID)}, field, value).Err(); err != nil {
		return fmt.Errorf("update generation %s: %w", field, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, messageID string) error {
	if err := s.client.Del(ctx, s.key(messageID)).Err(); err != nil {
		return fmt.Errorf("delete generation: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
