package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// RedisStore runs Commit as a MULTI/EXEC transaction.
type RedisStore struct {
	client redis.UniversalClient
	logger zerolog.Logger
}

func NewRedisStore(cfg RedisConfig, logger zerolog.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("Redis window store configured")

	return NewRedisStoreFromClient(client, logger)
}

func NewRedisStoreFromClient(client redis.UniversalClient, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
	}
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check key %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.Commit(ctx, Set(key, value, ttl))
}

func (s *RedisStore) PushFront(ctx context.Context, key, value string) error {
	return s.Commit(ctx, PushFront(key, value))
}

func (s *RedisStore) Trim(ctx context.Context, key string, maxLen int) error {
	return s.Commit(ctx, Trim(key, maxLen))
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.Commit(ctx, Expire(key, ttl))
}

func (s *RedisStore) ListLen(ctx context.Context, key string) (int, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get length of %q: %w", key, err)
	}
	return int(n), nil
}

func (s *RedisStore) ListRange(ctx context.Context, key string) ([]string, error) {
	items, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to range %q: %w", key, err)
	}
	return items, nil
}

func (s *RedisStore) Commit(ctx context.Context, ops ...Op) error {
	if err := validateOps(ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			switch op.Kind {
			case OpSet:
				pipe.Set(ctx, op.Key, op.Value, op.TTL)
			case OpPushFront:
				pipe.LPush(ctx, op.Key, op.Value)
			case OpTrim:
				pipe.LTrim(ctx, op.Key, 0, int64(op.MaxLen-1))
			case OpExpire:
				pipe.PExpire(ctx, op.Key, op.TTL)
			case OpDelete:
				pipe.Del(ctx, op.Key)
			case OpListRemove:
				pipe.LRem(ctx, op.Key, 0, op.Value)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit %d ops: %w", len(ops), err)
	}

	s.logger.Debug().Int("ops", len(ops)).Msg("Window transaction committed")
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
