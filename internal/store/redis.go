package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flight_collector/internal/config"
	"flight_collector/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots in Redis so every API instance sees the same data
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisClient builds a client from config. Connecting is lazy.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		MaxRetries:  1,
	})
}

func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) Put(ctx context.Context, region string, kind models.SnapshotKind, snapshot *models.Snapshot, ttl time.Duration) error {
	data, err := encode(snapshot)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, Key(s.keyPrefix, region, kind), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: failed to write %s/%s: %v", ErrUnavailable, region, kind, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, region string, kind models.SnapshotKind) (*models.Snapshot, bool, error) {
	data, err := s.client.Get(ctx, Key(s.keyPrefix, region, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to read %s/%s: %v", ErrUnavailable, region, kind, err)
	}

	snapshot, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

// Ping checks that Redis answers
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
