package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/locus-lens/locus/internal/models"
)

const redisKeyPrefix = "detect:"

// RedisConfig locates the Redis server
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore keeps detect responses in Redis as JSON
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(cfg RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisStore{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, digest string) (*models.DetectResponse, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+digest).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached detection: %w", err)
	}

	var resp models.DetectResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached detection %s: %w", digest, err)
	}
	return &resp, true, nil
}

func (s *RedisStore) Set(ctx context.Context, digest string, resp *models.DetectResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode detection: %w", err)
	}
	return s.client.Set(ctx, redisKeyPrefix+digest, data, s.ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
