package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"attendance-insights-api/config"

	"github.com/redis/go-redis/v9"
)

// SnapshotChannel carries one message per published snapshot.
const SnapshotChannel = "attendance:snapshot"

var ErrCacheMiss = errors.New("cache miss")

// CacheService wraps redis for response caching and snapshot events. A
// service without a client is a no-op: reads miss and writes succeed.
type CacheService struct {
	client *redis.Client
}

// NewCacheService connects to redis when a host is configured. On failure it
// returns a no-op service together with the error so callers may continue.
func NewCacheService(cfg config.RedisConfig) (*CacheService, error) {
	if !cfg.Enabled() {
		return &CacheService{}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	attempts := max(cfg.ConnectAttempts, 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lastErr = client.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			return &CacheService{client: client}, nil
		}
		log.Printf("redis ping attempt %d/%d failed: %v", i+1, attempts, lastErr)
		if i < attempts-1 {
			time.Sleep(2 * time.Second)
		}
	}
	client.Close()
	return &CacheService{}, fmt.Errorf("redis ping failed after %d attempts: %w", attempts, lastErr)
}

// NewCacheServiceWithClient wraps an existing client.
func NewCacheServiceWithClient(client *redis.Client) *CacheService {
	return &CacheService{client: client}
}

func (s *CacheService) Available() bool {
	return s != nil && s.client != nil
}

// Get decodes the value at key into dest, or returns ErrCacheMiss.
func (s *CacheService) Get(ctx context.Context, key string, dest any) error {
	if !s.Available() {
		return ErrCacheMiss
	}
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(val, dest)
}

func (s *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *CacheService) Publish(ctx context.Context, channel string, message any) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, data).Err()
}

func (s *CacheService) Close() error {
	if !s.Available() {
		return nil
	}
	return s.client.Close()
}
