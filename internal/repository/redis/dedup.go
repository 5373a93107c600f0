package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// DedupStore remembers trigger idempotency keys for a bounded time.
type DedupStore struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewDedupStore(rdb redis.Cmdable, ttl time.Duration) *DedupStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DedupStore{rdb: rdb, ttl: ttl, prefix: "trigger:"}
}

// Claim reports whether (kind, key) is seen for the first time.
func (s *DedupStore) Claim(ctx context.Context, kind, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.prefix+kind+":"+key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	return ok, nil
}

// Release forgets a claim so that a failed trigger can be retried with the same key.
func (s *DedupStore) Release(ctx context.Context, kind, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+kind+":"+key).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}
