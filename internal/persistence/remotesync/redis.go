// Package remotesync copies save documents to redis so another device can
// pick them up. It is best effort: failures are counted and logged, never
// surfaced to the game.
package remotesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tappytrade.io/internal/persistence/save"
)

const DefaultPrefix = "tappytrade:save:"

// Dial parses a redis URL and checks the server answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// RedisStore keeps one document per player under prefix+player. It is both
// the mirror's target and a save.Store in its own right.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Key(player string) string { return s.prefix + player }

func (s *RedisStore) Save(ctx context.Context, player string, data []byte) error {
	return s.rdb.Set(ctx, s.Key(player), data, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, player string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.Key(player)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, save.ErrNotFound
	}
	return b, err
}
