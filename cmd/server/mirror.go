package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tappytrade.io/internal/persistence/remotesync"
)

type saveMirror struct {
	mirror *remotesync.Mirror
	rdb    *redis.Client
}

// buildSaveMirror starts the redis mirror when TT_REDIS_URL is set. A redis
// primary store already holds every save, so it gets no mirror.
func buildSaveMirror(ctx context.Context, backend string, logger *log.Logger) (*saveMirror, error) {
	url := strings.TrimSpace(os.Getenv("TT_REDIS_URL"))
	if url == "" || !envBool("TT_REDIS_MIRROR", true) || backend == "redis" {
		return nil, nil
	}
	rdb, err := remotesync.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(envInt("TT_REDIS_TTL_HOURS", 24*30)) * time.Hour
	target := remotesync.NewRedisStore(rdb, envString("TT_REDIS_PREFIX", remotesync.DefaultPrefix), ttl)
	m := remotesync.NewMirror(
		target,
		envInt("TT_MIRROR_WORKERS", 2),
		envInt("TT_MIRROR_QUEUE", 512),
		time.Duration(envInt("TT_MIRROR_ENQUEUE_WAIT_MS", 50))*time.Millisecond,
		logger,
	)
	return &saveMirror{mirror: m, rdb: rdb}, nil
}

func (s *saveMirror) Close() {
	if s == nil {
		return
	}
	s.mirror.Close()
	_ = s.rdb.Close()
}

func (s *saveMirror) Stats() (remotesync.Stats, bool) {
	if s == nil {
		return remotesync.Stats{}, false
	}
	return s.mirror.Stats(), true
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
