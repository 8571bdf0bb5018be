package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emilythestrangee/reddit-clone/bff/internal/config"
)

// Service wraps the Redis connection that backs shared viewer caches.
type Service interface {
	// Health returns a map of health status information.
	Health() map[string]string
	Client() redis.UniversalClient
	Close() error
}

type service struct {
	rdb *redis.Client
}

// NewRedis connects and pings Redis.
func NewRedis(cfg config.RedisConfig) (Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     100,
		MinIdleConns: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	slog.Info("redis connected", "addr", cfg.Addr, "db", cfg.DB)
	return &service{rdb: rdb}, nil
}

func (s *service) Client() redis.UniversalClient {
	return s.rdb
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("redis down: %v", err)
		return stats
	}

	stats["status"] = "up"
	pool := s.rdb.PoolStats()
	stats["total_conns"] = fmt.Sprintf("%d", pool.TotalConns)
	stats["idle_conns"] = fmt.Sprintf("%d", pool.IdleConns)
	stats["stale_conns"] = fmt.Sprintf("%d", pool.StaleConns)
	return stats
}

func (s *service) Close() error {
	slog.Info("disconnecting from redis")
	return s.rdb.Close()
}
