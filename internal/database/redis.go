package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newrelic/go-agent/v3/integrations/nrredis-v9"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type RedisDB struct {
	*redis.Client
}

// NewRedis accepts either a host:port address or a redis:// URL.
func NewRedis(redisURL, password string) (*RedisDB, error) {
	opts, err := redisOptions(redisURL, password)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	// Add New Relic instrumentation
	client.AddHook(nrredis.NewHook(opts))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.WithField("addr", opts.Addr).Info("connected to redis")
	return &RedisDB{Client: client}, nil
}

func redisOptions(redisURL, password string) (*redis.Options, error) {
	opts := &redis.Options{Addr: redisURL}
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	if password != "" {
		opts.Password = password
	}

	opts.PoolSize = 100
	opts.MinIdleConns = 10
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return opts, nil
}

func (r *RedisDB) Close() error {
	return r.Client.Close()
}

func (r *RedisDB) Health(ctx context.Context) error {
	return r.Ping(ctx).Err()
}
