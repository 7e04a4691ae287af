package storage

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"

	apperrors "invitely/pkg/errors"
)

// RedisConfig holds connection settings for RedisKV
type RedisConfig struct {
	Addr     string
	DB       int
	Password string
	Prefix   string
}

// RedisKV stores values in Redis. A server running out of memory
// (maxmemory with noeviction) is reported as a quota error.
type RedisKV struct {
	rdb    *redis.Client
	prefix string
	logger *log.Logger
}

// NewRedisKV creates a client; call Ping to check connectivity
func NewRedisKV(cfg RedisConfig, logger *log.Logger) *RedisKV {
	if logger == nil {
		logger = log.Default()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	return &RedisKV{rdb: rdb, prefix: cfg.Prefix, logger: logger}
}

// Ping checks the connection
func (r *RedisKV) Ping(ctx context.Context) error {
	err := r.rdb.Ping(ctx).Err()
	if err != nil {
		r.logger.Printf("PING failed: %v", err)
	} else {
		r.logger.Println("PING ok")
	}
	return err
}

// Get returns the value for key
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		r.logger.Printf("GET %q: error: %v", key, err)
		return nil, apperrors.ErrStorageFailed.WithCause(err).WithContext("key", key)
	}
	return b, nil
}

// Set stores the value for key without expiry
func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	err := r.rdb.Set(ctx, r.prefix+key, value, 0).Err()
	if err == nil {
		return nil
	}
	r.logger.Printf("SET %q failed: %v", key, err)
	if strings.HasPrefix(err.Error(), "OOM") {
		return apperrors.ErrQuotaExceeded.WithCause(err).WithContext("key", key)
	}
	return apperrors.ErrStorageFailed.WithCause(err).WithContext("key", key)
}

// Delete removes key
func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		r.logger.Printf("DEL %q failed: %v", key, err)
		return apperrors.ErrStorageFailed.WithCause(err).WithContext("key", key)
	}
	return nil
}

// Close closes the client
func (r *RedisKV) Close() error {
	return r.rdb.Close()
}
