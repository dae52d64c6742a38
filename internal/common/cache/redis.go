package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 5 * time.Second

// RedisConfig is the yaml form of the go-redis client options the service exposes.
// Zero values take the defaults noted on each field.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	MaxRetries   int           `yaml:"maxRetries"`   // 3
	DialTimeout  time.Duration `yaml:"dialTimeout"`  // 5s
	ReadTimeout  time.Duration `yaml:"readTimeout"`  // 3s
	WriteTimeout time.Duration `yaml:"writeTimeout"` // 3s
	PoolSize     int           `yaml:"poolSize"`     // 20
	MinIdleConns int           `yaml:"minIdleConns"` // 2
	PoolTimeout  time.Duration `yaml:"poolTimeout"`  // 4s
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

func (c RedisConfig) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		MaxRetries:   orDefault(c.MaxRetries, 3),
		DialTimeout:  orDefault(c.DialTimeout, 5*time.Second),
		ReadTimeout:  orDefault(c.ReadTimeout, 3*time.Second),
		WriteTimeout: orDefault(c.WriteTimeout, 3*time.Second),
		PoolSize:     orDefault(c.PoolSize, 20),
		MinIdleConns: orDefault(c.MinIdleConns, 2),
		PoolTimeout:  orDefault(c.PoolTimeout, 4*time.Second),
	}
}

// RedisCache is the go-redis backed Cache. Missing keys read as "".
type RedisCache struct {
	client *redis.Client
}

// NewRedisCacheWithConfig dials Redis and fails unless the first ping succeeds.
func NewRedisCacheWithConfig(config *RedisConfig) (*RedisCache, error) {
	if config == nil || config.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(config.options())

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", config.Addr, err)
	}
	return &RedisCache{client: client}, nil
}

func NewRedisCacheWithClient(client *redis.Client) (*RedisCache, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	return &RedisCache{client: client}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	switch value, err := r.client.Get(ctx, key).Result(); {
	case errors.Is(err, redis.Nil):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("redis get %s: %w", key, err)
	default:
		return value, nil
	}
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisCache) Close() error { return r.client.Close() }
