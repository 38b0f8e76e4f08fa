package redis

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/ruda0008/rideau-canal-sensor-simulation/common/config"
)

// Client Redis client alias
type Client = redis.Client

// NewRedisClient creates a Redis client
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisClientAs creates a client authenticating with an ACL user
func NewRedisClientAs(cfg *config.RedisConfig, username, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: username,
		Password: password,
		DB:       cfg.DB,
	})
}

// Ping checks the connection
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Close closes the client
func Close(client *redis.Client) error {
	return client.Close()
}
