package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records token ids that must no longer be accepted. Refresh ignores
// expiry, so an entry must outlive the token it names.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

const defaultRedisTimeout = 5 * time.Second

// RedisConfig captures the settings for the denylist connection.
type RedisConfig struct {
	Addr    string
	DB      int
	Timeout time.Duration
}

// ConnectRedis opens a client and validates connectivity with a ping.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisDenylist keeps revoked token ids as persistent keys.
// Key format: revoked:<jti>
type RedisDenylist struct {
	client *redis.Client
}

func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client}
}

// Revoke records tokenID without expiry. Expired tokens are recorded too,
// since they can still be refreshed.
func (d *RedisDenylist) Revoke(ctx context.Context, tokenID string) error {
	if err := d.client.Set(ctx, d.key(tokenID), "1", 0).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("denylist check: %w", err)
	}
	return n > 0, nil
}

func (d *RedisDenylist) key(tokenID string) string {
	return "revoked:" + tokenID
}
