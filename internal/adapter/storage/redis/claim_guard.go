package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ClaimGuard implements ports.ClaimGuard using Redis SET NX. The daily
// reward uses it to turn away concurrent duplicate claims before they
// reach the database.
type ClaimGuard struct {
	client goredis.UniversalClient
	prefix string
}

// NewClaimGuard creates a new Redis-backed claim guard.
func NewClaimGuard(client goredis.UniversalClient) *ClaimGuard {
	return &ClaimGuard{
		client: client,
		prefix: keyPrefix + "claim:",
	}
}

// Acquire sets the key if it is absent. Returns false if someone else holds it.
func (g *ClaimGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	result, err := g.client.SetArgs(ctx, g.prefix+key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis claim acquire: %w", err)
	}
	return result == "OK", nil
}

// Release drops the key so a failed claim can be retried.
func (g *ClaimGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis claim release: %w", err)
	}
	return nil
}
