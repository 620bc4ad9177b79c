// Package redisstore keeps the refresh-token registry in Redis so it survives
// restarts and is shared between API replicas.
package redisstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/splax/todos/internal/repository"
)

const defaultPrefix = "todos:refresh:"

// RefreshTokens stores one key per token with the token's ttl as expiry.
type RefreshTokens struct {
	client redis.UniversalClient
	prefix string
}

var _ repository.RefreshTokenRepository = (*RefreshTokens)(nil)

// NewRefreshTokens wraps an existing client.
func NewRefreshTokens(client redis.UniversalClient) *RefreshTokens {
	return &RefreshTokens{client: client, prefix: defaultPrefix}
}

// Keys hold a digest of the token rather than the token itself.
func (r *RefreshTokens) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return r.prefix + hex.EncodeToString(sum[:])
}

func (r *RefreshTokens) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key(token), 1, ttl).Err(); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokens) Contains(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("lookup refresh token: %w", err)
	}
	return n == 1, nil
}

func (r *RefreshTokens) Remove(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}
