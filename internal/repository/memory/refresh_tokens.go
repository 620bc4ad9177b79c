package memory

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/splax/todos/internal/repository"
)

// RefreshTokens is a bounded registry of issued refresh tokens. Entries expire
// after their own ttl or maxTTL, whichever is shorter; when full, the least
// recently used token is evicted.
type RefreshTokens struct {
	cache *lru.LRU[string, time.Time]
	now   func() time.Time
}

var _ repository.RefreshTokenRepository = (*RefreshTokens)(nil)

// NewRefreshTokens creates a registry holding at most size tokens.
func NewRefreshTokens(size int, maxTTL time.Duration) *RefreshTokens {
	if size <= 0 {
		size = 10000
	}
	return &RefreshTokens{
		cache: lru.NewLRU[string, time.Time](size, nil, maxTTL),
		now:   time.Now,
	}
}

func (r *RefreshTokens) Add(_ context.Context, token string, ttl time.Duration) error {
	r.cache.Add(token, r.now().Add(ttl))
	return nil
}

func (r *RefreshTokens) Contains(_ context.Context, token string) (bool, error) {
	expiresAt, ok := r.cache.Peek(token)
	if !ok {
		return false, nil
	}
	if !r.now().Before(expiresAt) {
		r.cache.Remove(token)
		return false, nil
	}
	return true, nil
}

func (r *RefreshTokens) Remove(_ context.Context, token string) error {
	r.cache.Remove(token)
	return nil
}

// Len reports the number of tracked tokens, expired entries included until swept.
func (r *RefreshTokens) Len() int {
	return r.cache.Len()
}
