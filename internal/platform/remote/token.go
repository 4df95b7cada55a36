package remote

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc obtains a fresh bearer token and its lifetime
type FetchFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// TokenCache owns one client's bearer token. Concurrent callers that find the
// token missing or stale share a single refresh.
type TokenCache struct {
	fetch FetchFunc
	skew  time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewTokenCache creates an empty cache. Tokens are refreshed skew before expiry.
func NewTokenCache(fetch FetchFunc, skew time.Duration) *TokenCache {
	return &TokenCache{fetch: fetch, skew: skew, now: time.Now}
}

// Token returns a valid token, refreshing it when needed
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	ch := c.group.DoChan("token", func() (any, error) {
		if cached, ok := c.cached(); ok {
			return cached, nil
		}
		// detached so one caller giving up does not fail the others
		fresh, ttl, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = fresh
		c.expiresAt = c.now().Add(ttl)
		c.mu.Unlock()
		return fresh, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" && c.now().Before(c.expiresAt.Add(-c.skew)) {
		return c.token, true
	}
	return "", false
}

// Invalidate drops token if it is still the cached one
func (c *TokenCache) Invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
		c.expiresAt = time.Time{}
	}
}
