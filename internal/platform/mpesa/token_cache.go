package mpesa

import (
	"sync"
	"time"

	"github.com/fatflowers/rentpay/pkg/clock"
)

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// TokenCache holds access tokens per consumer key. Concurrent refreshes for
// the same key are not coordinated; the last writer wins.
type TokenCache struct {
	mu     sync.RWMutex
	clock  clock.Clock
	margin time.Duration
	tokens map[string]cachedToken
}

func NewTokenCache(c clock.Clock, margin time.Duration) *TokenCache {
	if c == nil {
		c = clock.System()
	}
	return &TokenCache{clock: c, margin: margin, tokens: make(map[string]cachedToken)}
}

// Get returns the token while now < expiresAt - margin.
func (c *TokenCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tokens[key]
	if !ok {
		return "", false
	}
	if !c.clock.Now().Before(t.expiresAt.Add(-c.margin)) {
		return "", false
	}
	return t.token, true
}

func (c *TokenCache) Set(key, token string, ttl time.Duration) {
	c.mu.Lock()
	c.tokens[key] = cachedToken{token: token, expiresAt: c.clock.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *TokenCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.tokens, key)
	c.mu.Unlock()
}
