package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"learncoins-ledger/internal/core/ports"
)

// ttlMap is a key/value map whose entries expire. It replaces Redis when
// redis.enabled is false.
type ttlMap struct {
	mu      sync.Mutex
	entries map[string]ttlEntry
	now     func() time.Time
}

type ttlEntry struct {
	value   []byte
	count   int64
	expires time.Time
}

func newTTLMap() *ttlMap {
	return &ttlMap{entries: make(map[string]ttlEntry), now: time.Now}
}

// live returns the entry for key, dropping it if expired. Caller holds mu.
func (m *ttlMap) live(key string) (ttlEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return ttlEntry{}, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return ttlEntry{}, false
	}
	return e, true
}

// incr bumps the counter for key. The expiry is set only when the key is created.
func (m *ttlMap) incr(key string, ttl time.Duration) (int64, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok {
		e = ttlEntry{expires: m.now().Add(ttl)}
	}
	e.count++
	m.entries[key] = e
	return e.count, e.expires
}

// IdempotencyCache implements ports.IdempotencyCache in process.
type IdempotencyCache struct{ m *ttlMap }

func NewIdempotencyCache() *IdempotencyCache { return &IdempotencyCache{m: newTTLMap()} }

func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if e, ok := c.m.live(key); ok {
		return e.value, nil
	}
	return nil, nil
}

func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.entries[key] = ttlEntry{value: append([]byte(nil), value...), expires: c.m.now().Add(ttl)}
	return nil
}

// ClaimGuard implements ports.ClaimGuard in process.
type ClaimGuard struct{ m *ttlMap }

func NewClaimGuard() *ClaimGuard { return &ClaimGuard{m: newTTLMap()} }

func (g *ClaimGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	if _, held := g.m.live(key); held {
		return false, nil
	}
	g.m.entries[key] = ttlEntry{expires: g.m.now().Add(ttl)}
	return true, nil
}

func (g *ClaimGuard) Release(ctx context.Context, key string) error {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	delete(g.m.entries, key)
	return nil
}

// PinAttemptLimiter implements ports.PinAttemptLimiter in process.
type PinAttemptLimiter struct {
	m           *ttlMap
	maxAttempts int64
	window      time.Duration
}

func NewPinAttemptLimiter(maxAttempts int, window time.Duration) *PinAttemptLimiter {
	return &PinAttemptLimiter{m: newTTLMap(), maxAttempts: int64(maxAttempts), window: window}
}

func pinKey(walletID int64) string { return fmt.Sprintf("pin:%d", walletID) }

// Reserve counts an attempt; the check and the increment share one lock.
func (l *PinAttemptLimiter) Reserve(ctx context.Context, walletID int64) (int64, bool, error) {
	n, _ := l.m.incr(pinKey(walletID), l.window)
	return n, n <= l.maxAttempts, nil
}

func (l *PinAttemptLimiter) Reset(ctx context.Context, walletID int64) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	delete(l.m.entries, pinKey(walletID))
	return nil
}

// RateLimitStore implements ports.RateLimitStore in process with fixed windows.
type RateLimitStore struct{ m *ttlMap }

func NewRateLimitStore() *RateLimitStore { return &RateLimitStore{m: newTTLMap()} }

func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*ports.RateLimitResult, error) {
	count, resetAt := s.m.incr(key, window)
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &ports.RateLimitResult{
		Allowed:   int(count) <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

var (
	_ ports.IdempotencyCache  = (*IdempotencyCache)(nil)
	_ ports.ClaimGuard        = (*ClaimGuard)(nil)
	_ ports.PinAttemptLimiter = (*PinAttemptLimiter)(nil)
	_ ports.RateLimitStore    = (*RateLimitStore)(nil)
)
