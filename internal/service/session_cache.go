package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sandeepkv93/weapp-session-service/internal/domain"
)

const (
	codeKeyPrefix   = "code:"
	openIDKeyPrefix = "openid:"
)

// SessionCache is the typed view over a SessionStore. It keeps two key
// families in one store: code -> session record, and open id -> code. The
// second family is the reverse pointer used to invalidate a user's previous
// code when they authenticate again.
type SessionCache struct {
	store   SessionStore
	ttl     time.Duration
	timeout time.Duration
}

// NewSessionCache wraps store. Every store call is bounded by timeout when it
// is positive; ttl is applied to both key families.
func NewSessionCache(store SessionStore, ttl, timeout time.Duration) *SessionCache {
	return &SessionCache{store: store, ttl: ttl, timeout: timeout}
}

func (c *SessionCache) TTL() time.Duration { return c.ttl }

func (c *SessionCache) GetRecord(ctx context.Context, code string) (*domain.SessionRecord, bool, error) {
	raw, ok, err := c.get(ctx, codeKeyPrefix+code)
	if err != nil || !ok {
		return nil, false, err
	}
	var rec domain.SessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, fmt.Errorf("decode cached session: %w", err)
	}
	return &rec, true, nil
}

func (c *SessionCache) PutRecord(ctx context.Context, code string, rec *domain.SessionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return c.set(ctx, codeKeyPrefix+code, string(payload))
}

func (c *SessionCache) CodeFor(ctx context.Context, openID string) (string, bool, error) {
	return c.get(ctx, openIDKeyPrefix+openID)
}

func (c *SessionCache) PutCodeFor(ctx context.Context, openID, code string) error {
	return c.set(ctx, openIDKeyPrefix+openID, code)
}

// DeleteCode drops the session stored under code.
func (c *SessionCache) DeleteCode(ctx context.Context, code string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	key := codeKeyPrefix + code
	if err := c.store.Delete(ctx, key); err != nil {
		return &CacheError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (c *SessionCache) get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return "", false, &CacheError{Op: "get", Key: key, Err: err}
	}
	return v, ok, nil
}

func (c *SessionCache) set(ctx context.Context, key, value string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	if err := c.store.Set(ctx, key, value, c.ttl); err != nil {
		return &CacheError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (c *SessionCache) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
