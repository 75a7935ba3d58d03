// Package cache defines the key-value cache consumed by the SEI proxy and
// provides two backends: an in-memory TTL store and a bbolt-backed
// persistent store.
//
// The cache is an accelerator, never a dependency: callers treat every error
// as a miss, log it, and fall through to the upstream fetch.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned by Get when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is the contract shared by every backend. Values are opaque bytes;
// expired entries behave exactly like absent ones.
type Cache interface {
	// Get returns the value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given time-to-live.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key. The boolean reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// DeletePattern removes every key matching a glob pattern and returns
	// the number of keys removed. Implementations must scan incrementally
	// rather than materializing the whole keyspace at once.
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// Keys lists the keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// GetJSON reads key and unmarshals it into target. Returns ErrMiss when the
// key is absent.
func GetJSON(ctx context.Context, c Cache, key string, target any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode cached value for %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals value and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
