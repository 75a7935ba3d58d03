package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Cache backed by a map. It is the fallback when
// no persistent cache path is configured; entries do not survive restarts.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the value stored under key, or ErrMiss when absent or expired.
func (memory *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	entry, found := memory.entries[key]
	if !found {
		return nil, ErrMiss
	}
	if memory.now().After(entry.expiresAt) {
		delete(memory.entries, key)
		return nil, ErrMiss
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set stores value under key for ttl.
func (memory *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	memory.mu.Lock()
	defer memory.mu.Unlock()
	memory.entries[key] = memoryEntry{
		value:     stored,
		expiresAt: memory.now().Add(ttl),
	}
	return nil
}

// Delete removes key, reporting whether a live entry existed.
func (memory *Memory) Delete(ctx context.Context, key string) (bool, error) {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	entry, found := memory.entries[key]
	if !found {
		return false, nil
	}
	delete(memory.entries, key)
	return !memory.now().After(entry.expiresAt), nil
}

// DeletePattern removes every live key matching pattern.
func (memory *Memory) DeletePattern(ctx context.Context, pattern string) (int, error) {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	deleted := 0
	currentTime := memory.now()
	for key, entry := range memory.entries {
		if !MatchPattern(pattern, key) {
			continue
		}
		expired := currentTime.After(entry.expiresAt)
		delete(memory.entries, key)
		if !expired {
			deleted++
		}
	}
	return deleted, nil
}

// Keys lists live keys matching pattern.
func (memory *Memory) Keys(ctx context.Context, pattern string) ([]string, error) {
	memory.mu.RLock()
	defer memory.mu.RUnlock()

	var keys []string
	currentTime := memory.now()
	for key, entry := range memory.entries {
		if currentTime.After(entry.expiresAt) {
			continue
		}
		if MatchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Ping always succeeds for the in-memory backend.
func (memory *Memory) Ping(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory backend.
func (memory *Memory) Close() error { return nil }
