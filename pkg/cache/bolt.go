package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("cache")

// Bolt is a Cache backed by a bbolt file, so cached envelopes survive
// process restarts. Expiry is enforced on read and during pattern scans.
type Bolt struct {
	db  *bolt.DB
	now func() time.Time
}

type boltEntry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OpenBolt opens (or creates) a bbolt cache file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize cache bucket: %w", err)
	}

	return &Bolt{db: db, now: time.Now}, nil
}

// Get returns the value stored under key, or ErrMiss when absent or expired.
func (cache *Bolt) Get(ctx context.Context, key string) ([]byte, error) {
	var entry boltEntry
	found := false

	err := cache.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(boltBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("decode cache entry %s: %w", key, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, ErrMiss
	}
	if cache.now().After(entry.ExpiresAt) {
		// Stale entry: drop it so scans stay cheap. Best effort.
		_ = cache.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(boltBucket).Delete([]byte(key))
		})
		return nil, ErrMiss
	}
	return entry.Value, nil
}

// Set stores value under key for ttl.
func (cache *Bolt) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := json.Marshal(boltEntry{
		Value:     value,
		ExpiresAt: cache.now().Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}

	return cache.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), data)
	})
}

// Delete removes key, reporting whether a live entry existed.
func (cache *Bolt) Delete(ctx context.Context, key string) (bool, error) {
	existed := false
	err := cache.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		data := bucket.Get([]byte(key))
		if data == nil {
			return nil
		}
		var entry boltEntry
		if json.Unmarshal(data, &entry) == nil && !cache.now().After(entry.ExpiresAt) {
			existed = true
		}
		return bucket.Delete([]byte(key))
	})
	return existed, err
}

// DeletePattern walks the bucket with a cursor and removes matching keys.
// Expired matches are removed too but not counted.
func (cache *Bolt) DeletePattern(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	err := cache.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		cursor := bucket.Cursor()
		currentTime := cache.now()

		var toDelete [][]byte
		for key, data := cursor.First(); key != nil; key, data = cursor.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !MatchPattern(pattern, string(key)) {
				continue
			}
			var entry boltEntry
			if json.Unmarshal(data, &entry) == nil && !currentTime.After(entry.ExpiresAt) {
				deleted++
			}
			keyCopy := make([]byte, len(key))
			copy(keyCopy, key)
			toDelete = append(toDelete, keyCopy)
		}

		for _, key := range toDelete {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Keys lists live keys matching pattern via a cursor walk.
func (cache *Bolt) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := cache.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(boltBucket).Cursor()
		currentTime := cache.now()
		for key, data := cursor.First(); key != nil; key, data = cursor.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !MatchPattern(pattern, string(key)) {
				continue
			}
			var entry boltEntry
			if json.Unmarshal(data, &entry) != nil || currentTime.After(entry.ExpiresAt) {
				continue
			}
			keys = append(keys, string(key))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Ping verifies the database file is still usable.
func (cache *Bolt) Ping(ctx context.Context) error {
	return cache.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(boltBucket) == nil {
			return fmt.Errorf("cache bucket missing")
		}
		return nil
	})
}

// Close closes the underlying bbolt file.
func (cache *Bolt) Close() error {
	return cache.db.Close()
}
