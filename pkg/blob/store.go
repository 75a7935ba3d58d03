// Package blob is a write-once filesystem store for downloaded document
// bodies, so repeat summarizations do not re-download from the upstream.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Store keeps blobs as files named by the SHA-256 of their key.
type Store struct {
	dir string
}

// NewStore creates the blob directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Get returns the blob stored under key, or found=false.
func (store *Store) Get(key string) ([]byte, bool) {
	data, err := os.ReadFile(store.pathFor(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores data under key. Existing blobs are left untouched: content is
// keyed by identity, so the first write is authoritative.
func (store *Store) Put(key string, data []byte) error {
	path := store.pathFor(key)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	return nil
}

// GetOrFill returns the stored blob for key, calling fill and storing its
// result on a miss.
func (store *Store) GetOrFill(key string, fill func() ([]byte, error)) ([]byte, error) {
	if data, found := store.Get(key); found {
		return data, nil
	}
	data, err := fill()
	if err != nil {
		return nil, err
	}
	if err := store.Put(key, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (store *Store) pathFor(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(store.dir, hex.EncodeToString(hash[:]))
}
