package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	current time.Time
}

func (clock *fakeClock) Now() time.Time { return clock.current }

func (clock *fakeClock) Advance(d time.Duration) { clock.current = clock.current.Add(d) }

func newTestBackends(t *testing.T) map[string]struct {
	cache Cache
	clock *fakeClock
} {
	t.Helper()
	clock1 := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	memory := NewMemory()
	memory.now = clock1.Now

	clock2 := &fakeClock{current: clock1.current}
	boltCache, err := OpenBolt(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	t.Cleanup(func() { boltCache.Close() })
	boltCache.now = clock2.Now

	return map[string]struct {
		cache Cache
		clock *fakeClock
	}{
		"memory": {memory, clock1},
		"bolt":   {boltCache, clock2},
	}
}

func TestSetThenGet(t *testing.T) {
	for name, backend := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := backend.cache.Set(ctx, "proxy:documentos:123:7", []byte(`{"a":1}`), time.Hour); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			value, err := backend.cache.Get(ctx, "proxy:documentos:123:7")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(value) != `{"a":1}` {
				t.Errorf("Get = %q, want %q", value, `{"a":1}`)
			}
		})
	}
}

func TestGetMissingKey(t *testing.T) {
	for name, backend := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := backend.cache.Get(context.Background(), "absent")
			if !errors.Is(err, ErrMiss) {
				t.Errorf("Get(absent) error = %v, want ErrMiss", err)
			}
		})
	}
}

func TestTTLExpiry(t *testing.T) {
	for name, backend := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := backend.cache.Set(ctx, "key", []byte("v"), time.Minute); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			backend.clock.Advance(59 * time.Second)
			if _, err := backend.cache.Get(ctx, "key"); err != nil {
				t.Fatalf("Get before expiry failed: %v", err)
			}

			backend.clock.Advance(2 * time.Second)
			if _, err := backend.cache.Get(ctx, "key"); !errors.Is(err, ErrMiss) {
				t.Errorf("Get after expiry error = %v, want ErrMiss", err)
			}
		})
	}
}

func TestOverwriteUpgradesEntry(t *testing.T) {
	// A background completion overwrites the whole key; the last write wins.
	for name, backend := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := ProgressKey("123", "7")
			if err := backend.cache.Set(ctx, key, []byte(`{"Parcial":true}`), time.Hour); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := backend.cache.Set(ctx, key, []byte(`{"Parcial":false}`), time.Hour); err != nil {
				t.Fatalf("second Set failed: %v", err)
			}

			value, err := backend.cache.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(value) != `{"Parcial":false}` {
				t.Errorf("Get = %q, want the overwritten value", value)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	for name, backend := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := backend.cache.Set(ctx, "key", []byte("v"), time.Hour); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			existed, err := backend.cache.Delete(ctx, "key")
			if err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if !existed {
				t.Error("Delete existed = false, want true")
			}

			existed, err = backend.cache.Delete(ctx, "key")
			if err != nil {
				t.Fatalf("second Delete failed: %v", err)
			}
			if existed {
				t.Error("Delete of absent key existed = true, want false")
			}
		})
	}
}

func TestDeletePatternRemovesOnlyMatches(t *testing.T) {
	for name, backend := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed := map[string]string{
				"proxy:documentos:123:7": "a",
				"proxy:documentos:123:9": "b",
				"proxy:documentos:456:7": "c",
				"proxy:andamentos:123:7": "d",
			}
			for key, value := range seed {
				if err := backend.cache.Set(ctx, key, []byte(value), time.Hour); err != nil {
					t.Fatalf("Set(%s) failed: %v", key, err)
				}
			}

			deleted, err := backend.cache.DeletePattern(ctx, "proxy:documentos:123:*")
			if err != nil {
				t.Fatalf("DeletePattern failed: %v", err)
			}
			if deleted != 2 {
				t.Errorf("DeletePattern deleted = %d, want 2", deleted)
			}

			for _, gone := range []string{"proxy:documentos:123:7", "proxy:documentos:123:9"} {
				if _, err := backend.cache.Get(ctx, gone); !errors.Is(err, ErrMiss) {
					t.Errorf("Get(%s) error = %v, want ErrMiss", gone, err)
				}
			}
			for _, kept := range []string{"proxy:documentos:456:7", "proxy:andamentos:123:7"} {
				if _, err := backend.cache.Get(ctx, kept); err != nil {
					t.Errorf("Get(%s) failed: %v (unrelated key was deleted)", kept, err)
				}
			}
		})
	}
}

func TestKeys(t *testing.T) {
	for name, backend := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := backend.cache.Set(ctx, "proxy:unidades:123:7", []byte("v"), time.Hour); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := backend.cache.Set(ctx, "proxy:unidades:999:7", []byte("v"), time.Hour); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			keys, err := backend.cache.Keys(ctx, "proxy:unidades:123:*")
			if err != nil {
				t.Fatalf("Keys failed: %v", err)
			}
			if len(keys) != 1 || keys[0] != "proxy:unidades:123:7" {
				t.Errorf("Keys = %v, want [proxy:unidades:123:7]", keys)
			}
		})
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"proxy:documentos:123:*", "proxy:documentos:123:7", true},
		{"proxy:documentos:123:*", "proxy:documentos:1234:7", false},
		{"proxy:documentos:*:7", "proxy:documentos:123:7", true},
		{"proxy:documentos:*:7", "proxy:documentos:123:9", false},
		{"exact", "exact", true},
		{"exact", "exact2", false},
		{"*", "anything", true},
		{"a*b*c", "aXbYc", true},
		{"a*b*c", "aXcYb", false},
	}

	for _, test := range tests {
		if got := MatchPattern(test.pattern, test.key); got != test.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", test.pattern, test.key, got, test.want)
		}
	}
}

func TestGetJSONRoundTrip(t *testing.T) {
	memory := NewMemory()
	ctx := context.Background()

	type payload struct {
		Total int `json:"total"`
	}
	if err := SetJSON(ctx, memory, "key", payload{Total: 42}, time.Hour); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var decoded payload
	if err := GetJSON(ctx, memory, "key", &decoded); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if decoded.Total != 42 {
		t.Errorf("decoded.Total = %d, want 42", decoded.Total)
	}
}
