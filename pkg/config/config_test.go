package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	config, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Addr != ":8000" {
		t.Errorf("Addr = %q, want :8000", config.Addr)
	}
	if config.CacheTTL != 24*time.Hour {
		t.Errorf("CacheTTL = %v, want 24h", config.CacheTTL)
	}
	if config.BackgroundLimit != 32 {
		t.Errorf("BackgroundLimit = %d, want 32", config.BackgroundLimit)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SEIVIEW_ADDR", ":9090")
	t.Setenv("SEI_TIMEOUT", "5s")
	t.Setenv("SEIVIEW_CACHE_PATH", "/tmp/cache.db")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Addr != ":9090" || config.SEITimeout != 5*time.Second || config.CachePath != "/tmp/cache.db" {
		t.Errorf("environment not applied: %+v", config)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := Config{SEITimeout: time.Second, CacheTTL: time.Hour, BackgroundLimit: 1}

	bad := base
	bad.SEITimeout = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero SEI_TIMEOUT accepted")
	}

	bad = base
	bad.TokenKey = "too-short"
	if err := bad.Validate(); err == nil {
		t.Error("short token key accepted")
	}
}

func TestTokenKeyBytes(t *testing.T) {
	raw := Config{TokenKey: strings.Repeat("k", 32)}
	key, err := raw.TokenKeyBytes()
	if err != nil || len(key) != 32 {
		t.Errorf("raw key: len %d, err %v", len(key), err)
	}

	hexConfig := Config{TokenKey: strings.Repeat("ab", 32)}
	key, err = hexConfig.TokenKeyBytes()
	if err != nil || len(key) != 32 {
		t.Errorf("hex key: len %d, err %v", len(key), err)
	}

	empty := Config{}
	key, err = empty.TokenKeyBytes()
	if err != nil || key != nil {
		t.Errorf("empty key: %v, err %v", key, err)
	}
}
