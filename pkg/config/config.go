// Package config loads the server configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full server configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"SEIVIEW_ADDR" envDefault:":8000"`

	// SEIBaseURL is the upstream SEI API base URL.
	SEIBaseURL string `env:"SEI_BASE_URL"`

	// SEITimeout bounds each upstream request.
	SEITimeout time.Duration `env:"SEI_TIMEOUT" envDefault:"30s"`

	// CachePath is the bbolt cache file. Empty falls back to the in-memory
	// cache; a missing cache never prevents startup.
	CachePath string `env:"SEIVIEW_CACHE_PATH"`

	// CacheTTL is how long cached listings live.
	CacheTTL time.Duration `env:"SEIVIEW_CACHE_TTL" envDefault:"24h"`

	// DBPath is the SQLite database for tags, notes, teams and sharing.
	DBPath string `env:"SEIVIEW_DB_PATH" envDefault:"seiview.db"`

	// BlobDir stores downloaded document bodies.
	BlobDir string `env:"SEIVIEW_BLOB_DIR" envDefault:"blobs"`

	// APIKey guards the access-URL minting endpoint.
	APIKey string `env:"SEIVIEW_API_KEY"`

	// PublicBaseURL is the externally reachable base used to build access
	// URLs returned by the minting endpoint.
	PublicBaseURL string `env:"SEIVIEW_PUBLIC_URL" envDefault:"http://localhost:8000"`

	// TokenKey is the 32-byte key (hex or raw) for credential tokens.
	TokenKey string `env:"SEIVIEW_TOKEN_KEY"`

	// ShareSecret signs share-link tokens.
	ShareSecret string `env:"SEIVIEW_SHARE_SECRET"`

	// OpenAIKey enables the summarization endpoints when set.
	OpenAIKey string `env:"OPENAI_API_KEY"`

	// OpenAIBaseURL overrides the completions endpoint.
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	// OpenAIModel is the chat model for summaries.
	OpenAIModel string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// BackgroundLimit bounds concurrent background completion tasks.
	BackgroundLimit int `env:"SEIVIEW_BACKGROUND_LIMIT" envDefault:"32"`

	// ShutdownGrace is how long shutdown waits for in-flight work.
	ShutdownGrace time.Duration `env:"SEIVIEW_SHUTDOWN_GRACE" envDefault:"15s"`
}

// Load parses and validates the environment configuration.
func Load() (Config, error) {
	var config Config
	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks cross-field constraints that tags cannot express.
func (config Config) Validate() error {
	if config.SEITimeout <= 0 {
		return fmt.Errorf("SEI_TIMEOUT must be positive")
	}
	if config.CacheTTL <= 0 {
		return fmt.Errorf("SEIVIEW_CACHE_TTL must be positive")
	}
	if config.BackgroundLimit <= 0 {
		return fmt.Errorf("SEIVIEW_BACKGROUND_LIMIT must be positive")
	}
	if config.TokenKey != "" && len(config.TokenKey) != 32 && len(config.TokenKey) != 64 {
		return fmt.Errorf("SEIVIEW_TOKEN_KEY must be 32 raw bytes or 64 hex characters")
	}
	return nil
}

// TokenKeyBytes returns the credential-token key as 32 raw bytes, decoding
// the hex form when needed. Empty when no key is configured.
func (config Config) TokenKeyBytes() ([]byte, error) {
	switch len(config.TokenKey) {
	case 0:
		return nil, nil
	case 32:
		return []byte(config.TokenKey), nil
	case 64:
		key, err := hex.DecodeString(config.TokenKey)
		if err != nil {
			return nil, fmt.Errorf("decode SEIVIEW_TOKEN_KEY: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("SEIVIEW_TOKEN_KEY must be 32 raw bytes or 64 hex characters")
	}
}
