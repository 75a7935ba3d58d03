// Package auth issues and verifies the two token kinds the API uses:
// encrypted credential tokens for pre-authenticated access URLs, and signed
// share-link tokens.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTokenInvalid reports a token that cannot be decrypted or parsed.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired reports a well-formed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Credentials are the SEI login data sealed inside an access token.
type Credentials struct {
	Usuario string `json:"usuario"`
	Senha   string `json:"senha"`
	Orgao   string `json:"orgao,omitempty"`
}

type tokenPayload struct {
	Credentials
	ExpiresAt int64 `json:"exp"`
}

// TokenCipher seals credentials with AES-256-GCM. Tokens are opaque
// URL-safe strings: nonce followed by ciphertext, base64url-encoded.
type TokenCipher struct {
	aead cipher.AEAD
	now  func() time.Time
}

// NewTokenCipher builds a cipher from a 32-byte key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("token key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("build cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("build gcm: %w", err)
	}
	return &TokenCipher{aead: aead, now: time.Now}, nil
}

// Mint seals credentials into a token valid for ttl.
func (tokenCipher *TokenCipher) Mint(credentials Credentials, ttl time.Duration) (string, error) {
	if credentials.Usuario == "" || credentials.Senha == "" {
		return "", errors.New("usuario and senha are required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}

	payload, err := json.Marshal(tokenPayload{
		Credentials: credentials,
		ExpiresAt:   tokenCipher.now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	nonce := make([]byte, tokenCipher.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := tokenCipher.aead.Seal(nonce, nonce, payload, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token and returns its credentials. Tampered tokens fail
// with ErrTokenInvalid, expired ones with ErrTokenExpired.
func (tokenCipher *TokenCipher) Open(token string) (Credentials, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Credentials{}, ErrTokenInvalid
	}
	nonceSize := tokenCipher.aead.NonceSize()
	if len(sealed) < nonceSize {
		return Credentials{}, ErrTokenInvalid
	}

	payload, err := tokenCipher.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return Credentials{}, ErrTokenInvalid
	}

	var decoded tokenPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Credentials{}, ErrTokenInvalid
	}
	if tokenCipher.now().Unix() >= decoded.ExpiresAt {
		return Credentials{}, ErrTokenExpired
	}
	return decoded.Credentials, nil
}
