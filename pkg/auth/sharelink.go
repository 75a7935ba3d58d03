package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ShareClaims identify a shared process and who shared it.
type ShareClaims struct {
	NumeroProcesso string `json:"numero_processo"`
	Remetente      string `json:"remetente"`
	jwt.RegisteredClaims
}

// ShareSigner issues and verifies HS256-signed share-link tokens.
type ShareSigner struct {
	secret []byte
}

// NewShareSigner builds a signer from a shared secret.
func NewShareSigner(secret []byte) (*ShareSigner, error) {
	if len(secret) == 0 {
		return nil, errors.New("share secret is required")
	}
	return &ShareSigner{secret: secret}, nil
}

// Sign issues a share-link token for a process, valid for ttl.
func (signer *ShareSigner) Sign(numeroProcesso, remetente string, ttl time.Duration) (string, error) {
	if numeroProcesso == "" {
		return "", errors.New("numero_processo is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}

	now := time.Now()
	claims := ShareClaims{
		NumeroProcesso: numeroProcesso,
		Remetente:      remetente,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signer.secret)
	if err != nil {
		return "", fmt.Errorf("sign share token: %w", err)
	}
	return token, nil
}

// Verify parses and validates a share-link token.
func (signer *ShareSigner) Verify(token string) (ShareClaims, error) {
	var claims ShareClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return signer.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ShareClaims{}, ErrTokenExpired
		}
		return ShareClaims{}, ErrTokenInvalid
	}
	if !parsed.Valid || claims.NumeroProcesso == "" {
		return ShareClaims{}, ErrTokenInvalid
	}
	return claims, nil
}
