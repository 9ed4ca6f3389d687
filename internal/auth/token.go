// Package auth seals session payloads into opaque cookie values and hashes
// bearer secrets for storage.
package auth

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// envelope wraps a sealed payload with its expiry so Open can reject stale
// cookies without knowing the payload type.
type envelope struct {
	Exp  int64           `json:"exp"`
	Data json.RawMessage `json:"data"`
}

// Seal encrypts and authenticates payload. The result is URL-safe.
func Seal(secret []byte, payload any, expiresAt time.Time) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	plain, err := json.Marshal(envelope{Exp: expiresAt.Unix(), Data: data})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	aead, err := newAEAD(secret)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal into target.
func Open(secret []byte, token string, target any) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrInvalidToken
	}
	aead, err := newAEAD(secret)
	if err != nil {
		return err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return ErrInvalidToken
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ErrInvalidToken
	}

	var env envelope
	if err := json.Unmarshal(plain, &env); err != nil || env.Exp == 0 {
		return ErrInvalidToken
	}
	if time.Now().Unix() >= env.Exp {
		return ErrExpiredToken
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return ErrInvalidToken
	}
	return nil
}

func newAEAD(secret []byte) (cipher.AEAD, error) {
	key := sha256.Sum256(secret)
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return aead, nil
}

func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
