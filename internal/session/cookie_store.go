package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tasktree/api/internal/auth"
)

// CookieStore keeps the whole record inside the cookie value, sealed with the
// server secret. Nothing is stored server-side, so Clear relies on the
// caller expiring the cookie.
type CookieStore struct {
	secret []byte
	ttl    time.Duration
}

func NewCookieStore(secret string, ttl time.Duration) *CookieStore {
	return &CookieStore{secret: []byte(secret), ttl: ttl}
}

func (s *CookieStore) Create(_ context.Context, record Record) (string, error) {
	record.ExpiresAt = expiresAt(record, s.ttl, time.Now())
	token, err := auth.Seal(s.secret, record, record.ExpiresAt)
	if err != nil {
		return "", fmt.Errorf("seal session: %w", err)
	}
	return token, nil
}

func (s *CookieStore) Get(_ context.Context, token string) (Record, error) {
	if token == "" {
		return Record{}, ErrNotFound
	}
	var record Record
	if err := auth.Open(s.secret, token, &record); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return record, nil
}

func (s *CookieStore) Clear(context.Context, string) error {
	return nil
}

func (s *CookieStore) Ping(context.Context) error {
	return nil
}
