// Package session provides the local Session Store: the per-user record
// created at login and consulted on every request.
package session

import (
	"context"
	"errors"
	"time"

	"tasktree/api/internal/model"
)

// ErrNotFound is returned when a token names no live session.
var ErrNotFound = errors.New("session not found")

// Record is what the store keeps for a logged-in user. BackendSessionID is
// the backend's session handle and is never returned to callers.
type Record struct {
	User             model.Identity `json:"user"`
	BackendSessionID string         `json:"backendSessionId,omitempty"`
	LoggedInAt       time.Time      `json:"loggedInAt"`
	ExpiresAt        time.Time      `json:"expiresAt"`
}

// Store persists session records behind an opaque token carried in the
// local session cookie.
type Store interface {
	Create(ctx context.Context, record Record) (string, error)
	Get(ctx context.Context, token string) (Record, error)
	Clear(ctx context.Context, token string) error
	Ping(ctx context.Context) error
}

func expiresAt(record Record, ttl time.Duration, now time.Time) time.Time {
	if !record.ExpiresAt.IsZero() {
		return record.ExpiresAt
	}
	return now.Add(ttl)
}
