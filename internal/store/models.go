package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Document is a row of the documents table. Data and Permissions are JSONB.
type Document struct {
	DatabaseID   string
	CollectionID string
	ID           string
	Data         map[string]any
	Permissions  []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Filter matches documents whose data contains Attribute equal to any of
// Values.
type Filter struct {
	Attribute string
	Values    []any
}

type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

type AccountSession struct {
	ID         string
	AccountID  string
	SecretHash string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
