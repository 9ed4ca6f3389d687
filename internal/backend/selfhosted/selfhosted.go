// Package selfhosted serves the backend capabilities from PostgreSQL
// (documents and accounts) and an S3-compatible bucket (files).
package selfhosted

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tasktree/api/internal/auth"
	"tasktree/api/internal/backend"
	"tasktree/api/internal/config"
	"tasktree/api/internal/store"
)

// sessionLifetime matches the remote backend's default session length.
const sessionLifetime = 365 * 24 * time.Hour

// DocumentStore is the document persistence the driver needs.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc store.Document) (store.Document, error)
	GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (store.Document, error)
	MergeDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (store.Document, error)
	DeleteDocument(ctx context.Context, databaseID, collectionID, documentID string) error
	ListDocuments(ctx context.Context, databaseID, collectionID string, filters []store.Filter, readPermission string) ([]store.Document, error)
}

// AccountStore is the account persistence the driver needs.
type AccountStore interface {
	CreateAccount(ctx context.Context, account store.Account) (store.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (store.Account, error)
	GetAccountByID(ctx context.Context, id string) (store.Account, error)
	CreateAccountSession(ctx context.Context, session store.AccountSession) error
	LookupAccountSession(ctx context.Context, secretHash string) (store.AccountSession, error)
	DeleteAccountSession(ctx context.Context, accountID, sessionID string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Backend struct {
	cfg       config.BackendConfig
	documents DocumentStore
	accounts  AccountStore
	objects   ObjectStore
	pingers   []Pinger
	now       func() time.Time
}

func New(cfg config.BackendConfig, documents DocumentStore, accounts AccountStore, objects ObjectStore, pingers ...Pinger) *Backend {
	return &Backend{
		cfg:       cfg,
		documents: documents,
		accounts:  accounts,
		objects:   objects,
		pingers:   pingers,
		now:       time.Now,
	}
}

func (b *Backend) Client(creds backend.Credentials) (*backend.Client, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	if creds.Kind() == backend.KindNone {
		return nil, fmt.Errorf("selfhosted: credentials required")
	}
	c := &client{backend: b, creds: creds}
	return &backend.Client{
		Credentials: creds,
		Documents:   &documents{c},
		Storage:     &storage{c},
		Accounts:    &accounts{c},
	}, nil
}

func (b *Backend) Ping(ctx context.Context) error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}
	for _, pinger := range b.pingers {
		if err := pinger.Ping(ctx); err != nil {
			return err
		}
	}
	return b.objects.EnsureBucket(ctx, b.cfg.BucketID)
}

type client struct {
	backend *Backend
	creds   backend.Credentials
}

// sessionUser resolves the account behind a session-scoped client. It
// returns "" for clients using the API key.
func (c *client) sessionUser(ctx context.Context) (store.AccountSession, error) {
	if c.creds.Kind() != backend.KindSession {
		return store.AccountSession{}, nil
	}
	if c.creds.Token() == "" {
		return store.AccountSession{}, unauthorized()
	}
	session, err := c.backend.accounts.LookupAccountSession(ctx, auth.HashToken(c.creds.Token()))
	if errors.Is(err, store.ErrNotFound) {
		return store.AccountSession{}, unauthorized()
	}
	if err != nil {
		return store.AccountSession{}, err
	}
	return session, nil
}

// authorize checks permissions for session-scoped clients. Resources that
// the caller cannot read are reported as missing.
func (c *client) authorize(ctx context.Context, permissions []string, action string, notFound *backend.Error) error {
	session, err := c.sessionUser(ctx)
	if err != nil || session.AccountID == "" {
		return err
	}
	if !backend.Allows(permissions, "read", session.AccountID) {
		return notFound
	}
	if action != "read" && !backend.Allows(permissions, action, session.AccountID) {
		return unauthorized()
	}
	return nil
}

func unauthorized() *backend.Error {
	return backend.NewError(http.StatusUnauthorized, "user_unauthorized", "The current user is not authorized to perform the requested action.")
}

func documentNotFound() *backend.Error {
	return backend.NewError(http.StatusNotFound, "document_not_found", "Document with the requested ID could not be found.")
}

func fileNotFound() *backend.Error {
	return backend.NewError(http.StatusNotFound, "storage_file_not_found", "The requested file could not be found.")
}
