package app

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"tasktree/api/internal/access"
	"tasktree/api/internal/backend"
	"tasktree/api/internal/model"
	"tasktree/api/internal/session"
)

const minPasswordLength = 8

// Login is the outcome of a successful login or registration. The backend
// secret and the local token go into cookies and never into a response body.
type Login struct {
	User           model.Identity
	BackendSecret  string
	BackendExpires time.Time
	SessionToken   string
	SessionExpires time.Time
}

func (s *Service) Login(ctx context.Context, email, password string) (Login, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Login{}, validationError("Email is required")
	}
	if password == "" {
		return Login{}, validationError("Password is required")
	}

	admin, err := s.access.Admin()
	if err != nil {
		return Login{}, err
	}
	backendSession, err := admin.Accounts.CreateEmailPasswordSession(ctx, email, password)
	if err != nil {
		if backend.IsUnauthorized(err) {
			return Login{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
		}
		return Login{}, err
	}
	return s.establish(ctx, backendSession)
}

func (s *Service) Register(ctx context.Context, name, email, password string) (Login, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		return Login{}, validationError("Email is required")
	case password == "":
		return Login{}, validationError("Password is required")
	case name == "":
		return Login{}, validationError("Name is required")
	case len(password) < minPasswordLength:
		return Login{}, validationError("Password must be at least 8 characters long")
	}

	admin, err := s.access.Admin()
	if err != nil {
		return Login{}, err
	}
	if _, err := admin.Accounts.CreateAccount(ctx, "", email, password, name); err != nil {
		if backend.IsConflict(err) {
			return Login{}, domainError(http.StatusConflict, "CONFLICT", "A user with this email already exists", nil)
		}
		return Login{}, err
	}
	backendSession, err := admin.Accounts.CreateEmailPasswordSession(ctx, email, password)
	if err != nil {
		return Login{}, err
	}
	return s.establish(ctx, backendSession)
}

// establish reads the account through the new backend session and records
// the local session.
func (s *Service) establish(ctx context.Context, backendSession backend.AccountSession) (Login, error) {
	userClient, err := s.access.Client(backend.Session(backendSession.Secret))
	if err != nil {
		return Login{}, err
	}
	account, err := userClient.Accounts.GetAccount(ctx)
	if err != nil {
		return Login{}, err
	}

	now := s.now()
	record := session.Record{
		User:             model.Identity{ID: account.ID, Email: account.Email, Name: account.Name},
		BackendSessionID: backendSession.ID,
		LoggedInAt:       now,
		ExpiresAt:        now.Add(s.cfg.SessionTTL),
	}
	token, err := s.access.Sessions().Create(ctx, record)
	if err != nil {
		return Login{}, err
	}
	return Login{
		User:           record.User,
		BackendSecret:  backendSession.Secret,
		BackendExpires: backendSession.Expire,
		SessionToken:   token,
		SessionExpires: record.ExpiresAt,
	}, nil
}

// Logout revokes the backend session when one is known and always clears the
// local session. Failures are logged, never returned.
func (s *Service) Logout(ctx context.Context, rc access.RequestContext) {
	if rc.Record != nil && rc.Record.BackendSessionID != "" {
		if admin, err := s.access.Admin(); err != nil {
			log.Printf("auth: logout without backend revocation: %v", err)
		} else if err := admin.Accounts.DeleteSession(ctx, rc.Record.User.ID, rc.Record.BackendSessionID); err != nil {
			log.Printf("auth: revoke backend session for %s: %v", rc.Record.User.ID, err)
		}
	}
	if rc.SessionToken != "" {
		if err := s.access.Sessions().Clear(ctx, rc.SessionToken); err != nil {
			log.Printf("auth: clear local session: %v", err)
		}
	}
}

// SessionState describes the caller's local session. It never fails.
func (s *Service) SessionState(rc access.RequestContext) map[string]any {
	if rc.Record == nil {
		return map[string]any{"user": nil, "loggedIn": false}
	}
	return map[string]any{
		"user":       rc.Record.User,
		"loggedIn":   true,
		"loggedInAt": rc.Record.LoggedInAt,
	}
}
