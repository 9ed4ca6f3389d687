package selfhosted

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"tasktree/api/internal/auth"
	"tasktree/api/internal/backend"
	"tasktree/api/internal/store"
	"tasktree/api/internal/util"
)

type accounts struct {
	*client
}

func toAccount(account store.Account) backend.Account {
	return backend.Account{ID: account.ID, Email: account.Email, Name: account.Name}
}

func invalidCredentials() *backend.Error {
	return backend.NewError(http.StatusUnauthorized, "user_invalid_credentials", "Invalid credentials. Please check the email and password.")
}

func (a *accounts) CreateAccount(ctx context.Context, userID, email, password, name string) (backend.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return backend.Account{}, backend.NewError(http.StatusBadRequest, "general_argument_invalid", "Invalid `email` param: Value must be a valid email address")
	}
	if len(password) < 8 {
		return backend.Account{}, backend.NewError(http.StatusBadRequest, "general_argument_invalid", "Invalid `password` param: Password must be between 8 and 256 characters long.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return backend.Account{}, fmt.Errorf("hash password: %w", err)
	}
	if userID == "" || userID == "unique()" {
		userID = util.NewID("")
	}

	created, err := a.backend.accounts.CreateAccount(ctx, store.Account{
		ID:           userID,
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
	})
	if errors.Is(err, store.ErrConflict) {
		return backend.Account{}, backend.NewError(http.StatusConflict, "user_already_exists", "A user with the same id, email, or phone already exists in this project.")
	}
	if err != nil {
		return backend.Account{}, err
	}
	return toAccount(created), nil
}

func (a *accounts) CreateEmailPasswordSession(ctx context.Context, email, password string) (backend.AccountSession, error) {
	account, err := a.backend.accounts.GetAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return backend.AccountSession{}, invalidCredentials()
	}
	if err != nil {
		return backend.AccountSession{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return backend.AccountSession{}, invalidCredentials()
	}

	session := backend.AccountSession{
		ID:     util.NewID(""),
		UserID: account.ID,
		Secret: util.NewSecret(),
		Expire: a.backend.now().Add(sessionLifetime).UTC(),
	}
	if err := a.backend.accounts.CreateAccountSession(ctx, store.AccountSession{
		ID:         session.ID,
		AccountID:  account.ID,
		SecretHash: auth.HashToken(session.Secret),
		ExpiresAt:  session.Expire,
	}); err != nil {
		return backend.AccountSession{}, err
	}
	return session, nil
}

func (a *accounts) GetAccount(ctx context.Context) (backend.Account, error) {
	if a.creds.Kind() != backend.KindSession {
		return backend.Account{}, unauthorized()
	}
	session, err := a.sessionUser(ctx)
	if err != nil {
		return backend.Account{}, err
	}
	account, err := a.backend.accounts.GetAccountByID(ctx, session.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		return backend.Account{}, unauthorized()
	}
	if err != nil {
		return backend.Account{}, err
	}
	return toAccount(account), nil
}

func (a *accounts) DeleteSession(ctx context.Context, userID, sessionID string) error {
	session, err := a.sessionUser(ctx)
	if err != nil {
		return err
	}
	if session.AccountID != "" && session.AccountID != userID {
		return unauthorized()
	}
	err = a.backend.accounts.DeleteAccountSession(ctx, userID, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return backend.NewError(http.StatusNotFound, "user_session_not_found", "The current user session could not be found.")
	}
	return err
}
