package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) (Account, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (id, email, name, password_hash)
		VALUES ($1, LOWER($2), $3, $4)
		RETURNING email, created_at
	`, account.ID, strings.TrimSpace(account.Email), account.Name, account.PasswordHash).Scan(&account.Email, &account.CreatedAt)
	if isUniqueViolation(err) {
		return Account{}, ErrConflict
	}
	if err != nil {
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return s.getAccount(ctx, `WHERE email = LOWER($1)`, strings.TrimSpace(email))
}

func (s *PostgresStore) GetAccountByID(ctx context.Context, id string) (Account, error) {
	return s.getAccount(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) getAccount(ctx context.Context, where string, arg any) (Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx, `SELECT id, email, name, password_hash, created_at FROM accounts `+where, arg).
		Scan(&account.ID, &account.Email, &account.Name, &account.PasswordHash, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) CreateAccountSession(ctx context.Context, session AccountSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_sessions (id, account_id, secret_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, session.ID, session.AccountID, session.SecretHash, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert account session: %w", err)
	}
	return nil
}

// LookupAccountSession returns the live session for a hashed secret.
func (s *PostgresStore) LookupAccountSession(ctx context.Context, secretHash string) (AccountSession, error) {
	var session AccountSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, secret_hash, expires_at, created_at
		FROM account_sessions
		WHERE secret_hash = $1 AND expires_at > $2
	`, secretHash, time.Now()).Scan(&session.ID, &session.AccountID, &session.SecretHash, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AccountSession{}, ErrNotFound
	}
	if err != nil {
		return AccountSession{}, fmt.Errorf("lookup account session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) DeleteAccountSession(ctx context.Context, accountID, sessionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM account_sessions WHERE account_id=$1 AND id=$2`, accountID, sessionID)
	if err != nil {
		return fmt.Errorf("delete account session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete account session rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
