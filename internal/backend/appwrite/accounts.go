package appwrite

import (
	"context"

	sdk "github.com/appwrite/sdk-for-go/appwrite"
	awclient "github.com/appwrite/sdk-for-go/client"
	"github.com/appwrite/sdk-for-go/id"
	"github.com/appwrite/sdk-for-go/models"

	"tasktree/api/internal/backend"
)

func toAccount(u *models.User) backend.Account {
	return backend.Account{ID: u.Id, Email: u.Email, Name: u.Name}
}

func (c *client) CreateAccount(ctx context.Context, userID, email, password, name string) (backend.Account, error) {
	if userID == "" {
		userID = id.Unique()
	}
	var account backend.Account
	err := c.call(ctx, func(conn awclient.Client) error {
		acct := sdk.NewAccount(conn)
		user, err := acct.Create(userID, email, password, acct.WithCreateName(name))
		if err != nil {
			return err
		}
		account = toAccount(user)
		return nil
	})
	return account, err
}

func (c *client) CreateEmailPasswordSession(ctx context.Context, email, password string) (backend.AccountSession, error) {
	var session backend.AccountSession
	err := c.call(ctx, func(conn awclient.Client) error {
		created, err := sdk.NewAccount(conn).CreateEmailPasswordSession(email, password)
		if err != nil {
			return err
		}
		session = backend.AccountSession{
			ID:     created.Id,
			UserID: created.UserId,
			Secret: created.Secret,
			Expire: parseTime(created.Expire),
		}
		return nil
	})
	return session, err
}

func (c *client) GetAccount(ctx context.Context) (backend.Account, error) {
	var account backend.Account
	err := c.call(ctx, func(conn awclient.Client) error {
		user, err := sdk.NewAccount(conn).Get()
		if err != nil {
			return err
		}
		account = toAccount(user)
		return nil
	})
	return account, err
}

// DeleteSession revokes through the account API when the client holds the
// session itself and through the users API otherwise.
func (c *client) DeleteSession(ctx context.Context, userID, sessionID string) error {
	return c.call(ctx, func(conn awclient.Client) error {
		if c.creds.Kind() == backend.KindSession {
			_, err := sdk.NewAccount(conn).DeleteSession(sessionID)
			return err
		}
		_, err := sdk.NewUsers(conn).DeleteSession(userID, sessionID)
		return err
	})
}
