// Package backend describes the remote document and blob backend the task
// tree lives in. Drivers live in subpackages; the rest of the service only
// sees the capability interfaces below.
package backend

import (
	"context"
	"io"
	"reflect"
	"time"
)

// Document is a stored record. Data holds the user-defined attributes; the
// system attributes are lifted into fields.
type Document struct {
	ID          string
	Collection  string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Data        map[string]any
}

// Query filters a document listing.
type Query struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute"`
	Values    []any  `json:"values"`
}

func Equal(attribute string, values ...any) Query {
	return Query{Method: "equal", Attribute: attribute, Values: values}
}

// Matches evaluates q against document data for drivers that filter in
// process.
func (q Query) Matches(data map[string]any) bool {
	if q.Method != "equal" {
		return false
	}
	value, ok := data[q.Attribute]
	if !ok {
		return false
	}
	for _, candidate := range q.Values {
		if reflect.DeepEqual(candidate, value) {
			return true
		}
	}
	return false
}

type File struct {
	ID          string
	BucketID    string
	Name        string
	MimeType    string
	Size        int64
	Permissions []string
	CreatedAt   time.Time
}

type FileInput struct {
	ID          string
	Name        string
	MimeType    string
	Size        int64
	Body        io.Reader
	Permissions []string
}

// Blob is an open byte stream. Callers must close Body.
type Blob struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

type PreviewOptions struct {
	Width  int
	Height int
}

type Account struct {
	ID    string
	Email string
	Name  string
}

// AccountSession is a backend login. Secret is the bearer value forwarded in
// the backend session cookie.
type AccountSession struct {
	ID     string
	UserID string
	Secret string
	Expire time.Time
}

type Documents interface {
	CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any, permissions []string) (Document, error)
	GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (Document, error)
	// UpdateDocument merges data into the stored attributes.
	UpdateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (Document, error)
	DeleteDocument(ctx context.Context, databaseID, collectionID, documentID string) error
	ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...Query) ([]Document, error)
}

type Storage interface {
	CreateFile(ctx context.Context, bucketID string, input FileInput) (File, error)
	GetFileDownload(ctx context.Context, bucketID, fileID string) (*Blob, error)
	GetFilePreview(ctx context.Context, bucketID, fileID string, opts PreviewOptions) (*Blob, error)
	DeleteFile(ctx context.Context, bucketID, fileID string) error
}

type Accounts interface {
	CreateAccount(ctx context.Context, userID, email, password, name string) (Account, error)
	CreateEmailPasswordSession(ctx context.Context, email, password string) (AccountSession, error)
	// GetAccount returns the account owning the client's session.
	GetAccount(ctx context.Context) (Account, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

// Client bundles the capabilities bound to one set of credentials.
type Client struct {
	Credentials Credentials
	Documents   Documents
	Storage     Storage
	Accounts    Accounts
}

// Backend hands out clients per credential variant.
type Backend interface {
	Client(creds Credentials) (*Client, error)
	Ping(ctx context.Context) error
}
