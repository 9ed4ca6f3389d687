// Package memory is an in-process backend driver. It enforces the same
// permission model as the remote backend and exposes error injection hooks
// for tests.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"tasktree/api/internal/backend"
	"tasktree/api/internal/util"
)

type storedFile struct {
	meta backend.File
	data []byte
}

type account struct {
	backend.Account
	passwordHash []byte
}

// Backend keeps documents, files and accounts in memory.
type Backend struct {
	mu        sync.RWMutex
	documents map[string]backend.Document
	order     []string
	files     map[string]storedFile
	accounts  map[string]account
	sessions  map[string]backend.AccountSession // secret -> session
	calls     map[string]int
	now       func() time.Time

	// Error injection for testing
	PingErr           error
	CreateDocumentErr error
	GetDocumentErr    error
	UpdateDocumentErr error
	DeleteDocumentErr error
	ListDocumentsErr  error
	CreateFileErr     error
	DownloadErr       error
	PreviewErr        error
	DeleteFileErr     error
	DeleteSessionErr  error
	CreateSessionErr  error
}

func New() *Backend {
	return &Backend{
		documents: make(map[string]backend.Document),
		files:     make(map[string]storedFile),
		accounts:  make(map[string]account),
		sessions:  make(map[string]backend.AccountSession),
		calls:     make(map[string]int),
		now:       time.Now,
	}
}

func (b *Backend) Ping(context.Context) error {
	return b.PingErr
}

// Client implements backend.Backend.
func (b *Backend) Client(creds backend.Credentials) (*backend.Client, error) {
	c := &client{backend: b, creds: creds}
	switch creds.Kind() {
	case backend.KindAdmin, backend.KindBridged:
	case backend.KindSession:
		session, ok := b.lookupSession(creds.Token())
		if ok {
			c.userID = session.UserID
			c.sessionID = session.ID
		}
	default:
		return nil, fmt.Errorf("memory backend: credentials required")
	}
	return &backend.Client{Credentials: creds, Documents: c, Storage: c, Accounts: c}, nil
}

// Calls reports how often op was invoked.
func (b *Backend) Calls(op string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.calls[op]
}

// HasFile reports whether a blob exists, bypassing permissions.
func (b *Backend) HasFile(bucketID, fileID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.files[fileKey(bucketID, fileID)]
	return ok
}

// FileCount reports the number of stored blobs.
func (b *Backend) FileCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.files)
}

// Document returns a stored document, bypassing permissions.
func (b *Backend) Document(databaseID, collectionID, documentID string) (backend.Document, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	doc, ok := b.documents[docKey(databaseID, collectionID, documentID)]
	return copyDocument(doc), ok
}

// PutDocument stores a document as-is, bypassing permissions.
func (b *Backend) PutDocument(databaseID, collectionID string, doc backend.Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := docKey(databaseID, collectionID, doc.ID)
	if _, exists := b.documents[key]; !exists {
		b.order = append(b.order, key)
	}
	doc.Collection = collectionID
	doc.Data = normalize(doc.Data)
	b.documents[key] = doc
}

func (b *Backend) lookupSession(secret string) (backend.AccountSession, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	session, ok := b.sessions[secret]
	if !ok || !b.now().Before(session.Expire) {
		return backend.AccountSession{}, false
	}
	return session, true
}

func (b *Backend) record(op string) {
	b.calls[op]++
}

type client struct {
	backend   *Backend
	creds     backend.Credentials
	userID    string
	sessionID string
}

func (c *client) scoped() bool {
	return c.creds.Kind() == backend.KindSession
}

// authorize checks a session-scoped client against permissions. Resources
// the caller cannot read are reported as missing.
func (c *client) authorize(permissions []string, action, notFoundMessage string) error {
	if !c.scoped() {
		return nil
	}
	if c.userID == "" {
		return unauthorized()
	}
	if !backend.Allows(permissions, "read", c.userID) {
		return backend.NotFound(notFoundMessage)
	}
	if action != "read" && !backend.Allows(permissions, action, c.userID) {
		return unauthorized()
	}
	return nil
}

func (c *client) CreateDocument(_ context.Context, databaseID, collectionID, documentID string, data map[string]any, permissions []string) (backend.Document, error) {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("CreateDocument")
	if b.CreateDocumentErr != nil {
		return backend.Document{}, b.CreateDocumentErr
	}
	if c.scoped() && c.userID == "" {
		return backend.Document{}, unauthorized()
	}
	if documentID == "" || documentID == "unique()" {
		documentID = util.NewID("")
	}
	key := docKey(databaseID, collectionID, documentID)
	if _, exists := b.documents[key]; exists {
		return backend.Document{}, backend.NewError(http.StatusConflict, "document_already_exists", "Document with the requested ID already exists.")
	}
	now := b.now().UTC()
	doc := backend.Document{
		ID:          documentID,
		Collection:  collectionID,
		Permissions: append([]string{}, permissions...),
		CreatedAt:   now,
		UpdatedAt:   now,
		Data:        normalize(data),
	}
	b.documents[key] = doc
	b.order = append(b.order, key)
	return copyDocument(doc), nil
}

func (c *client) GetDocument(_ context.Context, databaseID, collectionID, documentID string) (backend.Document, error) {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("GetDocument")
	if b.GetDocumentErr != nil {
		return backend.Document{}, b.GetDocumentErr
	}
	doc, err := c.loadDocument(databaseID, collectionID, documentID, "read")
	if err != nil {
		return backend.Document{}, err
	}
	return copyDocument(doc), nil
}

func (c *client) UpdateDocument(_ context.Context, databaseID, collectionID, documentID string, data map[string]any) (backend.Document, error) {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("UpdateDocument")
	if b.UpdateDocumentErr != nil {
		return backend.Document{}, b.UpdateDocumentErr
	}
	doc, err := c.loadDocument(databaseID, collectionID, documentID, "update")
	if err != nil {
		return backend.Document{}, err
	}
	merged := copyDocument(doc).Data
	for key, value := range normalize(data) {
		merged[key] = value
	}
	doc.Data = merged
	doc.UpdatedAt = b.now().UTC()
	b.documents[docKey(databaseID, collectionID, documentID)] = doc
	return copyDocument(doc), nil
}

func (c *client) DeleteDocument(_ context.Context, databaseID, collectionID, documentID string) error {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("DeleteDocument")
	if b.DeleteDocumentErr != nil {
		return b.DeleteDocumentErr
	}
	if _, err := c.loadDocument(databaseID, collectionID, documentID, "delete"); err != nil {
		return err
	}
	key := docKey(databaseID, collectionID, documentID)
	delete(b.documents, key)
	for i, candidate := range b.order {
		if candidate == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *client) ListDocuments(_ context.Context, databaseID, collectionID string, queries ...backend.Query) ([]backend.Document, error) {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("ListDocuments")
	if b.ListDocumentsErr != nil {
		return nil, b.ListDocumentsErr
	}
	if c.scoped() && c.userID == "" {
		return nil, unauthorized()
	}
	prefix := databaseID + "/" + collectionID + "/"
	documents := []backend.Document{}
	for _, key := range b.order {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		doc := b.documents[key]
		if c.scoped() && !backend.Allows(doc.Permissions, "read", c.userID) {
			continue
		}
		if !matchesAll(doc.Data, queries) {
			continue
		}
		documents = append(documents, copyDocument(doc))
	}
	return documents, nil
}

func (c *client) loadDocument(databaseID, collectionID, documentID, action string) (backend.Document, error) {
	const missing = "Document with the requested ID could not be found."
	if c.scoped() && c.userID == "" {
		return backend.Document{}, unauthorized()
	}
	doc, ok := c.backend.documents[docKey(databaseID, collectionID, documentID)]
	if !ok {
		return backend.Document{}, backend.NotFound(missing)
	}
	if err := c.authorize(doc.Permissions, action, missing); err != nil {
		return backend.Document{}, err
	}
	return doc, nil
}

func (c *client) CreateFile(_ context.Context, bucketID string, input backend.FileInput) (backend.File, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return backend.File{}, fmt.Errorf("read upload: %w", err)
	}

	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("CreateFile")
	if b.CreateFileErr != nil {
		return backend.File{}, b.CreateFileErr
	}
	if c.scoped() && c.userID == "" {
		return backend.File{}, unauthorized()
	}
	fileID := input.ID
	if fileID == "" || fileID == "unique()" {
		fileID = util.NewID("")
	}
	key := fileKey(bucketID, fileID)
	if _, exists := b.files[key]; exists {
		return backend.File{}, backend.NewError(http.StatusConflict, "storage_file_already_exists", "A storage file with the requested ID already exists.")
	}
	meta := backend.File{
		ID:          fileID,
		BucketID:    bucketID,
		Name:        input.Name,
		MimeType:    input.MimeType,
		Size:        int64(len(data)),
		Permissions: append([]string{}, input.Permissions...),
		CreatedAt:   b.now().UTC(),
	}
	b.files[key] = storedFile{meta: meta, data: data}
	return meta, nil
}

func (c *client) GetFileDownload(_ context.Context, bucketID, fileID string) (*backend.Blob, error) {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("GetFileDownload")
	if b.DownloadErr != nil {
		return nil, b.DownloadErr
	}
	file, err := c.loadFile(bucketID, fileID, "read")
	if err != nil {
		return nil, err
	}
	return &backend.Blob{
		Body:        io.NopCloser(bytes.NewReader(file.data)),
		ContentType: file.meta.MimeType,
		Size:        int64(len(file.data)),
	}, nil
}

func (c *client) GetFilePreview(_ context.Context, bucketID, fileID string, opts backend.PreviewOptions) (*backend.Blob, error) {
	b := c.backend
	b.mu.Lock()
	b.record("GetFilePreview")
	if b.PreviewErr != nil {
		b.mu.Unlock()
		return nil, b.PreviewErr
	}
	file, err := c.loadFile(bucketID, fileID, "read")
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return backend.ResizePreview(bytes.NewReader(file.data), file.meta.MimeType, opts)
}

func (c *client) DeleteFile(_ context.Context, bucketID, fileID string) error {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("DeleteFile")
	if b.DeleteFileErr != nil {
		return b.DeleteFileErr
	}
	if _, err := c.loadFile(bucketID, fileID, "delete"); err != nil {
		return err
	}
	delete(b.files, fileKey(bucketID, fileID))
	return nil
}

func (c *client) loadFile(bucketID, fileID, action string) (storedFile, error) {
	const missing = "The requested file could not be found."
	if c.scoped() && c.userID == "" {
		return storedFile{}, unauthorized()
	}
	file, ok := c.backend.files[fileKey(bucketID, fileID)]
	if !ok {
		return storedFile{}, backend.NewError(http.StatusNotFound, "storage_file_not_found", missing)
	}
	if err := c.authorize(file.meta.Permissions, action, missing); err != nil {
		return storedFile{}, err
	}
	return file, nil
}

func (c *client) CreateAccount(_ context.Context, userID, email, password, name string) (backend.Account, error) {
	if len(password) < 8 {
		return backend.Account{}, backend.NewError(http.StatusBadRequest, "general_argument_invalid", "Password must be between 8 and 265 characters long.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return backend.Account{}, fmt.Errorf("hash password: %w", err)
	}

	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("CreateAccount")
	email = strings.ToLower(strings.TrimSpace(email))
	for _, existing := range b.accounts {
		if existing.Email == email {
			return backend.Account{}, backend.NewError(http.StatusConflict, "user_already_exists", "A user with the same id, email, or phone already exists in this project.")
		}
	}
	if userID == "" || userID == "unique()" {
		userID = util.NewID("")
	}
	acct := account{
		Account:      backend.Account{ID: userID, Email: email, Name: name},
		passwordHash: hash,
	}
	b.accounts[userID] = acct
	return acct.Account, nil
}

func (c *client) CreateEmailPasswordSession(_ context.Context, email, password string) (backend.AccountSession, error) {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("CreateEmailPasswordSession")
	if b.CreateSessionErr != nil {
		return backend.AccountSession{}, b.CreateSessionErr
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, acct := range b.accounts {
		if acct.Email != email {
			continue
		}
		if bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)) != nil {
			break
		}
		session := backend.AccountSession{
			ID:     util.NewID(""),
			UserID: acct.ID,
			Secret: util.NewSecret(),
			Expire: b.now().Add(365 * 24 * time.Hour).UTC(),
		}
		b.sessions[session.Secret] = session
		return session, nil
	}
	return backend.AccountSession{}, backend.NewError(http.StatusUnauthorized, "user_invalid_credentials", "Invalid credentials. Please check the email and password.")
}

func (c *client) GetAccount(context.Context) (backend.Account, error) {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("GetAccount")
	if !c.scoped() || c.userID == "" {
		return backend.Account{}, unauthorized()
	}
	acct, ok := b.accounts[c.userID]
	if !ok {
		return backend.Account{}, unauthorized()
	}
	return acct.Account, nil
}

func (c *client) DeleteSession(_ context.Context, userID, sessionID string) error {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("DeleteSession")
	if b.DeleteSessionErr != nil {
		return b.DeleteSessionErr
	}
	if c.scoped() && c.userID != userID {
		return unauthorized()
	}
	for secret, session := range b.sessions {
		if session.ID == sessionID && session.UserID == userID {
			delete(b.sessions, secret)
			return nil
		}
	}
	return backend.NewError(http.StatusNotFound, "user_session_not_found", "The current user session could not be found.")
}

// SessionCount reports the number of live backend sessions.
func (b *Backend) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// DocumentIDs lists stored document ids for a collection in insertion order.
func (b *Backend) DocumentIDs(databaseID, collectionID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	prefix := databaseID + "/" + collectionID + "/"
	var ids []string
	for _, key := range b.order {
		if strings.HasPrefix(key, prefix) {
			ids = append(ids, strings.TrimPrefix(key, prefix))
		}
	}
	return ids
}

func unauthorized() *backend.Error {
	return backend.NewError(http.StatusUnauthorized, "user_unauthorized", "The current user is not authorized to perform the requested action.")
}

func matchesAll(data map[string]any, queries []backend.Query) bool {
	for _, query := range queries {
		if !query.Matches(data) {
			return false
		}
	}
	return true
}

func docKey(databaseID, collectionID, documentID string) string {
	return databaseID + "/" + collectionID + "/" + documentID
}

func fileKey(bucketID, fileID string) string {
	return bucketID + "/" + fileID
}

// normalize gives stored data the shape a JSON round trip would.
func normalize(data map[string]any) map[string]any {
	out := map[string]any{}
	if len(data) == 0 {
		return out
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(encoded, &out)
	return out
}

func copyDocument(doc backend.Document) backend.Document {
	doc.Permissions = append([]string{}, doc.Permissions...)
	doc.Data = normalize(doc.Data)
	return doc
}
