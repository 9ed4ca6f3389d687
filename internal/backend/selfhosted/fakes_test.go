package selfhosted

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"sync"
	"time"

	"tasktree/api/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	documents map[string]store.Document
	order     []string
	accounts  map[string]store.Account
	sessions  map[string]store.AccountSession
	now       time.Time
	pingErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents: map[string]store.Document{},
		accounts:  map[string]store.Account{},
		sessions:  map[string]store.AccountSession{},
		now:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func docKey(databaseID, collectionID, documentID string) string {
	return databaseID + "/" + collectionID + "/" + documentID
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeStore) InsertDocument(ctx context.Context, doc store.Document) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := docKey(doc.DatabaseID, doc.CollectionID, doc.ID)
	if _, ok := f.documents[key]; ok {
		return store.Document{}, store.ErrConflict
	}
	doc.CreatedAt = f.now
	doc.UpdatedAt = f.now
	f.documents[key] = doc
	f.order = append(f.order, key)
	return doc, nil
}

func (f *fakeStore) GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[docKey(databaseID, collectionID, documentID)]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) MergeDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := docKey(databaseID, collectionID, documentID)
	doc, ok := f.documents[key]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	merged := map[string]any{}
	for k, v := range doc.Data {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	doc.Data = merged
	f.documents[key] = doc
	return doc, nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, databaseID, collectionID, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := docKey(databaseID, collectionID, documentID)
	if _, ok := f.documents[key]; !ok {
		return store.ErrNotFound
	}
	delete(f.documents, key)
	return nil
}

func (f *fakeStore) ListDocuments(ctx context.Context, databaseID, collectionID string, filters []store.Filter, readPermission string) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Document
	for _, key := range f.order {
		doc, ok := f.documents[key]
		if !ok || doc.DatabaseID != databaseID || doc.CollectionID != collectionID {
			continue
		}
		if readPermission != "" && !contains(doc.Permissions, readPermission) {
			continue
		}
		if matchesAll(doc.Data, filters) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func matchesAll(data map[string]any, filters []store.Filter) bool {
	for _, filter := range filters {
		matched := false
		for _, value := range filter.Values {
			if reflect.DeepEqual(data[filter.Attribute], value) {
				matched = true
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func (f *fakeStore) CreateAccount(ctx context.Context, account store.Account) (store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.accounts {
		if existing.Email == account.Email || existing.ID == account.ID {
			return store.Account{}, store.ErrConflict
		}
	}
	account.CreatedAt = f.now
	f.accounts[account.ID] = account
	return account, nil
}

func (f *fakeStore) GetAccountByEmail(ctx context.Context, email string) (store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return store.Account{}, store.ErrNotFound
}

func (f *fakeStore) GetAccountByID(ctx context.Context, id string) (store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (f *fakeStore) CreateAccountSession(ctx context.Context, session store.AccountSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.SecretHash] = session
	return nil
}

func (f *fakeStore) LookupAccountSession(ctx context.Context, secretHash string) (store.AccountSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[secretHash]
	if !ok {
		return store.AccountSession{}, store.ErrNotFound
	}
	return session, nil
}

func (f *fakeStore) DeleteAccountSession(ctx context.Context, accountID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, session := range f.sessions {
		if session.AccountID == accountID && session.ID == sessionID {
			delete(f.sessions, hash)
			return nil
		}
	}
	return store.ErrNotFound
}

type fakeObject struct {
	data []byte
	info ObjectInfo
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	buckets map[string]bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string]fakeObject{}, buckets: map[string]bool{}}
}

func (f *fakeObjects) EnsureBucket(ctx context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjects) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string, metadata map[string]string) (ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return ObjectInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	info := ObjectInfo{Key: key, Size: int64(len(data)), ContentType: contentType, Metadata: metadata}
	f.objects[bucket+"/"+key] = fakeObject{data: data, info: info}
	return info, nil
}

func (f *fakeObjects) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	object, ok := f.objects[bucket+"/"+key]
	if !ok {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return object.info, nil
}

func (f *fakeObjects) Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	object, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(object.data)), object.info, nil
}

func (f *fakeObjects) Remove(ctx context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[bucket+"/"+key]; !ok {
		return ErrObjectNotFound
	}
	delete(f.objects, bucket+"/"+key)
	return nil
}
