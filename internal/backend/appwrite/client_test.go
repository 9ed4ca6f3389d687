package appwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tasktree/api/internal/backend"
	"tasktree/api/internal/config"
	"tasktree/api/internal/model"
)

func testConfig(endpoint string) config.BackendConfig {
	return config.BackendConfig{
		Endpoint:     endpoint,
		ProjectID:    "proj",
		APIKey:       "api-key",
		DatabaseID:   "todo_apps",
		CollectionID: "todos",
		BucketID:     "todo_files",
	}
}

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Backend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(testConfig(server.URL), server.Client())
}

func mustClient(t *testing.T, b *Backend, creds backend.Credentials) *backend.Client {
	t.Helper()
	client, err := b.Client(creds)
	if err != nil {
		t.Fatalf("Client failed: %v", err)
	}
	return client
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

type sentQuery struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute"`
	Values    []any  `json:"values"`
}

func sentQueries(t *testing.T, r *http.Request) []sentQuery {
	t.Helper()
	var out []sentQuery
	for _, raw := range r.URL.Query()["queries[]"] {
		var q sentQuery
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			t.Errorf("decode query %q: %v", raw, err)
			continue
		}
		out = append(out, q)
	}
	return out
}

func findQuery(queries []sentQuery, method string) (sentQuery, bool) {
	for _, q := range queries {
		if q.Method == method {
			return q, true
		}
	}
	return sentQuery{}, false
}

func TestClientRejectsMissingConfiguration(t *testing.T) {
	b := New(config.BackendConfig{Endpoint: "http://localhost"}, nil)
	_, err := b.Client(backend.Admin())
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if err := b.Ping(context.Background()); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError from Ping, got %v", err)
	}
}

func TestCredentialHeaders(t *testing.T) {
	var mu sync.Mutex
	var seen []http.Header
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Clone())
		mu.Unlock()
		writeJSON(w, http.StatusOK, `{"$id":"u1","email":"a@example.com","name":"A"}`)
	})

	ctx := context.Background()
	for _, creds := range []backend.Credentials{backend.Admin(), backend.Session("secret-1"), backend.Bridged(backendIdentity())} {
		account, err := mustClient(t, b, creds).Accounts.GetAccount(ctx)
		if err != nil {
			t.Fatalf("GetAccount(%s) failed: %v", creds.Kind(), err)
		}
		if account.ID != "u1" || account.Email != "a@example.com" {
			t.Fatalf("unexpected account %+v", account)
		}
	}

	if len(seen) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(seen))
	}
	for i, header := range seen {
		if header.Get("X-Appwrite-Project") != "proj" {
			t.Fatalf("request %d missing project header", i)
		}
	}
	if seen[0].Get("X-Appwrite-Key") != "api-key" || seen[0].Get("X-Appwrite-Session") != "" {
		t.Fatalf("admin request headers wrong: %v", seen[0])
	}
	if seen[1].Get("X-Appwrite-Key") != "" || seen[1].Get("X-Appwrite-Session") != "secret-1" {
		t.Fatalf("session request headers wrong: %v", seen[1])
	}
	if seen[2].Get("X-Appwrite-Key") != "api-key" || seen[2].Get("X-Appwrite-Session") != "" {
		t.Fatalf("bridged request headers wrong: %v", seen[2])
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/databases/todo_apps/collections/todos/documents":
			var body struct {
				DocumentID  string         `json:"documentId"`
				Data        map[string]any `json:"data"`
				Permissions []string       `json:"permissions"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if body.DocumentID == "" || body.Data["text"] != "Buy milk" || len(body.Permissions) != 3 {
				t.Errorf("unexpected create body: %+v", body)
			}
			writeJSON(w, http.StatusCreated, `{"$id":"doc1","$collectionId":"todos","$createdAt":"2024-06-01T10:00:00.000+00:00","$updatedAt":"2024-06-01T10:00:00.000+00:00","$permissions":["read(\"user:u1\")"],"text":"Buy milk","completed":false}`)
		case r.Method == http.MethodGet && r.URL.Path == "/databases/todo_apps/collections/todos/documents":
			equal, ok := findQuery(sentQueries(t, r), "equal")
			if !ok || equal.Attribute != "createdBy" || len(equal.Values) != 1 || equal.Values[0] != "u1" {
				t.Errorf("unexpected queries: %v", r.URL.Query()["queries[]"])
			}
			writeJSON(w, http.StatusOK, `{"total":1,"documents":[{"$id":"doc1","text":"Buy milk"}]}`)
		case r.Method == http.MethodPatch && r.URL.Path == "/databases/todo_apps/collections/todos/documents/doc1":
			var body struct {
				Data map[string]any `json:"data"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Data["completed"] != true {
				t.Errorf("unexpected patch body: %+v", body)
			}
			writeJSON(w, http.StatusOK, `{"$id":"doc1","text":"Buy milk","completed":true}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/databases/todo_apps/collections/todos/documents/doc1":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			writeJSON(w, http.StatusTeapot, `{"message":"unexpected","code":418}`)
		}
	})

	ctx := context.Background()
	docs := mustClient(t, b, backend.Admin()).Documents

	created, err := docs.CreateDocument(ctx, "todo_apps", "todos", "", map[string]any{"text": "Buy milk"}, backend.OwnerPermissions("u1"))
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if created.ID != "doc1" || created.Data["text"] != "Buy milk" || created.CreatedAt.IsZero() {
		t.Fatalf("unexpected document: %+v", created)
	}
	if _, ok := created.Data["$id"]; ok {
		t.Fatal("system attributes must not leak into data")
	}

	listed, err := docs.ListDocuments(ctx, "todo_apps", "todos", backend.Equal("createdBy", "u1"))
	if err != nil || len(listed) != 1 {
		t.Fatalf("ListDocuments = %v, %v", listed, err)
	}

	updated, err := docs.UpdateDocument(ctx, "todo_apps", "todos", "doc1", map[string]any{"completed": true})
	if err != nil || updated.Data["completed"] != true {
		t.Fatalf("UpdateDocument = %+v, %v", updated, err)
	}

	if err := docs.DeleteDocument(ctx, "todo_apps", "todos", "doc1"); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
}

func TestListDocumentsWalksEveryPage(t *testing.T) {
	const stored = listPageSize + 1
	var mu sync.Mutex
	var pages [][]sentQuery
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		queries := sentQueries(t, r)
		mu.Lock()
		pages = append(pages, queries)
		mu.Unlock()

		limit := 25
		if q, ok := findQuery(queries, "limit"); ok && len(q.Values) == 1 {
			limit = int(q.Values[0].(float64))
		}
		start := 0
		if q, ok := findQuery(queries, "cursorAfter"); ok && len(q.Values) == 1 {
			var after int
			_, _ = fmt.Sscanf(q.Values[0].(string), "d%d", &after)
			start = after + 1
		}
		var docs []string
		for i := start; i < stored && len(docs) < limit; i++ {
			docs = append(docs, fmt.Sprintf(`{"$id":"d%d","text":"todo %d","createdBy":"u1"}`, i, i))
		}
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"total":%d,"documents":[%s]}`, stored, strings.Join(docs, ",")))
	})

	listed, err := mustClient(t, b, backend.Admin()).Documents.ListDocuments(context.Background(), "todo_apps", "todos", backend.Equal("createdBy", "u1"))
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(listed) != stored {
		t.Fatalf("expected %d documents, got %d", stored, len(listed))
	}
	if listed[0].ID != "d0" || listed[stored-1].ID != fmt.Sprintf("d%d", stored-1) {
		t.Fatalf("unexpected order: first %s last %s", listed[0].ID, listed[stored-1].ID)
	}

	if len(pages) != 2 {
		t.Fatalf("expected 2 page requests, got %d", len(pages))
	}
	for i, page := range pages {
		limit, ok := findQuery(page, "limit")
		if !ok || len(limit.Values) != 1 || limit.Values[0] != float64(listPageSize) {
			t.Fatalf("page %d: missing limit query in %+v", i, page)
		}
		if _, ok := findQuery(page, "equal"); !ok {
			t.Fatalf("page %d: filter dropped in %+v", i, page)
		}
	}
	if _, ok := findQuery(pages[0], "cursorAfter"); ok {
		t.Fatalf("first page must not send a cursor: %+v", pages[0])
	}
	cursor, ok := findQuery(pages[1], "cursorAfter")
	if !ok || len(cursor.Values) != 1 || cursor.Values[0] != fmt.Sprintf("d%d", listPageSize-1) {
		t.Fatalf("second page must continue after the last id: %+v", pages[1])
	}
}

func TestErrorsAreDecoded(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message":"Document with the requested ID could not be found.","code":404,"type":"document_not_found","version":"1.8.0"}`)
	})

	_, err := mustClient(t, b, backend.Admin()).Documents.GetDocument(context.Background(), "todo_apps", "todos", "missing")
	var backendErr *backend.Error
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if backendErr.Status != http.StatusNotFound || backendErr.Type != "document_not_found" || !strings.Contains(backendErr.Message, "could not be found") {
		t.Fatalf("unexpected error: %+v", backendErr)
	}
}

func TestCancelledContextSkipsRequest(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		writeJSON(w, http.StatusOK, `{"$id":"doc1"}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mustClient(t, b, backend.Admin()).Documents.GetDocument(ctx, "todo_apps", "todos", "doc1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected no request, got %d", calls)
	}
}

func TestCreateFileChunksLargeUploads(t *testing.T) {
	var mu sync.Mutex
	var ranges []string
	var ids []string
	var received int
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		// The SDK looks for a resumable upload under the file id first.
		if r.Method == http.MethodGet && r.URL.Path == "/storage/buckets/todo_files/files/f1" {
			writeJSON(w, http.StatusNotFound, `{"message":"The requested file could not be found.","code":404,"type":"storage_file_not_found"}`)
			return
		}
		if r.Method != http.MethodPost || r.URL.Path != "/storage/buckets/todo_files/files" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			return
		}
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}
		data, _ := io.ReadAll(file)
		permissions := 0
		for key := range r.MultipartForm.Value {
			if strings.HasPrefix(key, "permissions") {
				permissions++
			}
		}
		mu.Lock()
		ranges = append(ranges, r.Header.Get("Content-Range"))
		ids = append(ids, r.Header.Get("X-Appwrite-ID"))
		received += len(data)
		mu.Unlock()
		if header.Filename != "t1_f1_big.pdf" || r.FormValue("fileId") != "f1" || permissions != 2 {
			t.Errorf("unexpected form: %v filename=%s", r.MultipartForm.Value, header.Filename)
		}
		writeJSON(w, http.StatusOK, `{"$id":"f1","bucketId":"todo_files","name":"t1_f1_big.pdf","mimeType":"application/pdf","sizeOriginal":7340032}`)
	})

	payload := strings.Repeat("x", 7*1024*1024)
	file, err := mustClient(t, b, backend.Session("s")).Storage.CreateFile(context.Background(), "todo_files", backend.FileInput{
		ID:          "f1",
		Name:        "t1_f1_big.pdf",
		MimeType:    "application/pdf",
		Size:        int64(len(payload)),
		Body:        strings.NewReader(payload),
		Permissions: []string{backend.Read(backend.UserRole("u1")), backend.Delete(backend.UserRole("u1"))},
	})
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if file.ID != "f1" || file.Size != int64(len(payload)) || file.MimeType != "application/pdf" {
		t.Fatalf("unexpected file: %+v", file)
	}
	if received != len(payload) {
		t.Fatalf("expected %d bytes uploaded, got %d", len(payload), received)
	}
	if len(ranges) != 2 || ranges[0] != "bytes 0-5242879/7340032" || ranges[1] != "bytes 5242880-7340031/7340032" {
		t.Fatalf("unexpected content ranges: %v", ranges)
	}
	if ids[0] != "f1" || ids[1] != "f1" {
		t.Fatalf("expected every chunk under the file id, got %v", ids)
	}
}

func TestDownloadStreamsBody(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/storage/buckets/todo_files/files/f1/download":
			if r.Header.Get("X-Appwrite-Key") != "api-key" || r.Header.Get("X-Appwrite-Project") != "proj" {
				t.Errorf("download missing credential headers: %v", r.Header)
			}
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("hello"))
		case r.Method == http.MethodGet && r.URL.Path == "/storage/buckets/todo_files/files/f1/preview":
			if r.URL.Query().Get("width") != "400" || r.URL.Query().Get("height") != "300" {
				t.Errorf("unexpected preview query %s", r.URL.RawQuery)
			}
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png"))
		default:
			writeJSON(w, http.StatusNotFound, `{"message":"The requested file could not be found.","code":404,"type":"storage_file_not_found"}`)
		}
	})

	files := mustClient(t, b, backend.Admin()).Storage
	ctx := context.Background()

	blob, err := files.GetFileDownload(ctx, "todo_files", "f1")
	if err != nil {
		t.Fatalf("GetFileDownload failed: %v", err)
	}
	data, _ := io.ReadAll(blob.Body)
	blob.Body.Close()
	if string(data) != "hello" || blob.ContentType != "text/plain" {
		t.Fatalf("unexpected blob %q %s", data, blob.ContentType)
	}

	preview, err := files.GetFilePreview(ctx, "todo_files", "f1", backend.PreviewOptions{Width: 400, Height: 300})
	if err != nil {
		t.Fatalf("GetFilePreview failed: %v", err)
	}
	preview.Body.Close()

	if _, err := files.GetFileDownload(ctx, "todo_files", "missing"); !backend.IsNotFound(err) {
		t.Fatalf("expected not found download, got %v", err)
	}
	if err := files.DeleteFile(ctx, "todo_files", "missing"); !backend.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDownloadBodyArrivesAfterReturn(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 64*1024)
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write(payload)
	})

	blob, err := mustClient(t, b, backend.Admin()).Storage.GetFileDownload(context.Background(), "todo_files", "f1")
	if err != nil {
		t.Fatalf("GetFileDownload failed: %v", err)
	}
	defer blob.Body.Close()
	data, err := io.ReadAll(blob.Body)
	if err != nil {
		t.Fatalf("read streamed body: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("expected %d bytes, got %d", len(payload), len(data))
	}
}

func TestLoginSessionFlow(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/account/sessions/email":
			writeJSON(w, http.StatusCreated, `{"$id":"sess1","userId":"u1","secret":"sekret","expire":"2025-06-01T10:00:00.000+00:00"}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/users/u1/sessions/sess1":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete && r.URL.Path == "/account/sessions/sess2":
			if r.Header.Get("X-Appwrite-Session") != "sekret" {
				t.Errorf("session revocation must send the session header")
			}
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/account":
			writeJSON(w, http.StatusConflict, `{"message":"A user with the same id, email, or phone already exists in this project.","code":409,"type":"user_already_exists"}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	ctx := context.Background()
	accounts := mustClient(t, b, backend.Admin()).Accounts
	session, err := accounts.CreateEmailPasswordSession(ctx, "a@example.com", "password1")
	if err != nil {
		t.Fatalf("CreateEmailPasswordSession failed: %v", err)
	}
	if session.ID != "sess1" || session.UserID != "u1" || session.Secret != "sekret" || session.Expire.Year() != 2025 {
		t.Fatalf("unexpected session: %+v", session)
	}
	if err := accounts.DeleteSession(ctx, "u1", "sess1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if err := mustClient(t, b, backend.Session("sekret")).Accounts.DeleteSession(ctx, "u1", "sess2"); err != nil {
		t.Fatalf("DeleteSession with session credentials failed: %v", err)
	}
	if _, err := accounts.CreateAccount(ctx, "", "a@example.com", "password1", "A"); !backend.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestPingChecksDatabase(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/databases/todo_apps" || r.Header.Get("X-Appwrite-Key") != "api-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, `{"$id":"todo_apps","name":"Todos","enabled":true}`)
	})
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func backendIdentity() model.Identity {
	return model.Identity{ID: "u1", Email: "a@example.com", Name: "A"}
}
