package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"tasktree/api/internal/backend"
)

func mustClient(t *testing.T, b *Backend, creds backend.Credentials) *backend.Client {
	t.Helper()
	client, err := b.Client(creds)
	if err != nil {
		t.Fatalf("Client(%s) failed: %v", creds.Kind(), err)
	}
	return client
}

func login(t *testing.T, b *Backend, email, password, name string) (backend.Account, backend.AccountSession) {
	t.Helper()
	ctx := context.Background()
	admin := mustClient(t, b, backend.Admin())
	acct, err := admin.Accounts.CreateAccount(ctx, "", email, password, name)
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	session, err := admin.Accounts.CreateEmailPasswordSession(ctx, email, password)
	if err != nil {
		t.Fatalf("CreateEmailPasswordSession failed: %v", err)
	}
	return acct, session
}

func TestAccountsLifecycle(t *testing.T) {
	b := New()
	ctx := context.Background()
	acct, session := login(t, b, "A@Example.com", "password1", "A")

	admin := mustClient(t, b, backend.Admin())
	if _, err := admin.Accounts.CreateAccount(ctx, "", "a@example.com", "password2", "Dup"); !backend.IsConflict(err) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
	if _, err := admin.Accounts.CreateEmailPasswordSession(ctx, "a@example.com", "wrong-pass"); !backend.IsUnauthorized(err) {
		t.Fatalf("expected 401 for bad password, got %v", err)
	}

	user := mustClient(t, b, backend.Session(session.Secret))
	got, err := user.Accounts.GetAccount(ctx)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if got.ID != acct.ID || got.Email != "a@example.com" {
		t.Fatalf("unexpected account: %+v", got)
	}

	if err := admin.Accounts.DeleteSession(ctx, acct.ID, session.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if err := admin.Accounts.DeleteSession(ctx, acct.ID, session.ID); !backend.IsNotFound(err) {
		t.Fatalf("expected 404 for deleted session, got %v", err)
	}
	revoked := mustClient(t, b, backend.Session(session.Secret))
	if _, err := revoked.Accounts.GetAccount(ctx); !backend.IsUnauthorized(err) {
		t.Fatalf("expected 401 after revocation, got %v", err)
	}
}

func TestSessionScopedDocuments(t *testing.T) {
	b := New()
	ctx := context.Background()
	alice, aliceSession := login(t, b, "alice@example.com", "password1", "Alice")
	_, bobSession := login(t, b, "bob@example.com", "password1", "Bob")

	aliceClient := mustClient(t, b, backend.Session(aliceSession.Secret))
	doc, err := aliceClient.Documents.CreateDocument(ctx, "db", "todos", "", map[string]any{"text": "a", "createdBy": alice.ID, "children": []string{"x"}}, backend.OwnerPermissions(alice.ID))
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if _, ok := doc.Data["children"].([]any); !ok {
		t.Fatalf("expected normalized list data, got %T", doc.Data["children"])
	}

	bobClient := mustClient(t, b, backend.Session(bobSession.Secret))
	if _, err := bobClient.Documents.GetDocument(ctx, "db", "todos", doc.ID); !backend.IsNotFound(err) {
		t.Fatalf("expected hidden document for other user, got %v", err)
	}
	listed, err := bobClient.Documents.ListDocuments(ctx, "db", "todos")
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected no visible documents for bob, got %d", len(listed))
	}

	updated, err := aliceClient.Documents.UpdateDocument(ctx, "db", "todos", doc.ID, map[string]any{"completed": true})
	if err != nil {
		t.Fatalf("UpdateDocument failed: %v", err)
	}
	if updated.Data["text"] != "a" || updated.Data["completed"] != true {
		t.Fatalf("expected merged data, got %v", updated.Data)
	}

	admin := mustClient(t, b, backend.Admin())
	filtered, err := admin.Documents.ListDocuments(ctx, "db", "todos", backend.Equal("createdBy", alice.ID))
	if err != nil || len(filtered) != 1 {
		t.Fatalf("expected 1 document for alice, got %d (%v)", len(filtered), err)
	}

	if err := aliceClient.Documents.DeleteDocument(ctx, "db", "todos", doc.ID); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if _, ok := b.Document("db", "todos", doc.ID); ok {
		t.Fatal("expected document removed")
	}
}

func TestStoragePermissionsAndInjection(t *testing.T) {
	b := New()
	ctx := context.Background()
	alice, aliceSession := login(t, b, "alice@example.com", "password1", "Alice")
	_, bobSession := login(t, b, "bob@example.com", "password1", "Bob")

	aliceClient := mustClient(t, b, backend.Session(aliceSession.Secret))
	file, err := aliceClient.Storage.CreateFile(ctx, "files", backend.FileInput{
		ID:          "f1",
		Name:        "t1_f1_notes.txt",
		MimeType:    "text/plain",
		Body:        bytes.NewBufferString("hello"),
		Permissions: []string{backend.Read(backend.UserRole(alice.ID)), backend.Delete(backend.UserRole(alice.ID))},
	})
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if file.Size != 5 {
		t.Fatalf("expected size 5, got %d", file.Size)
	}

	blob, err := aliceClient.Storage.GetFileDownload(ctx, "files", "f1")
	if err != nil {
		t.Fatalf("GetFileDownload failed: %v", err)
	}
	data, _ := io.ReadAll(blob.Body)
	blob.Body.Close()
	if string(data) != "hello" {
		t.Fatalf("unexpected blob %q", data)
	}

	bobClient := mustClient(t, b, backend.Session(bobSession.Secret))
	if _, err := bobClient.Storage.GetFileDownload(ctx, "files", "f1"); !backend.IsNotFound(err) {
		t.Fatalf("expected 404 for other user, got %v", err)
	}

	injected := backend.NewError(http.StatusInternalServerError, "general_server_error", "boom")
	b.DeleteFileErr = injected
	if err := aliceClient.Storage.DeleteFile(ctx, "files", "f1"); !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	b.DeleteFileErr = nil
	if err := aliceClient.Storage.DeleteFile(ctx, "files", "f1"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
	if b.HasFile("files", "f1") {
		t.Fatal("expected blob removed")
	}
	if b.Calls("DeleteFile") != 2 {
		t.Fatalf("expected 2 DeleteFile calls, got %d", b.Calls("DeleteFile"))
	}
}

func TestClientRequiresCredentials(t *testing.T) {
	if _, err := New().Client(backend.Credentials{}); err == nil {
		t.Fatal("expected error for empty credentials")
	}
}
