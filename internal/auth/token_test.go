package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

type testPayload struct {
	UserID string `json:"userId"`
	Handle string `json:"handle"`
}

func TestSealOpenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Seal(secret, testPayload{UserID: "user-1", Handle: "sess-1"}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if strings.Contains(token, "sess-1") {
		t.Fatalf("sealed token leaks payload: %s", token)
	}

	var got testPayload
	if err := Open(secret, token, &got); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got.UserID != "user-1" || got.Handle != "sess-1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestOpenRejectsWrongSecretAndTampering(t *testing.T) {
	token, err := Seal([]byte("secret-a"), testPayload{UserID: "u"}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	var got testPayload
	if err := Open([]byte("secret-b"), token, &got); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	raw[len(raw)-1] ^= 0xff
	tampered := base64.RawURLEncoding.EncodeToString(raw)
	if err := Open([]byte("secret-a"), tampered, &got); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for tampered token, got %v", err)
	}
	if err := Open([]byte("secret-a"), "not base64!", &got); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestOpenRejectsExpiredToken(t *testing.T) {
	token, err := Seal([]byte("s"), testPayload{UserID: "u"}, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	var got testPayload
	if err := Open([]byte("s"), token, &got); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatalf("expected deterministic hash")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatalf("expected distinct hashes")
	}
}
