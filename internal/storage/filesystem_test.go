package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"imagechain/internal/domain"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	key, err := store.Write(ctx, "/sessions/abc/../abc/0.png", []byte("first"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "sessions/abc/0.png" {
		t.Fatalf("key = %q", key)
	}
	if _, err := store.Write(ctx, key, []byte("second")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("second")) {
		t.Fatalf("Read = %q", got)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := store.Read(ctx, key); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Read after delete err = %v", err)
	}
}

func TestSanitizeKeyRejectsEscapes(t *testing.T) {
	for _, key := range []string{"", "  ", ".", "..", "../etc/passwd", "a/../../b"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("sanitizeKey(%q) accepted", key)
		}
	}
	got, err := sanitizeKey(`a\b\c.png`)
	if err != nil || got != "a/b/c.png" {
		t.Fatalf("sanitizeKey = %q, %v", got, err)
	}
}

func TestFileStoreHonoursCancelledContext(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Write(ctx, "x.png", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Write err = %v", err)
	}
}
