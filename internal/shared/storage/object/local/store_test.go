package local

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

func TestSaveOpenDeleteRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	payload := []byte("%PDF-1.4 test document body")
	size, mime, err := store.Save(ctx, "financial_document_job1.pdf", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if size != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), size)
	}
	if mime == "" {
		t.Fatalf("expected detected mime type")
	}

	rc, err := store.Open(ctx, "financial_document_job1.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected stored bytes to round-trip")
	}

	if err := store.Delete(ctx, "financial_document_job1.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Open(ctx, "financial_document_job1.pdf"); err == nil {
		t.Fatalf("expected open after delete to fail")
	}

	// Deleting again must not error.
	if err := store.Delete(ctx, "financial_document_job1.pdf"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"../escape.pdf", "/abs/path.pdf", "."} {
		if _, _, err := store.Save(ctx, key, strings.NewReader("x")); err == nil {
			t.Fatalf("expected Save to reject key %q", key)
		}
		if _, err := store.Open(ctx, key); err == nil {
			t.Fatalf("expected Open to reject key %q", key)
		}
	}
}
