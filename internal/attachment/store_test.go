package attachment

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"palaver/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store, err := New(t.TempDir(), "/uploads", logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return store
}

func TestStoreAndResolve(t *testing.T) {
	store := newTestStore(t)

	data := []byte("fake png bytes")
	ref, err := store.Store(data, "photo.PNG")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if !strings.HasPrefix(ref.URL, "/uploads/upload_") {
		t.Errorf("unexpected URL: %s", ref.URL)
	}
	if !strings.HasSuffix(ref.URL, ".png") {
		t.Errorf("extension not normalized: %s", ref.URL)
	}

	got, err := store.Resolve(ref.URL)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("resolved bytes differ from stored bytes")
	}
}

func TestResolveMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Resolve("/uploads/upload_0_deadbeef.png")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveIgnoresDirectoryTraversal(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Resolve("/uploads/../../etc/passwd"); err == nil {
		t.Errorf("expected traversal reference to fail")
	}
}

func TestStoreRejectsUnsupportedExtension(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Store([]byte("payload"), "script.sh")
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestStoreRejectsEmptyData(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Store(nil, "photo.png")
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestStoredNamesAreUnique(t *testing.T) {
	store := newTestStore(t)

	a, err := store.Store([]byte("one"), "same.png")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	b, err := store.Store([]byte("two"), "same.png")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if a.URL == b.URL {
		t.Errorf("two uploads collided on %s", a.URL)
	}
}
