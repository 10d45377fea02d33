package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/quire/internal/domain"
)

func TestDiskImages_PutGet(t *testing.T) {
	lib := t.TempDir()
	ctx := context.Background()
	var store DiskImages

	name := NewImageName("Photo.PNG")
	if !strings.HasSuffix(name, ".png") || len(name) != 36+4 {
		t.Fatalf("NewImageName = %q", name)
	}
	if err := store.Put(ctx, lib, name, strings.NewReader("PNGDATA")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(lib, "images", name)); err != nil {
		t.Fatalf("image not written under images/: %v", err)
	}

	rc, err := store.Get(ctx, lib, name)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "PNGDATA" {
		t.Errorf("read %q", b)
	}

	entries, _ := os.ReadDir(filepath.Join(lib, "images"))
	if len(entries) != 1 {
		t.Errorf("expected only the stored image, got %d entries", len(entries))
	}
}

func TestDiskImages_Errors(t *testing.T) {
	lib := t.TempDir()
	ctx := context.Background()
	var store DiskImages

	if _, err := store.Get(ctx, lib, "missing.png"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing image err = %v", err)
	}
	for _, bad := range []string{"", "../escape.png", "a/b.png", ".hidden"} {
		if err := store.Put(ctx, lib, bad, strings.NewReader("x")); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Put(%q) err = %v, want validation", bad, err)
		}
	}
}

func TestObjectName(t *testing.T) {
	if got := ObjectName("/srv/My Notes", "abc.png"); got != "libraries/srv-my-notes/abc.png" {
		t.Errorf("ObjectName = %q", got)
	}
}
