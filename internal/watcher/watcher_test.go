package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// waitFor polls until an event for a path with the given base name and op arrives.
func (r *recorder) waitFor(t *testing.T, base string, op Op) Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range r.snapshot() {
			if filepath.Base(ev.Path) == base && ev.Op == op {
				return ev
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no %s event for %s, got %+v", op, base, r.snapshot())
	return Event{}
}

func startWatcher(t *testing.T, rec *recorder, opts ...Option) *Watcher {
	t.Helper()
	opts = append([]Option{WithDebounce(50 * time.Millisecond)}, opts...)
	w := New(rec.handle, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestWatcher_AddLibraryCreatesInbox(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "notes")
	w := startWatcher(t, &recorder{})

	if err := w.AddLibrary(lib, false); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(InboxDir(lib)); err != nil {
		t.Fatalf("inbox should exist: %v", err)
	}
	if got := w.Libraries(); len(got) != 1 || got[0] != lib {
		t.Errorf("Libraries() = %v", got)
	}
	if err := w.AddLibrary(lib, false); err != nil {
		t.Fatalf("adding twice: %v", err)
	}
	if err := w.RemoveLibrary(lib); err != nil {
		t.Fatal(err)
	}
	if got := w.Libraries(); len(got) != 0 {
		t.Errorf("after remove: %v", got)
	}
}

func TestWatcher_ReportsChangeAndRemove(t *testing.T) {
	lib := t.TempDir()
	rec := &recorder{}
	w := startWatcher(t, rec, WithExtensions(".md", ".txt"))
	if err := w.AddLibrary(lib, false); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(InboxDir(lib), "todo.md")
	if err := os.WriteFile(path, []byte("# todo"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(InboxDir(lib), "skip.xyz"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	ev := rec.waitFor(t, "todo.md", Changed)
	if ev.Library != lib {
		t.Errorf("library = %q, want %q", ev.Library, lib)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, "todo.md", Removed)

	for _, ev := range rec.snapshot() {
		if filepath.Base(ev.Path) == "skip.xyz" {
			t.Errorf("unexpected event for filtered file: %+v", ev)
		}
	}
}

func TestWatcher_DebounceCoalescesWrites(t *testing.T) {
	lib := t.TempDir()
	rec := &recorder{}
	w := startWatcher(t, rec, WithDebounce(200*time.Millisecond))
	if err := w.AddLibrary(lib, false); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(InboxDir(lib), "log.txt")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec.waitFor(t, "log.txt", Changed)
	time.Sleep(300 * time.Millisecond)

	n := 0
	for _, ev := range rec.snapshot() {
		if filepath.Base(ev.Path) == "log.txt" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("got %d events for rapid writes, want 1", n)
	}
}

func TestWatcher_SyncExisting(t *testing.T) {
	lib := t.TempDir()
	if err := os.MkdirAll(InboxDir(lib), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(InboxDir(lib), "a.txt"), []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(InboxDir(lib), ".hidden.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := startWatcher(t, rec, WithExtensions(".txt"))
	if err := w.AddLibrary(lib, true); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, "a.txt", Changed)
	for _, ev := range rec.snapshot() {
		if filepath.Base(ev.Path) == ".hidden.txt" {
			t.Error("hidden files should be ignored")
		}
	}
}

func TestWatcher_NewFolderRecursive(t *testing.T) {
	lib := t.TempDir()
	rec := &recorder{}
	w := startWatcher(t, rec, WithRecursive(true))
	if err := w.AddLibrary(lib, false); err != nil {
		t.Fatal(err)
	}

	nested := filepath.Join(InboxDir(lib), "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new folders.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(nested, "deep.txt"), []byte("deep"), 0600); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, "deep.txt", Changed)
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/.b.txt", nil, false},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
