package keyword

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/quire/internal/models"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "bleve"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func mustIndex(t *testing.T, idx *BleveIndex, docs ...models.Document) {
	t.Helper()
	if err := idx.IndexBatch(context.Background(), docs); err != nil {
		t.Fatalf("IndexBatch: %v", err)
	}
}

func hitIDs(hits []models.SearchHit) []int64 {
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}

func TestBleveIndex_SearchIsScopedToLibrary(t *testing.T) {
	idx := newTestIndex(t)
	mustIndex(t, idx,
		models.Document{ID: 1, Library: "/srv/notes", Title: "Monthly report", Content: "<p>mentions Omnisyan findings</p>"},
		models.Document{ID: 2, Library: "/srv/work", Title: "Other", Content: "<p>Omnisyan again</p>"},
	)
	ctx := context.Background()

	hits, err := idx.Search(ctx, "/srv/notes", "Omnisyan", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != 1 || hits[0].Title != "Monthly report" {
		t.Fatalf("hits = %+v", hits)
	}

	hits, _ = idx.Search(ctx, "/srv/work", "omnisyan", 10, nil)
	if len(hits) != 1 || hits[0].ID != 2 {
		t.Errorf("work hits = %+v", hits)
	}
	hits, _ = idx.Search(ctx, "/srv/none", "omnisyan", 10, nil)
	if len(hits) != 0 {
		t.Errorf("unknown library hits = %+v", hits)
	}
}

func TestBleveIndex_IndexesPlainText(t *testing.T) {
	idx := newTestIndex(t)
	mustIndex(t, idx, models.Document{ID: 7, Library: "lib", Title: "Stats", Content: "<p>The <b>Bayes</b> app is referenced.</p>"})

	hits, err := idx.Search(context.Background(), "lib", "bayes", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %+v", hits)
	}
	if strings.Contains(hits[0].Snippet, "<b>") || !strings.Contains(hits[0].Snippet, "Bayes app") {
		t.Errorf("snippet = %q", hits[0].Snippet)
	}
	if hits, _ := idx.Search(context.Background(), "lib", "b", 10, nil); len(hits) != 0 {
		t.Errorf("markup should not be indexed, got %+v", hits)
	}
}

func TestBleveIndex_TitleBoost(t *testing.T) {
	idx := newTestIndex(t)
	mustIndex(t, idx,
		models.Document{ID: 1, Library: "lib", Title: "Groceries", Content: "<p>budget notes about the budget for the budget meeting</p>"},
		models.Document{ID: 2, Library: "lib", Title: "Budget", Content: "<p>numbers</p>"},
	)
	hits, err := idx.Search(context.Background(), "lib", "budget", 10, &SearchOptions{TitleBoost: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].ID != 2 {
		t.Errorf("order = %v, want title match first", hitIDs(hits))
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newTestIndex(t)
	mustIndex(t, idx, models.Document{ID: 3, Library: "lib", Title: "Cluster", Content: "<p>kubernetes rollout</p>"})
	ctx := context.Background()

	if hits, _ := idx.Search(ctx, "lib", "kubernetis", 10, nil); len(hits) != 0 {
		t.Errorf("exact search matched a typo: %+v", hits)
	}
	hits, err := idx.Search(ctx, "lib", "kubernetis", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != 3 {
		t.Errorf("fuzzy hits = %+v", hits)
	}
}

func TestBleveIndex_DeleteAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	mustIndex(t, idx,
		models.Document{ID: 1, Library: "lib", Title: "Keep", Content: "uniqueword"},
		models.Document{ID: 2, Library: "lib", Title: "Drop", Content: "onlyindoc2"},
	)
	if err := idx.Delete(ctx, "lib", 2); err != nil {
		t.Fatal(err)
	}
	if hits, _ := idx.Search(ctx, "lib", "onlyindoc2", 10, nil); len(hits) != 0 {
		t.Errorf("expected 0 results after delete, got %d", len(hits))
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("index path should exist: %v", err)
	}

	reopened, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	hits, _ := reopened.Search(ctx, "lib", "uniqueword", 10, nil)
	if len(hits) != 1 {
		t.Errorf("reopened index lost documents: %+v", hits)
	}
	if n, _ := reopened.DocCount(); n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}
}

func TestBleveIndex_Suggest(t *testing.T) {
	idx := newTestIndex(t)
	mustIndex(t, idx, models.Document{ID: 1, Library: "lib", Title: "Deploy", Content: "<p>kubernetes rollout</p>"})

	got, ok := idx.Suggest(context.Background(), "kubernetis rollout")
	if !ok || got != "kubernetes rollout" {
		t.Errorf("Suggest = %q, %v", got, ok)
	}
	if _, ok := idx.Suggest(context.Background(), "rollout"); ok {
		t.Error("known terms need no suggestion")
	}
}

func TestDocKey(t *testing.T) {
	lib, id, err := ParseDocKey(DocKey("/srv/a#b", 42))
	if err != nil || lib != "/srv/a#b" || id != 42 {
		t.Errorf("ParseDocKey = %q, %d, %v", lib, id, err)
	}
	for _, bad := range []string{"nohash", "lib#x"} {
		if _, _, err := ParseDocKey(bad); err == nil {
			t.Errorf("ParseDocKey(%q) should fail", bad)
		}
	}
}

func TestEmptyQuery(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), "lib", "   ", 10, nil)
	if err != nil || len(hits) != 0 {
		t.Errorf("hits = %v, err = %v", hits, err)
	}
}
