package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/quire/internal/domain"
	"github.com/hyperjump/quire/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestListLibraries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/library/list" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"libraries":[{"name":"notes","path":"/srv/notes"},{"name":"work","path":"/srv/work"}]}`)
	})
	libs, err := c.ListLibraries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(libs) != 2 || libs[0].ID() != "/srv/notes" || libs[1].Name != "work" {
		t.Errorf("libraries = %+v", libs)
	}
}

func TestGetTreeAndDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("library") != "/srv/my notes" {
			t.Errorf("library = %q", r.URL.Query().Get("library"))
		}
		switch r.URL.Path {
		case "/api/document/tree":
			_, _ = io.WriteString(w, `[{"id":1,"title":"A","content":"","parent_id":null},{"id":2,"title":"B","content":"","parent_id":1}]`)
		case "/api/document":
			if r.URL.Query().Get("id") != "2" {
				t.Errorf("id = %q", r.URL.Query().Get("id"))
			}
			_, _ = io.WriteString(w, `{"id":2,"title":"B","content":"<p>full</p>","parent_id":1}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()
	docs, err := c.GetTree(ctx, "/srv/my notes")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[1].ParentID == nil || *docs[1].ParentID != 1 {
		t.Errorf("tree = %+v", docs)
	}
	d, err := c.GetDocument(ctx, "/srv/my notes", 2)
	if err != nil {
		t.Fatal(err)
	}
	if d.Content != "<p>full</p>" {
		t.Errorf("content = %q", d.Content)
	}
}

func TestCreateDocument_SendsNullParent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/document/create" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if v, ok := body["parent_id"]; !ok || v != nil {
			t.Errorf("parent_id should be explicit null, body = %v", body)
		}
		_, _ = io.WriteString(w, `{"id":17}`)
	})
	id, err := c.CreateDocument(context.Background(), "notes", models.CreateDocumentRequest{Title: "New Document"})
	if err != nil {
		t.Fatal(err)
	}
	if id != 17 {
		t.Errorf("id = %d, want 17", id)
	}
}

func TestUpdateDocument_EmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	d, err := c.UpdateDocument(context.Background(), "notes", models.UpdateDocumentRequest{ID: 1, Content: models.String("x")})
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Errorf("expected nil document for empty body, got %+v", d)
	}
}

func TestUpdateParent(t *testing.T) {
	var got models.UpdateParentRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/document/update-parent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	if err := c.UpdateParent(context.Background(), "notes", 3, models.Int64(1)); err != nil {
		t.Fatal(err)
	}
	if got.ID != 3 || got.ParentID == nil || *got.ParentID != 1 {
		t.Errorf("request = %+v", got)
	}
}

func TestUploadImage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload/9" {
			t.Errorf("path = %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if hdr.Filename != "cat.png" || string(b) != "PNGDATA" {
			t.Errorf("upload = %s %q", hdr.Filename, b)
		}
		_, _ = io.WriteString(w, `{"filename":"abc.png"}`)
	})
	res, err := c.UploadImage(context.Background(), "notes", 9, "cat.png", strings.NewReader("PNGDATA"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Filename != "abc.png" {
		t.Errorf("filename = %q", res.Filename)
	}
}

func TestErrorConvention(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
		is      error
	}{
		{"json error body", http.StatusConflict, `{"error":"library already exists"}`, "library already exists", domain.ErrConflict},
		{"html body", http.StatusBadGateway, `<html>bad gateway</html>`, "fetch libraries failed: 502 Bad Gateway", nil},
		{"json without error", http.StatusInternalServerError, `{"detail":"x"}`, "fetch libraries failed: 500 Internal Server Error", nil},
		{"empty body", http.StatusNotFound, ``, "fetch libraries failed: 404 Not Found", domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.ListLibraries(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Message != tt.wantMsg || apiErr.Status != tt.status {
				t.Errorf("APIError = %+v, want message %q", apiErr, tt.wantMsg)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("errors.Is(err, %v) = false", tt.is)
			}
		})
	}
}

func TestMalformedSuccessBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"libraries":`)
	})
	_, err := c.ListLibraries(context.Background())
	if err == nil || !strings.HasPrefix(err.Error(), "fetch libraries failed: decode response") {
		t.Errorf("err = %v", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Error("malformed success body is not an API error")
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()
	_, err := New(url).GetTree(context.Background(), "notes")
	if err == nil || !strings.HasPrefix(err.Error(), "fetch document tree failed:") {
		t.Errorf("err = %v", err)
	}
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetTree(ctx, "notes"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
