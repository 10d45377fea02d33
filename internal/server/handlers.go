package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/quire/internal/domain"
	"github.com/hyperjump/quire/internal/keyword"
	"github.com/hyperjump/quire/internal/models"
	"github.com/hyperjump/quire/internal/storage"
	"github.com/hyperjump/quire/internal/watcher"
)

func (s *Server) handleLibraryList(w http.ResponseWriter, r *http.Request) {
	libs, err := s.storage.ListLibraries(r.Context())
	if err != nil {
		s.fail(w, r, "list libraries", err)
		return
	}
	if libs == nil {
		libs = []models.Library{}
	}
	s.respondJSON(w, http.StatusOK, models.LibraryListResponse{Libraries: libs})
}

func (s *Server) handleLibraryCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLibraryRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validateCreateLibrary(&req); err != nil {
		s.fail(w, r, "create library", err)
		return
	}
	lib := models.Library{Name: req.Name, Path: s.libraryPath(req.BasePath, req.Name)}
	s.logger.Debug("create library request", zap.String("name", lib.Name), zap.String("path", lib.Path))

	for _, dir := range []string{lib.Path, watcher.InboxDir(lib.Path), storage.ImagesDir(lib.Path)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			s.fail(w, r, "create library", err)
			return
		}
	}
	if err := s.storage.CreateLibrary(r.Context(), lib); err != nil {
		s.fail(w, r, "create library", err)
		return
	}
	if s.watch != nil {
		if err := s.watch.AddLibrary(lib.Path, true); err != nil {
			s.logger.Warn("failed to watch library inbox", zap.String("library", lib.Path), zap.Error(err))
		}
	}
	s.logger.Info("library created", zap.String("name", lib.Name), zap.String("path", lib.Path))
	s.respondJSON(w, http.StatusCreated, lib)
}

// libraryPath places a library folder named name under base. A relative or
// empty base is taken from the configured libraries root.
func (s *Server) libraryPath(base, name string) string {
	base = strings.TrimSpace(base)
	if !filepath.IsAbs(base) {
		base = filepath.Join(s.config.Storage.LibrariesRoot, base)
	}
	return filepath.Join(base, name)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	lib, ok := s.library(w, r)
	if !ok {
		return
	}
	docs, err := s.storage.ListDocuments(r.Context(), lib.Path, false)
	if err != nil {
		s.fail(w, r, "list documents", err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	s.respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	lib, ok := s.library(w, r)
	if !ok {
		return
	}
	id, err := parseID(r.URL.Query().Get("id"))
	if err != nil {
		s.fail(w, r, "get document", err)
		return
	}
	doc, err := s.storage.GetDocument(r.Context(), lib.Path, id)
	if err != nil {
		s.fail(w, r, "get document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	lib, ok := s.library(w, r)
	if !ok {
		return
	}
	var req models.CreateDocumentRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := validateCreateDocument(&req); err != nil {
		s.fail(w, r, "create document", err)
		return
	}
	doc := &models.Document{
		Library:  lib.Path,
		Title:    req.Title,
		Content:  s.sanitizer.Sanitize(req.Content),
		ParentID: req.ParentID,
	}
	if err := s.storage.CreateDocument(r.Context(), doc); err != nil {
		s.fail(w, r, "create document", err)
		return
	}
	s.importer.Index(r.Context(), *doc)
	s.logger.Debug("document created", zap.String("library", lib.Path), zap.Int64("id", doc.ID))
	s.respondJSON(w, http.StatusCreated, models.CreateDocumentResponse{ID: doc.ID})
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	lib, ok := s.library(w, r)
	if !ok {
		return
	}
	var req models.UpdateDocumentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Title != nil {
		req.Title = models.String(strings.TrimSpace(*req.Title))
	}
	if err := validateUpdateDocument(&req); err != nil {
		s.fail(w, r, "update document", err)
		return
	}
	if req.Content != nil {
		req.Content = models.String(s.sanitizer.Sanitize(*req.Content))
	}
	doc, err := s.storage.UpdateDocument(r.Context(), lib.Path, req.ID, req.Title, req.Content)
	if err != nil {
		s.fail(w, r, "update document", err)
		return
	}
	s.importer.Index(r.Context(), *doc)
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateParent(w http.ResponseWriter, r *http.Request) {
	lib, ok := s.library(w, r)
	if !ok {
		return
	}
	var req models.UpdateParentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := validateUpdateParent(&req); err != nil {
		s.fail(w, r, "update document parent", err)
		return
	}
	if err := s.storage.UpdateParent(r.Context(), lib.Path, req.ID, req.ParentID); err != nil {
		s.fail(w, r, "update document parent", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "parent updated"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.respondError(w, http.StatusNotImplemented, "search not enabled")
		return
	}
	lib, ok := s.library(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	limit := s.config.Search.DefaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(w, r, "search documents", domain.Invalid("invalid limit %q", v))
			return
		}
		limit = min(n, s.config.Search.MaxLimit)
	}
	s.logger.Debug("search request", zap.String("library", lib.Path), zap.String("query", query), zap.Int("limit", limit))

	start := time.Now()
	hits, err := s.index.Search(r.Context(), lib.Path, query, limit, &keyword.SearchOptions{
		TitleBoost:   s.config.Search.TitleBoost,
		FuzzyEnabled: s.config.Search.Fuzzy,
		Fuzziness:    s.config.Search.Fuzziness,
	})
	if err != nil {
		s.fail(w, r, "search documents", err)
		return
	}
	resp := models.SearchResponse{Library: lib.Path, Query: query, Hits: hits}
	if query != "" {
		if suggestion, ok := s.index.Suggest(r.Context(), query); ok {
			resp.Suggestion = suggestion
		}
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	libs, err := s.storage.ListLibraries(ctx)
	if err != nil {
		s.fail(w, r, "status", err)
		return
	}
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.fail(w, r, "status", err)
		return
	}
	resp := models.StatusResponse{
		Libraries:     len(libs),
		Documents:     docCount,
		StorageDriver: s.config.Storage.Driver,
		ImagesBackend: s.config.Images.Backend,
	}
	if s.index != nil {
		if n, err := s.index.DocCount(); err == nil {
			resp.IndexedDocs = n
		}
	}
	if s.watch != nil {
		resp.Watched = s.watch.Libraries()
	}
	paths := append(storage.DatabaseFiles(s.config.Storage.DatabasePath), s.config.Storage.BleveIndexPath)
	if s.config.Storage.Driver != storage.DriverSQLite {
		paths = []string{s.config.Storage.BleveIndexPath}
	}
	if bytes, err := storage.DiskUsageBytes(paths...); err == nil {
		resp.DiskUsageBytes = bytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// library resolves the ?library= parameter, which may be a library path or name.
func (s *Server) library(w http.ResponseWriter, r *http.Request) (*models.Library, bool) {
	key := r.URL.Query().Get("library")
	if key == "" {
		s.respondError(w, http.StatusBadRequest, "library is required")
		return nil, false
	}
	lib, err := s.storage.GetLibrary(r.Context(), key)
	if err != nil {
		s.fail(w, r, "resolve library", err)
		return nil, false
	}
	return lib, true
}

func parseID(v string) (int64, error) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid("invalid document id %q", v)
	}
	return id, nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// fail maps err to its status. Unexpected errors are logged and their
// detail is kept out of the response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds "+strconv.FormatInt(maxErr.Limit, 10)+" bytes")
		return
	}
	status := domain.StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.String("path", r.URL.Path), zap.Error(err))
		s.respondError(w, status, op+" failed")
		return
	}
	s.logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
