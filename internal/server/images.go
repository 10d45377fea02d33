package server

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/quire/internal/domain"
	"github.com/hyperjump/quire/internal/models"
	"github.com/hyperjump/quire/internal/richtext"
	"github.com/hyperjump/quire/internal/storage"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// handleUpload stores the multipart "file" field as an image of the document.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	lib, ok := s.library(w, r)
	if !ok {
		return
	}
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "upload image", err)
		return
	}
	if _, err := s.storage.GetDocument(r.Context(), lib.Path, id); err != nil {
		s.fail(w, r, "upload image", err)
		return
	}

	if r.ContentLength > s.config.Server.MaxUploadBytes {
		s.fail(w, r, "upload image", &http.MaxBytesError{Limit: s.config.Server.MaxUploadBytes})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.fail(w, r, "upload image", err)
			return
		}
		s.fail(w, r, "upload image", domain.Invalid("file field is required"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !imageExtensions[ext] {
		s.fail(w, r, "upload image", domain.Invalid("unsupported image type %q", ext))
		return
	}
	head := make([]byte, 512)
	n, _ := io.ReadFull(file, head)
	head = head[:n]
	if !strings.HasPrefix(http.DetectContentType(head), "image/") {
		s.fail(w, r, "upload image", domain.Invalid("%s is not an image", header.Filename))
		return
	}

	name := storage.NewImageName(header.Filename)
	body := io.MultiReader(bytes.NewReader(head), file)
	if err := s.images.Put(r.Context(), lib.Path, name, body); err != nil {
		s.fail(w, r, "upload image", err)
		return
	}
	s.logger.Info("image uploaded",
		zap.String("library", lib.Path),
		zap.Int64("document", id),
		zap.String("filename", name),
		zap.Int64("size", header.Size))
	s.respondJSON(w, http.StatusCreated, models.UploadResponse{
		Filename: name,
		URL:      richtext.ImagePath(lib.Path, name),
	})
}

// handleImage serves an uploaded image, or redirects to a signed link when
// the image store supports them.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "library"))
	if err != nil {
		s.fail(w, r, "get image", domain.Invalid("invalid library"))
		return
	}
	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil {
		s.fail(w, r, "get image", domain.Invalid("invalid filename"))
		return
	}
	lib, err := s.storage.GetLibrary(r.Context(), key)
	if err != nil {
		s.fail(w, r, "get image", err)
		return
	}

	if signer, ok := s.images.(storage.SignedURLer); ok {
		u, err := signer.SignedURL(r.Context(), lib.Path, name, s.config.Images.SignedURLTTL)
		if err != nil {
			s.fail(w, r, "get image", err)
			return
		}
		http.Redirect(w, r, u.String(), http.StatusFound)
		return
	}

	rc, err := s.images.Get(r.Context(), lib.Path, name)
	if err != nil {
		s.fail(w, r, "get image", err)
		return
	}
	defer rc.Close()
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Debug("image copy interrupted", zap.String("filename", name), zap.Error(err))
	}
}
