// Package server provides the HTTP API for quire libraries and documents.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/quire/internal/config"
	"github.com/hyperjump/quire/internal/importer"
	"github.com/hyperjump/quire/internal/keyword"
	"github.com/hyperjump/quire/internal/richtext"
	"github.com/hyperjump/quire/internal/storage"
	"github.com/hyperjump/quire/pkg/utils"
)

// WatchService adds and removes library inboxes at runtime.
type WatchService interface {
	AddLibrary(library string, syncExisting bool) error
	Libraries() []string
}

// Server is the HTTP server for the quire API.
type Server struct {
	storage   storage.Storage
	images    storage.ImageStore
	index     keyword.Index
	importer  *importer.Importer
	watch     WatchService
	config    *config.Config
	sanitizer *richtext.Sanitizer
	logger    *zap.Logger
	server    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithWatch registers new libraries with w so their inbox is imported.
func WithWatch(w WatchService) Option {
	return func(s *Server) { s.watch = w }
}

// NewServer creates a server with the given dependencies. index may be nil,
// in which case search answers 501.
func NewServer(
	store storage.Storage,
	images storage.ImageStore,
	index keyword.Index,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	logger = utils.OrNop(logger)
	s := &Server{
		storage:   store,
		images:    images,
		index:     index,
		importer:  importer.New(store, index, nil, importer.WithLogger(logger)),
		config:    cfg,
		sanitizer: richtext.NewSanitizer(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API with its middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	}
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/library/list", s.handleLibraryList)
		r.Post("/library/create", s.handleLibraryCreate)

		r.Get("/document/tree", s.handleTree)
		r.Get("/document", s.handleGetDocument)
		r.Post("/document/create", s.handleCreateDocument)
		r.Post("/document/update", s.handleUpdateDocument)
		r.Post("/document/update-parent", s.handleUpdateParent)
		r.Get("/document/search", s.handleSearch)

		r.Post("/upload/{id}", s.handleUpload)
		r.Get("/images/{library}/{filename}", s.handleImage)

		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)

	if len(s.config.Server.AllowedOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.config.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
	}).Handler(r)
}

// requestLogger logs each request at debug level through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
