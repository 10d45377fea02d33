// Package importer turns files dropped into a library inbox into root
// documents and keeps the keyword index in step with storage.
package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/quire/internal/domain"
	"github.com/hyperjump/quire/internal/extract"
	"github.com/hyperjump/quire/internal/keyword"
	"github.com/hyperjump/quire/internal/models"
	"github.com/hyperjump/quire/internal/richtext"
	"github.com/hyperjump/quire/internal/storage"
	"github.com/hyperjump/quire/internal/watcher"
	"github.com/hyperjump/quire/pkg/utils"
)

// Importer imports inbox files into storage and the keyword index.
type Importer struct {
	store     storage.Storage
	index     keyword.Index
	extractor *extract.Extractor
	logger    *zap.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(im *Importer) { im.logger = utils.OrNop(l) }
}

// New creates an importer. index may be nil when search is disabled.
func New(store storage.Storage, index keyword.Index, extractor *extract.Extractor, opts ...Option) *Importer {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	im := &Importer{
		store:     store,
		index:     index,
		extractor: extractor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportFile extracts path and upserts the root document linked to it.
// Importing the same file again updates that document in place.
func (im *Importer) ImportFile(ctx context.Context, library, path string) (*models.Document, bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if !im.extractor.Supported(ext) {
		return nil, false, domain.Invalid("unsupported file type %q", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, false, domain.Invalid("not a regular file: %s", absPath)
	}
	content, err := im.extractor.Extract(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("extract content: %w", err)
	}

	doc := &models.Document{
		Library:    library,
		Title:      Title(absPath),
		Content:    richtext.Sanitize(content),
		SourcePath: &absPath,
	}
	created, err := im.store.UpsertImported(ctx, doc)
	if err != nil {
		return nil, false, fmt.Errorf("store imported document: %w", err)
	}
	im.Index(ctx, *doc)
	im.logger.Info("file imported",
		zap.String("library", library),
		zap.String("path", absPath),
		zap.Int64("id", doc.ID),
		zap.Bool("created", created))
	return doc, created, nil
}

// Title is the document title for an imported file. Underscores read as
// spaces so "q3_board_notes.md" is searchable as "board notes".
func Title(path string) string {
	return strings.TrimSpace(strings.ReplaceAll(extract.Title(path), "_", " "))
}

// Forget unlinks documents imported from path after the file is removed.
func (im *Importer) Forget(ctx context.Context, library, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := im.store.ClearSource(ctx, library, absPath); err != nil {
		return fmt.Errorf("clear source: %w", err)
	}
	im.logger.Debug("import source removed", zap.String("library", library), zap.String("path", absPath))
	return nil
}

// Handle applies one watcher event. Failures are logged since the watcher
// has nobody to return them to.
func (im *Importer) Handle(ctx context.Context, ev watcher.Event) {
	var err error
	switch ev.Op {
	case watcher.Changed:
		_, _, err = im.ImportFile(ctx, ev.Library, ev.Path)
	case watcher.Removed:
		err = im.Forget(ctx, ev.Library, ev.Path)
	}
	if err != nil {
		im.logger.Warn("inbox event failed",
			zap.String("op", ev.Op.String()),
			zap.String("path", ev.Path),
			zap.Error(err))
	}
}

// Index writes doc to the keyword index. Index failures only degrade search,
// so they are logged and not returned.
func (im *Importer) Index(ctx context.Context, doc models.Document) {
	if im.index == nil {
		return
	}
	if err := im.index.Index(ctx, doc); err != nil {
		im.logger.Warn("keyword index failed", zap.Int64("id", doc.ID), zap.Error(err))
	}
}

// Reindex rebuilds the keyword index entries of every document in every library.
// It returns the number of documents indexed.
func (im *Importer) Reindex(ctx context.Context) (int, error) {
	if im.index == nil {
		return 0, nil
	}
	libs, err := im.store.ListLibraries(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, lib := range libs {
		docs, err := im.store.ListDocuments(ctx, lib.Path, true)
		if err != nil {
			return n, fmt.Errorf("list documents of %s: %w", lib.Name, err)
		}
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			if err := im.index.Index(ctx, doc); err != nil {
				return n, fmt.Errorf("index document %d: %w", doc.ID, err)
			}
			n++
		}
	}
	im.logger.Info("keyword index rebuilt", zap.Int("libraries", len(libs)), zap.Int("documents", n))
	return n, nil
}
