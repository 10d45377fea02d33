// Package storage defines the persistence interface for libraries, documents and images.
package storage

import (
	"context"

	"github.com/hyperjump/quire/internal/models"
)

// Storage defines library and document persistence operations.
// Document ids are unique across libraries; every document call is scoped by
// library path so an id from another library reads as not found.
type Storage interface {
	// Library operations
	ListLibraries(ctx context.Context) ([]models.Library, error)
	CreateLibrary(ctx context.Context, lib models.Library) error
	// GetLibrary matches key against library paths first, then names.
	GetLibrary(ctx context.Context, key string) (*models.Library, error)

	// Document operations
	ListDocuments(ctx context.Context, library string, withContent bool) ([]models.Document, error)
	GetDocument(ctx context.Context, library string, id int64) (*models.Document, error)
	CreateDocument(ctx context.Context, doc *models.Document) error
	UpdateDocument(ctx context.Context, library string, id int64, title, content *string) (*models.Document, error)
	UpdateParent(ctx context.Context, library string, id int64, parentID *int64) error

	// Import operations
	UpsertImported(ctx context.Context, doc *models.Document) (created bool, err error)
	ClearSource(ctx context.Context, library, sourcePath string) error

	// Stats
	CountDocuments(ctx context.Context) (int64, error)

	Close() error
}
