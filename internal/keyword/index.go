// Package keyword provides full-text search over document titles and bodies,
// scoped to one library at a time.
package keyword

import (
	"context"

	"github.com/hyperjump/quire/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score of title matches. Values <= 1 disable it.
	TitleBoost float64
	// FuzzyEnabled matches terms within Fuzziness edits for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance (1 or 2). Default is 1.
	Fuzziness int
}

// Index defines keyword indexing and search operations.
type Index interface {
	Index(ctx context.Context, doc models.Document) error
	Delete(ctx context.Context, library string, id int64) error
	Search(ctx context.Context, library, query string, limit int, opts *SearchOptions) ([]models.SearchHit, error)
	// Suggest returns a corrected query when some terms are unknown to the index.
	Suggest(ctx context.Context, query string) (string, bool)
	DocCount() (uint64, error)
	Close() error
}
