package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/quire/internal/models"
	"github.com/hyperjump/quire/internal/richtext"
)

const snippetWidth = 160

// indexedDoc is what bleve stores per document. Content is plain text.
type indexedDoc struct {
	Library string `json:"library"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If you change the index mapping in code, remove the index directory and
// run `quire server --reindex` to rebuild it.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase + tokenize, no stemming) so a query for
	// "bayes" matches the exact word.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", text)
	docMapping.AddFieldMappingsAt("content", text)

	lib := bleve.NewTextFieldMapping()
	lib.Analyzer = keywordanalyzer.Name
	docMapping.AddFieldMappingsAt("library", lib)

	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	return im
}

// DocKey is the index key of a document: "<library>#<id>".
func DocKey(library string, id int64) string {
	return library + "#" + strconv.FormatInt(id, 10)
}

// ParseDocKey splits a key made by DocKey.
func ParseDocKey(key string) (string, int64, error) {
	i := strings.LastIndexByte(key, '#')
	if i < 0 {
		return "", 0, fmt.Errorf("malformed index key %q", key)
	}
	id, err := strconv.ParseInt(key[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed index key %q: %w", key, err)
	}
	return key[:i], id, nil
}

// Index adds or replaces doc. HTML bodies are flattened to text first.
func (b *BleveIndex) Index(_ context.Context, doc models.Document) error {
	return b.index.Index(DocKey(doc.Library, doc.ID), indexedDoc{
		Library: doc.Library,
		Title:   doc.Title,
		Content: richtext.PlainText(doc.Content),
	})
}

// IndexBatch indexes docs in one batch.
func (b *BleveIndex) IndexBatch(_ context.Context, docs []models.Document) error {
	batch := b.index.NewBatch()
	for _, doc := range docs {
		err := batch.Index(DocKey(doc.Library, doc.ID), indexedDoc{
			Library: doc.Library,
			Title:   doc.Title,
			Content: richtext.PlainText(doc.Content),
		})
		if err != nil {
			return err
		}
	}
	return b.index.Batch(batch)
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(_ context.Context, library string, id int64) error {
	return b.index.Delete(DocKey(library, id))
}

// Search returns up to limit hits from library ranked by score.
func (b *BleveIndex) Search(_ context.Context, library, query string, limit int, opts *SearchOptions) ([]models.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return []models.SearchHit{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	var o SearchOptions
	if opts != nil {
		o = *opts
	}

	scope := bleve.NewTermQuery(library)
	scope.SetField("library")
	q := bleve.NewConjunctionQuery(scope, buildQuery(query, o))

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"title", "content"}
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	terms := tokenizeQuery(query)
	out := make([]models.SearchHit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		_, id, err := ParseDocKey(hit.ID)
		if err != nil {
			continue
		}
		title, _ := hit.Fields["title"].(string)
		content, _ := hit.Fields["content"].(string)
		out = append(out, models.SearchHit{
			ID:      id,
			Title:   title,
			Snippet: Snippet(content, terms, snippetWidth),
			Score:   hit.Score,
		})
	}
	return out, nil
}

// buildQuery matches title and content, optionally fuzzy and with title matches boosted.
func buildQuery(query string, o SearchOptions) blevequery.Query {
	fields := []string{"title", "content"}
	parts := make([]blevequery.Query, 0, len(fields))
	for _, field := range fields {
		boost := 1.0
		if field == "title" && o.TitleBoost > 1 {
			boost = o.TitleBoost
		}
		if o.FuzzyEnabled {
			parts = append(parts, fuzzyQuery(query, field, o.Fuzziness, boost))
			continue
		}
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		mq.SetBoost(boost)
		parts = append(parts, mq)
	}
	return bleve.NewDisjunctionQuery(parts...)
}

// fuzzyQuery ORs a FuzzyQuery per query term.
func fuzzyQuery(query, field string, fuzziness int, boost float64) blevequery.Query {
	if fuzziness <= 0 {
		fuzziness = 1
	}
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		fq.SetBoost(boost)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !isWordRune(r)
	})
}

// Suggest proposes a corrected query from the index vocabulary.
func (b *BleveIndex) Suggest(_ context.Context, query string) (string, bool) {
	vocab, err := b.vocabulary()
	if err != nil || len(vocab) == 0 {
		return query, false
	}
	return NewSuggester(vocab).Correct(query)
}

// vocabulary returns every title and content term with its document frequency.
func (b *BleveIndex) vocabulary() (map[string]uint64, error) {
	vocab := make(map[string]uint64)
	for _, field := range []string{"title", "content"} {
		dict, err := b.index.FieldDict(field)
		if err != nil {
			return nil, err
		}
		for {
			entry, err := dict.Next()
			if err != nil {
				_ = dict.Close()
				return nil, err
			}
			if entry == nil {
				break
			}
			if entry.Count > vocab[entry.Term] {
				vocab[entry.Term] = entry.Count
			}
		}
		if err := dict.Close(); err != nil {
			return nil, err
		}
	}
	return vocab, nil
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
