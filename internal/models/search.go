package models

// SearchHit is one document matched by a library search.
type SearchHit struct {
	ID      int64   `json:"id"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score"`
}

// SearchResponse is the body of GET /api/document/search.
type SearchResponse struct {
	Library string      `json:"library"`
	Query   string      `json:"query"`
	Hits    []SearchHit `json:"hits"`
	// Suggestion is a corrected query when some terms are unknown.
	Suggestion string `json:"suggestion,omitempty"`
	QueryTime  int64  `json:"query_time_ms"`
}
