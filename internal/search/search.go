// Package search indexes registration rows and answers substring-style
// queries over them, through Meilisearch when it is reachable and a direct
// sheet scan otherwise.
package search

import "context"

// Registration is one registration row as stored in the index. Contact
// columns are already blanked.
type Registration struct {
	ID    string   `json:"id"`
	Row   int      `json:"row"`
	Cells []string `json:"cells"`
	Text  string   `json:"text"`
}

// MaxHits is the most results one search returns, matching Meilisearch's
// default maxTotalHits.
const MaxHits = 1000

// Query describes a search request. A zero Limit means MaxHits.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by a search.
type Response struct {
	Results []Registration `json:"results"`
	Total   int            `json:"total"`
	Query   string         `json:"query"`
	Source  string         `json:"source"`
}

// Searcher can execute a registration search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Registration, int, error)
	Healthy() bool
}

// Indexer can push registrations into a search index.
type Indexer interface {
	IndexRegistrations(records []Registration) error
}

// Page returns the records from offset up to limit of them, the same window a
// Meilisearch query with that offset and limit returns.
func Page(records []Registration, offset, limit int) []Registration {
	if limit <= 0 || limit > MaxHits {
		limit = MaxHits
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []Registration{}
	}
	return records[offset:min(len(records), offset+limit)]
}
