// Package keyword provides a full-text candidate index used to narrow the documents the
// query engine scores on large corpora.
package keyword

import "context"

// Document is the indexed projection of one record.
type Document struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Tags   []string `json:"tags"`
	Folder string   `json:"folder"`
}

// Index finds documents that may match a query. It is a prefilter: the query engine
// still scores every candidate itself.
type Index interface {
	Index(ctx context.Context, id string, doc Document) error
	Delete(ctx context.Context, id string) error
	// Candidates returns ids of documents in scope that contain at least one of tokens,
	// as a whole term or a term prefix. An empty scope means the whole corpus.
	Candidates(ctx context.Context, tokens []string, scope string, limit int) ([]string, error)
	DocCount() (uint64, error)
	// IDs lists every indexed document id.
	IDs(ctx context.Context) ([]string, error)
	Close() error
}
