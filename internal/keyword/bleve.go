package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so query tokens match the
	// words the lexical scorer sees.
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = false
	docMapping.AddFieldMappingsAt("title", textField)
	docMapping.AddFieldMappingsAt("body", textField)
	docMapping.AddFieldMappingsAt("tags", textField)

	folderField := bleve.NewTextFieldMapping()
	folderField.Analyzer = keywordanalyzer.Name
	folderField.Store = false
	docMapping.AddFieldMappingsAt("folder", folderField)

	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is reopened;
// remove the directory after changing the mapping to force a rebuild.
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

// NewMemBleveIndex returns an index held entirely in memory.
func NewMemBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes doc under id, replacing any previous version.
func (b *BleveIndex) Index(ctx context.Context, id string, doc Document) error {
	return b.index.Index(id, doc)
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Candidates runs a disjunction of term and prefix queries over title, body and tags,
// restricted to scope and its subfolders.
func (b *BleveIndex) Candidates(ctx context.Context, tokens []string, scope string, limit int) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	var should []blevequery.Query
	for _, field := range []string{"title", "body", "tags"} {
		for _, tok := range tokens {
			mq := bleve.NewMatchQuery(tok)
			mq.SetField(field)
			should = append(should, mq)

			pq := bleve.NewPrefixQuery(tok)
			pq.SetField(field)
			should = append(should, pq)
		}
	}
	var q blevequery.Query = bleve.NewDisjunctionQuery(should...)
	if scope != "" {
		exact := bleve.NewTermQuery(scope)
		exact.SetField("folder")
		nested := bleve.NewPrefixQuery(scope + "/")
		nested.SetField("folder")
		q = bleve.NewConjunctionQuery(q, bleve.NewDisjunctionQuery(exact, nested))
	}

	if limit <= 0 {
		count, err := b.index.DocCount()
		if err != nil {
			return nil, fmt.Errorf("Bleve doc count failed: %w", err)
		}
		limit = int(count)
	}
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	ids := make([]string, len(results.Hits))
	for i, hit := range results.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// IDs returns the id of every indexed document.
func (b *BleveIndex) IDs(ctx context.Context) ([]string, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("Bleve doc count failed: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	ids := make([]string, len(results.Hits))
	for i, hit := range results.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
