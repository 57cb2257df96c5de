// Package corpus owns document records and their in-memory search projections. Every
// write goes through Index, which bumps the record version, re-projects it, and
// invalidates affected cache entries before returning.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/shiryo/internal/keyword"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/storage"
	"go.uber.org/zap"
)

// Invalidator drops cached results affected by a write to documentID in folder.
type Invalidator interface {
	Invalidate(documentID, folder string) int
}

// Stats summarizes the corpus.
type Stats struct {
	Documents        int `json:"documents"`
	Extracted        int `json:"extracted"`
	ExtractionFailed int `json:"extraction_failed"`
	Pending          int `json:"pending"`
	Folders          int `json:"folders"`
	StaleRebuilds    int `json:"stale_rebuilds"`
}

// Index is the single owner of document records. Reads take a shared lock; writes are
// serialized.
type Index struct {
	mu      sync.RWMutex
	store   storage.Store
	records map[string]*models.Document
	entries map[string]*Entry
	folders map[string]int // folder (and every ancestor) -> number of records beneath it

	keywords    keyword.Index
	invalidator Invalidator
	logger      *zap.Logger
	now         func() time.Time

	staleRebuilds int
}

// Option configures an Index.
type Option func(*Index)

// WithKeywordIndex mirrors every record into a full-text candidate index.
func WithKeywordIndex(k keyword.Index) Option {
	return func(ix *Index) { ix.keywords = k }
}

// WithInvalidator sets the cache notified on every write.
func WithInvalidator(inv Invalidator) Option {
	return func(ix *Index) { ix.invalidator = inv }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(ix *Index) { ix.logger = logger }
}

// New returns an empty index over store. Call Load to read existing records.
func New(store storage.Store, opts ...Option) *Index {
	ix := &Index{
		store:   store,
		records: make(map[string]*models.Document),
		entries: make(map[string]*Entry),
		folders: make(map[string]int),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Load reads every record from the store. Projections are built lazily by the first
// Snapshot that needs them. The keyword index is rebuilt when its size disagrees with the
// store.
func (ix *Index) Load(ctx context.Context) error {
	docs, err := ix.store.List(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.records = make(map[string]*models.Document, len(docs))
	ix.entries = make(map[string]*Entry, len(docs))
	ix.folders = make(map[string]int)
	for _, doc := range docs {
		ix.records[doc.ID] = doc
		ix.addFolder(doc.Folder)
	}

	if ix.keywords != nil {
		n, err := ix.keywords.DocCount()
		if err != nil || n != uint64(len(docs)) {
			ix.logger.Info("rebuilding keyword index", zap.Uint64("indexed", n), zap.Int("records", len(docs)))
			if err := ix.dropOrphanKeywords(ctx); err != nil {
				return err
			}
			for _, doc := range docs {
				if err := ix.keywords.Index(ctx, doc.ID, keywordDoc(doc)); err != nil {
					return fmt.Errorf("keyword index %s: %w", doc.ID, err)
				}
			}
		}
	}
	ix.logger.Info("corpus loaded", zap.Int("documents", len(docs)))
	return nil
}

// dropOrphanKeywords removes keyword entries whose records are gone. The caller holds mu.
func (ix *Index) dropOrphanKeywords(ctx context.Context) error {
	ids, err := ix.keywords.IDs(ctx)
	if err != nil {
		return fmt.Errorf("list keyword ids: %w", err)
	}
	for _, id := range ids {
		if _, ok := ix.records[id]; ok {
			continue
		}
		if err := ix.keywords.Delete(ctx, id); err != nil {
			return fmt.Errorf("keyword delete %s: %w", id, err)
		}
	}
	return nil
}

// Upsert writes doc, assigning Version = previous + 1 (1 for a new id). The stored record
// is re-projected and cache entries covering the id or its scope are invalidated before
// Upsert returns. The returned record is a copy.
func (ix *Index) Upsert(ctx context.Context, doc *models.Document) (*models.Document, error) {
	if doc == nil || doc.ID == "" {
		return nil, fmt.Errorf("%w: document id is required", models.ErrInvalidInput)
	}
	rec := doc.Clone()
	rec.Folder = models.NormalizeFolder(rec.Folder)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	now := ix.now()
	prev, existed := ix.records[rec.ID]
	if existed {
		rec.Version = prev.Version + 1
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.Version = 1
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	if err := ix.store.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	ix.records[rec.ID] = rec
	ix.entries[rec.ID] = project(rec)
	if existed {
		ix.dropFolder(prev.Folder)
	}
	ix.addFolder(rec.Folder)

	if ix.keywords != nil {
		if err := ix.keywords.Index(ctx, rec.ID, keywordDoc(rec)); err != nil {
			ix.logger.Warn("keyword index failed", zap.String("doc_id", rec.ID), zap.Error(err))
		}
	}

	ix.invalidate(rec.ID, rec.Folder)
	if existed && prev.Folder != rec.Folder {
		ix.invalidate(rec.ID, prev.Folder)
	}
	return rec.Clone(), nil
}

// Remove deletes the record and its projection.
func (ix *Index) Remove(ctx context.Context, id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	prev, ok := ix.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if err := ix.store.Remove(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	delete(ix.records, id)
	delete(ix.entries, id)
	ix.dropFolder(prev.Folder)

	if ix.keywords != nil {
		if err := ix.keywords.Delete(ctx, id); err != nil {
			ix.logger.Warn("keyword delete failed", zap.String("doc_id", id), zap.Error(err))
		}
	}
	ix.invalidate(id, prev.Folder)
	return nil
}

// Get returns a copy of the record for id.
func (ix *Index) Get(ctx context.Context, id string) (*models.Document, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	doc, ok := ix.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	return doc.Clone(), nil
}

// List returns copies of the records in scope ordered by id. Invalid scopes yield nothing.
func (ix *Index) List(scope string) []*models.Document {
	scope, err := ResolveScope(scope)
	if err != nil {
		return nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []*models.Document
	for _, doc := range ix.records {
		if inScope(doc.Folder, scope) {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Version returns the live version of id.
func (ix *Index) Version(id string) (uint64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	doc, ok := ix.records[id]
	if !ok {
		return 0, false
	}
	return doc.Version, true
}

// FolderExists reports whether any record lives in folder or beneath it. The root always
// exists.
func (ix *Index) FolderExists(folder string) bool {
	folder, err := ResolveScope(folder)
	if err != nil {
		return false
	}
	if folder == "" {
		return true
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.folders[folder] > 0
}

// Snapshot returns the searchable entries in scope, ordered by id. Only EXTRACTED records
// are searchable. Entries whose version lags their record are rebuilt first.
func (ix *Index) Snapshot(scope string) ([]*Entry, error) {
	return ix.snapshot(scope, nil)
}

// SnapshotOf is Snapshot restricted to ids.
func (ix *Index) SnapshotOf(scope string, ids []string) ([]*Entry, error) {
	if ids == nil {
		ids = []string{}
	}
	return ix.snapshot(scope, ids)
}

func (ix *Index) snapshot(scope string, ids []string) ([]*Entry, error) {
	scope, err := ResolveScope(scope)
	if err != nil {
		return nil, err
	}

	ix.mu.RLock()
	out, stale := ix.collect(scope, ids, false)
	ix.mu.RUnlock()
	if !stale {
		return out, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	out, _ = ix.collect(scope, ids, true)
	return out, nil
}

// collect gathers in-scope entries. Without rebuild (read lock held) it stops at the first
// stale entry and reports it; with rebuild (write lock held) stale entries are re-projected.
func (ix *Index) collect(scope string, ids []string, rebuild bool) ([]*Entry, bool) {
	var candidates []*models.Document
	if ids != nil {
		for _, id := range ids {
			if doc, ok := ix.records[id]; ok {
				candidates = append(candidates, doc)
			}
		}
	} else {
		candidates = make([]*models.Document, 0, len(ix.records))
		for _, doc := range ix.records {
			candidates = append(candidates, doc)
		}
	}

	out := make([]*Entry, 0, len(candidates))
	for _, doc := range candidates {
		if doc.Status != models.StatusExtracted || !inScope(doc.Folder, scope) {
			continue
		}
		e, ok := ix.entries[doc.ID]
		if !ok || e.Version != doc.Version {
			if !rebuild {
				return nil, true
			}
			e = project(doc)
			ix.entries[doc.ID] = e
			ix.staleRebuilds++
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, false
}

// Keywords returns the candidate index, or nil when none is configured.
func (ix *Index) Keywords() keyword.Index {
	return ix.keywords
}

// Stats summarizes the corpus.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s := Stats{Documents: len(ix.records), StaleRebuilds: ix.staleRebuilds}
	for _, doc := range ix.records {
		switch doc.Status {
		case models.StatusExtracted:
			s.Extracted++
		case models.StatusExtractionFailed:
			s.ExtractionFailed++
		default:
			s.Pending++
		}
	}
	s.Folders = len(ix.folders)
	return s
}

// ResolveScope normalizes a folder reference. A reference that climbs out of the corpus
// ("..") wraps models.ErrInvalidQuery.
func ResolveScope(scope string) (string, error) {
	scope = models.NormalizeFolder(scope)
	for _, part := range strings.Split(scope, "/") {
		if part == ".." || part == "." {
			return "", fmt.Errorf("%w: scope %q", models.ErrInvalidQuery, scope)
		}
	}
	return scope, nil
}

func (ix *Index) invalidate(id, folder string) {
	if ix.invalidator == nil {
		return
	}
	if n := ix.invalidator.Invalidate(id, folder); n > 0 {
		ix.logger.Debug("cache invalidated", zap.String("doc_id", id), zap.String("folder", folder), zap.Int("entries", n))
	}
}

func (ix *Index) addFolder(folder string) {
	for _, f := range ancestors(folder) {
		ix.folders[f]++
	}
}

func (ix *Index) dropFolder(folder string) {
	for _, f := range ancestors(folder) {
		if ix.folders[f] <= 1 {
			delete(ix.folders, f)
			continue
		}
		ix.folders[f]--
	}
}

func keywordDoc(doc *models.Document) keyword.Document {
	return keyword.Document{
		Title:  doc.Title,
		Body:   doc.ExtractedText,
		Tags:   doc.Tags,
		Folder: doc.Folder,
	}
}
