// Package search ranks corpus documents against free-text queries.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hyperjump/shiryo/internal/cache"
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/corpus"
	"github.com/hyperjump/shiryo/internal/models"
	"go.uber.org/zap"
)

// Engine answers queries against a corpus index, consulting the result cache first.
type Engine struct {
	corpus       *corpus.Index
	cache        *cache.ResultCache
	scorer       Scorer
	minScore     float64
	source       string
	defaultLimit int
	maxLimit     int
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache enables result caching.
func WithCache(c *cache.ResultCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithScorer replaces the lexical scorer.
func WithScorer(s Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a search engine over ix. A nil cfg uses default limits and thresholds.
func NewEngine(ix *corpus.Index, cfg *config.SearchConfig, opts ...Option) *Engine {
	scoring := ScoringConfigFrom(cfg)
	e := &Engine{
		corpus:       ix,
		scorer:       NewLexicalScorer(scoring),
		minScore:     scoring.MinScore,
		source:       config.CandidateSourceScan,
		defaultLimit: models.DefaultLimit,
		maxLimit:     models.MaxLimit,
		logger:       zap.NewNop(),
	}
	if cfg != nil {
		if cfg.CandidateSource != "" {
			e.source = cfg.CandidateSource
		}
		if cfg.DefaultLimit > 0 {
			e.defaultLimit = cfg.DefaultLimit
		}
		if cfg.MaxLimit > 0 {
			e.maxLimit = cfg.MaxLimit
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns the top-ranked documents for query. An empty query, an empty corpus, or a
// scope naming an unknown folder all yield an empty result, not an error.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	query.Normalize(e.defaultLimit, e.maxLimit)
	q := NewQuery(query.Query)

	response := &models.SearchResponse{
		Hits:   []models.SearchHit{},
		Query:  q.Normalized,
		Folder: query.Folder,
	}
	if q.Empty() {
		return response, nil
	}

	scope, err := corpus.ResolveScope(query.Folder)
	if err != nil || !e.corpus.FolderExists(scope) {
		e.logger.Debug("search scope has no documents", zap.String("folder", query.Folder))
		response.QueryTime = time.Since(startTime).Milliseconds()
		return response, nil
	}

	key := cache.Key(q.Normalized, scope)
	if e.cache != nil {
		if hits, ok := e.cache.Lookup(key); ok {
			response.Hits = truncate(hits, query.Limit)
			response.Total = len(hits)
			response.Cached = true
			response.QueryTime = time.Since(startTime).Milliseconds()
			return response, nil
		}
	}

	var gen uint64
	if e.cache != nil {
		gen = e.cache.Generation()
	}
	hits, covered, err := e.rank(ctx, q, scope)
	if err != nil {
		return nil, err
	}
	if e.cache != nil && !e.cache.Store(key, scope, gen, hits, covered) {
		e.logger.Debug("search result not cached, corpus changed during query", zap.String("query", q.Normalized))
	}

	response.Hits = truncate(hits, query.Limit)
	response.Total = len(hits)
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}

// rank scores every candidate in scope and returns the full ordered result list together
// with the version of every document it looked at.
func (e *Engine) rank(ctx context.Context, q Query, scope string) ([]models.SearchHit, map[string]uint64, error) {
	entries, err := e.candidates(ctx, q, scope)
	if err != nil {
		return nil, nil, err
	}

	covered := make(map[string]uint64, len(entries))
	hits := make([]models.SearchHit, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		covered[entry.ID] = entry.Version
		score := e.scorer.Score(q, entry)
		if score <= e.minScore {
			continue
		}
		hits = append(hits, models.SearchHit{
			DocumentID: entry.ID,
			Score:      score,
			Version:    entry.Version,
			Title:      entry.Label,
			Folder:     entry.Folder,
		})
	}
	SortHits(hits)
	return hits, covered, nil
}

func (e *Engine) candidates(ctx context.Context, q Query, scope string) ([]*corpus.Entry, error) {
	kw := e.corpus.Keywords()
	if e.source != config.CandidateSourceBleve || kw == nil {
		return e.corpus.Snapshot(scope)
	}
	ids, err := kw.Candidates(ctx, q.Tokens, scope, 0)
	if err != nil {
		return nil, fmt.Errorf("keyword candidates: %w", err)
	}
	return e.corpus.SnapshotOf(scope, ids)
}

// SortHits orders hits by score descending, then newer version, then document id.
func SortHits(hits []models.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Version != b.Version {
			return a.Version > b.Version
		}
		return a.DocumentID < b.DocumentID
	})
}

func truncate(hits []models.SearchHit, limit int) []models.SearchHit {
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return append([]models.SearchHit{}, hits...)
}
