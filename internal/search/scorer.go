package search

import (
	"strings"

	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/corpus"
	"github.com/hyperjump/shiryo/pkg/utils"
)

// Default scoring thresholds.
const (
	DefaultTitleMatchScore    = 0.9
	DefaultBodyMatchScore     = 0.7
	DefaultTokenMatchCap      = 0.6
	DefaultTagBoost           = 0.1
	DefaultMaxStructuralBoost = 0.2
)

// Query is a normalized, tokenized search query.
type Query struct {
	Normalized string
	// Phrase is Normalized without leading or trailing punctuation.
	Phrase string
	Tokens []string
}

// NewQuery normalizes raw and splits it into distinct tokens.
func NewQuery(raw string) Query {
	n := utils.NormalizeText(raw)
	return Query{Normalized: n, Phrase: utils.TrimEdgePunct(n), Tokens: utils.Tokenize(n)}
}

// Empty reports whether the query has nothing to match.
func (q Query) Empty() bool {
	return len(q.Tokens) == 0
}

// Scorer assigns a relevance score in [0,1] to one entry.
type Scorer interface {
	Score(q Query, e *corpus.Entry) float64
}

// ScoringConfig holds the lexical ranking thresholds.
type ScoringConfig struct {
	TitleMatchScore    float64
	BodyMatchScore     float64
	TokenMatchCap      float64
	TagBoost           float64
	MaxStructuralBoost float64
	// MinScore drops results scoring at or below it.
	MinScore float64
}

// DefaultScoringConfig returns the default thresholds.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		TitleMatchScore:    DefaultTitleMatchScore,
		BodyMatchScore:     DefaultBodyMatchScore,
		TokenMatchCap:      DefaultTokenMatchCap,
		TagBoost:           DefaultTagBoost,
		MaxStructuralBoost: DefaultMaxStructuralBoost,
	}
}

// ScoringConfigFrom reads thresholds from the search config section.
func ScoringConfigFrom(cfg *config.SearchConfig) ScoringConfig {
	sc := DefaultScoringConfig()
	if cfg == nil {
		return sc
	}
	// Zero weights fall back to the defaults; a zero MinScore means no filtering.
	for _, f := range []struct {
		dst *float64
		v   float64
	}{
		{&sc.TitleMatchScore, cfg.TitleMatchScore},
		{&sc.BodyMatchScore, cfg.BodyMatchScore},
		{&sc.TokenMatchCap, cfg.TokenMatchCap},
		{&sc.TagBoost, cfg.TagBoost},
		{&sc.MaxStructuralBoost, cfg.MaxStructuralBoost},
	} {
		if f.v > 0 {
			*f.dst = f.v
		}
	}
	sc.MinScore = cfg.MinScore
	return sc
}

// LexicalScorer scores by query containment in the title or body, falling back to the
// fraction of query tokens present, plus a capped boost for matching tags.
type LexicalScorer struct {
	cfg ScoringConfig
}

// NewLexicalScorer returns a scorer using cfg.
func NewLexicalScorer(cfg ScoringConfig) *LexicalScorer {
	return &LexicalScorer{cfg: cfg}
}

// Score implements Scorer.
func (s *LexicalScorer) Score(q Query, e *corpus.Entry) float64 {
	if q.Empty() {
		return 0
	}
	return utils.Clamp01(s.containment(q, e) + s.structural(q, e))
}

func (s *LexicalScorer) containment(q Query, e *corpus.Entry) float64 {
	switch {
	case strings.Contains(e.Title, q.Phrase):
		return s.cfg.TitleMatchScore
	case strings.Contains(e.Body, q.Phrase):
		return s.cfg.BodyMatchScore
	}
	matched := 0
	for _, tok := range q.Tokens {
		if e.HasToken(tok) {
			matched++
		}
	}
	return s.cfg.TokenMatchCap * float64(matched) / float64(len(q.Tokens))
}

// structural boosts entries whose tags appear as whole words in the query.
func (s *LexicalScorer) structural(q Query, e *corpus.Entry) float64 {
	if s.cfg.TagBoost <= 0 || len(e.Tags) == 0 {
		return 0
	}
	padded := " " + q.Normalized + " "
	boost := 0.0
	for _, tag := range e.Tags {
		if strings.Contains(padded, " "+tag+" ") {
			boost += s.cfg.TagBoost
		}
	}
	if s.cfg.MaxStructuralBoost > 0 && boost > s.cfg.MaxStructuralBoost {
		boost = s.cfg.MaxStructuralBoost
	}
	return boost
}
