package extract

import (
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/pkg/utils"
)

// Confidence policy defaults. These are tuning starting points.
const (
	// DefaultAcceptThreshold is the confidence at which the chain stops and accepts an attempt.
	DefaultAcceptThreshold = 0.55
	// DefaultFloor is the minimum confidence for best-effort acceptance once the chain is exhausted.
	DefaultFloor = 0.15
	// DefaultGarblePenalty scales the confidence discount applied per unit of garbled-token fraction.
	DefaultGarblePenalty = 0.5
	// DefaultMinTokenLength is the shortest token classified as garbled or clean; shorter
	// tokens (single glyphs, stray punctuation) are not counted either way.
	DefaultMinTokenLength = 2
	// minAlnumRatio is the share of letters and digits below which a token counts as garbled.
	minAlnumRatio = 0.5
)

// Verdict is the terminal decision over a sequence of attempts.
type Verdict int

const (
	// VerdictFailed means no attempt reached the floor.
	VerdictFailed Verdict = iota
	// VerdictAccepted means an attempt met the acceptance threshold.
	VerdictAccepted
	// VerdictBestEffort means the chain was exhausted and the best attempt cleared the floor.
	VerdictBestEffort
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictBestEffort:
		return "best_effort"
	default:
		return "failed"
	}
}

// Token is one recognized word with the recognizer's certainty in [0,1].
type Token struct {
	Text       string
	Confidence float64
}

// Policy holds every confidence knob used during extraction.
type Policy struct {
	AcceptThreshold float64
	Floor           float64
	GarblePenalty   float64
	MinTokenLength  int
}

// DefaultPolicy returns the policy with default thresholds.
func DefaultPolicy() Policy {
	return Policy{
		AcceptThreshold: DefaultAcceptThreshold,
		Floor:           DefaultFloor,
		GarblePenalty:   DefaultGarblePenalty,
		MinTokenLength:  DefaultMinTokenLength,
	}
}

// Accepts reports whether a finished attempt is good enough to stop the chain.
func (p Policy) Accepts(a models.ExtractionAttempt) bool {
	return a.OK() && a.Confidence >= p.AcceptThreshold
}

// Decide picks the terminal verdict for attempts in chain order. The returned index points
// at the chosen attempt, or is -1 when the verdict is VerdictFailed.
//
// The first accepted attempt wins. Otherwise the highest-confidence successful attempt
// (earliest on ties) is kept when it reaches the floor.
func (p Policy) Decide(attempts []models.ExtractionAttempt) (Verdict, int) {
	best := -1
	for i := range attempts {
		a := attempts[i]
		if p.Accepts(a) {
			return VerdictAccepted, i
		}
		if !a.OK() {
			continue
		}
		if best < 0 || a.Confidence > attempts[best].Confidence {
			best = i
		}
	}
	if best >= 0 && attempts[best].Confidence >= p.Floor && attempts[best].Confidence > 0 {
		return VerdictBestEffort, best
	}
	return VerdictFailed, -1
}

// OCRConfidence averages per-token certainty and discounts it by the garbled-token fraction.
// Returns 0 when there are no tokens.
func (p Policy) OCRConfidence(tokens []Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	var classified, garbled int
	for _, t := range tokens {
		sum += utils.Clamp01(t.Confidence)
		if utf8.RuneCountInString(t.Text) < p.minTokenLength() {
			continue
		}
		classified++
		if p.Garbled(t.Text) {
			garbled++
		}
	}
	mean := sum / float64(len(tokens))
	if classified == 0 {
		return utils.Clamp01(mean)
	}
	fraction := float64(garbled) / float64(classified)
	return utils.Clamp01(mean - p.GarblePenalty*fraction)
}

// Garbled reports whether token looks like recognizer noise: it contains the Unicode
// replacement character, or fewer than half of its runes are letters or digits.
func (p Policy) Garbled(token string) bool {
	var total, alnum int
	for _, r := range token {
		if r == utf8.RuneError {
			return true
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if total == 0 {
		return false
	}
	return float64(alnum)/float64(total) < minAlnumRatio
}

func (p Policy) minTokenLength() int {
	if p.MinTokenLength <= 0 {
		return DefaultMinTokenLength
	}
	return p.MinTokenLength
}
