package extract

import (
	"errors"
	"testing"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/stretchr/testify/assert"
)

func attempt(conf float64) models.ExtractionAttempt {
	return models.ExtractionAttempt{Text: "t", Confidence: conf}
}

func TestPolicy_Decide(t *testing.T) {
	failedAttempt := models.ExtractionAttempt{Err: errors.New("boom")}
	timedOut := models.ExtractionAttempt{TimedOut: true}

	tests := []struct {
		name     string
		attempts []models.ExtractionAttempt
		verdict  Verdict
		chosen   int
	}{
		{"first accepted wins", []models.ExtractionAttempt{attempt(0.2), attempt(0.9), attempt(0.95)}, VerdictAccepted, 1},
		{"exactly threshold accepted", []models.ExtractionAttempt{attempt(0.55)}, VerdictAccepted, 0},
		{"best effort above floor", []models.ExtractionAttempt{failedAttempt, attempt(0.4)}, VerdictBestEffort, 1},
		{"best effort picks highest", []models.ExtractionAttempt{attempt(0.2), attempt(0.5), attempt(0.3)}, VerdictBestEffort, 1},
		{"ties keep earliest", []models.ExtractionAttempt{attempt(0.3), attempt(0.3)}, VerdictBestEffort, 0},
		{"below floor fails", []models.ExtractionAttempt{attempt(0.1), attempt(0.05)}, VerdictFailed, -1},
		{"all errors fail", []models.ExtractionAttempt{failedAttempt, timedOut}, VerdictFailed, -1},
		{"no attempts fail", nil, VerdictFailed, -1},
		{"errored high confidence ignored", []models.ExtractionAttempt{{Confidence: 0.9, Err: errors.New("x")}}, VerdictFailed, -1},
	}
	p := DefaultPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, chosen := p.Decide(tt.attempts)
			assert.Equal(t, tt.verdict, verdict)
			assert.Equal(t, tt.chosen, chosen)
		})
	}
}

func TestPolicy_DecideIsDeterministic(t *testing.T) {
	p := DefaultPolicy()
	attempts := []models.ExtractionAttempt{attempt(0.3), attempt(0.45), attempt(0.45)}
	v1, i1 := p.Decide(attempts)
	for i := 0; i < 20; i++ {
		v, idx := p.Decide(attempts)
		assert.Equal(t, v1, v)
		assert.Equal(t, i1, idx)
	}
}

func TestPolicy_Garbled(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		token string
		want  bool
	}{
		{"merchant", false},
		{"2.9%", false},
		{"PCI-DSS", false},
		{"~#@", true},
		{"a~~~", true},
		{"ab�", true},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Garbled(tt.token), "Garbled(%q)", tt.token)
	}
}

func TestPolicy_OCRConfidence(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 0.0, p.OCRConfidence(nil))

	clean := []Token{{"Payment", 0.9}, {"gateway", 0.8}}
	assert.InDelta(t, 0.85, p.OCRConfidence(clean), 1e-9)

	// Half of the classified tokens are garbled: mean 0.8 minus 0.5 * 0.5.
	noisy := []Token{{"refund", 0.8}, {"~#@", 0.8}}
	assert.InDelta(t, 0.55, p.OCRConfidence(noisy), 1e-9)

	// Single-rune tokens count toward the mean but are not classified.
	short := []Token{{"a", 0.6}, {"|", 0.6}}
	assert.InDelta(t, 0.6, p.OCRConfidence(short), 1e-9)

	allGarbage := []Token{{"~~", 0.2}, {"#@", 0.1}}
	assert.Equal(t, 0.0, p.OCRConfidence(allGarbage), "confidence must clamp at zero")
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "accepted", VerdictAccepted.String())
	assert.Equal(t, "best_effort", VerdictBestEffort.String())
	assert.Equal(t, "failed", VerdictFailed.String())
}
