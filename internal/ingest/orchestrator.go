// Package ingest runs the extraction chain over submitted documents and writes the
// results into the corpus.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/models"
	"go.uber.org/zap"
)

// Default deadlines.
const (
	DefaultAttemptTimeout = 30 * time.Second
	DefaultOverallTimeout = 2 * time.Minute
)

// OutcomeKind tags the terminal decision of one extraction.
type OutcomeKind = extract.Verdict

const (
	OutcomeFailed     = extract.VerdictFailed
	OutcomeAccepted   = extract.VerdictAccepted
	OutcomeBestEffort = extract.VerdictBestEffort
)

// Outcome is the result of running the chain over one document.
type Outcome struct {
	Kind OutcomeKind
	// Mime is the type the adapters were selected for.
	Mime string
	// Attempts holds every attempt in chain order.
	Attempts []models.ExtractionAttempt
	// Chosen indexes Attempts, or is -1 for OutcomeFailed.
	Chosen int
	// Deadline is set when the overall deadline cut the chain short.
	Deadline bool
}

// Attempt returns the chosen attempt.
func (o Outcome) Attempt() (models.ExtractionAttempt, bool) {
	if o.Chosen < 0 || o.Chosen >= len(o.Attempts) {
		return models.ExtractionAttempt{}, false
	}
	return o.Attempts[o.Chosen], true
}

// Status maps the outcome onto the record lifecycle.
func (o Outcome) Status() models.Status {
	if o.Kind == OutcomeFailed {
		return models.StatusExtractionFailed
	}
	return models.StatusExtracted
}

// Method returns the winning method, or MethodFailed.
func (o Outcome) Method() models.ExtractionMethod {
	if a, ok := o.Attempt(); ok {
		return a.Method
	}
	return models.MethodFailed
}

// Text returns the winning text, empty on failure.
func (o Outcome) Text() string {
	a, _ := o.Attempt()
	return a.Text
}

// Confidence returns the winning confidence, 0 on failure.
func (o Outcome) Confidence() float64 {
	a, _ := o.Attempt()
	return a.Confidence
}

// Err summarizes a failed outcome. It wraps models.ErrExtractionFailed and is nil for
// accepted and best-effort outcomes.
func (o Outcome) Err() error {
	if o.Kind != OutcomeFailed {
		return nil
	}
	if len(o.Attempts) == 0 {
		return fmt.Errorf("%w: no adapter supports %s", models.ErrExtractionFailed, o.Mime)
	}
	parts := make([]string, 0, len(o.Attempts))
	for i := range o.Attempts {
		a := o.Attempts[i]
		switch {
		case a.TimedOut:
			parts = append(parts, a.Engine+": timed out")
		case a.Err != nil:
			parts = append(parts, fmt.Sprintf("%s: %v", a.Engine, a.Err))
		default:
			parts = append(parts, fmt.Sprintf("%s: confidence %.2f", a.Engine, a.Confidence))
		}
	}
	return fmt.Errorf("%w: %s", models.ErrExtractionFailed, strings.Join(parts, "; "))
}

// Orchestrator tries adapters in priority order until one is confident enough.
type Orchestrator struct {
	adapters       []extract.Adapter
	policy         extract.Policy
	attemptTimeout time.Duration
	overallTimeout time.Duration
	logger         *zap.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithPolicy sets the confidence policy.
func WithPolicy(p extract.Policy) OrchestratorOption {
	return func(o *Orchestrator) { o.policy = p }
}

// WithAttemptTimeout bounds each adapter attempt.
func WithAttemptTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// WithOverallTimeout bounds the whole chain.
func WithOverallTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.overallTimeout = d
		}
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator returns an orchestrator over adapters, tried in the given order.
func NewOrchestrator(adapters []extract.Adapter, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		adapters:       adapters,
		policy:         extract.DefaultPolicy(),
		attemptTimeout: DefaultAttemptTimeout,
		overallTimeout: DefaultOverallTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy returns the confidence policy in use.
func (o *Orchestrator) Policy() extract.Policy {
	return o.policy
}

// Extract runs the chain over content. It never returns an error: adapter failures are
// folded into the outcome, and when the overall deadline fires the decision is made from
// the attempts collected so far. The result is deterministic for a fixed set of attempts.
func (o *Orchestrator) Extract(ctx context.Context, content []byte, mimeHint string) Outcome {
	mime := extract.ResolveMime(content, mimeHint)
	ctx, cancel := context.WithTimeout(ctx, o.overallTimeout)
	defer cancel()

	out := Outcome{Mime: mime, Chosen: -1}
	for _, a := range o.adapters {
		if ctx.Err() != nil {
			out.Deadline = true
			o.logger.Warn("extraction deadline reached", zap.String("mime", mime), zap.Int("attempts", len(out.Attempts)))
			break
		}
		if !a.Supports(mime) {
			continue
		}
		att := extract.Run(ctx, a, content, mime, o.attemptTimeout)
		out.Attempts = append(out.Attempts, att)
		o.logger.Debug("extraction attempt",
			zap.String("engine", att.Engine),
			zap.Float64("confidence", att.Confidence),
			zap.Duration("elapsed", att.Elapsed),
			zap.Bool("timed_out", att.TimedOut),
			zap.Error(att.Err))
		if o.policy.Accepts(att) {
			break
		}
	}
	if !out.Deadline && ctx.Err() != nil {
		out.Deadline = true
	}

	out.Kind, out.Chosen = o.policy.Decide(out.Attempts)
	return out
}
