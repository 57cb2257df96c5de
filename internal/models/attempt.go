package models

import "time"

// ExtractionAttempt is the transient result of running one engine adapter over a document.
// It is never persisted; the orchestrator consumes it immediately.
type ExtractionAttempt struct {
	Engine     string           `json:"engine"`
	Method     ExtractionMethod `json:"method"`
	Text       string           `json:"-"`
	Confidence float64          `json:"confidence"`
	Elapsed    time.Duration    `json:"elapsed_ms"`
	Err        error            `json:"-"`
	TimedOut   bool             `json:"timed_out,omitempty"`
}

// OK reports whether the attempt finished without an error.
func (a *ExtractionAttempt) OK() bool {
	return a.Err == nil && !a.TimedOut
}
