package extract

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hyperjump/shiryo/internal/models"
)

// MockAdapter is a scripted adapter for tests. It returns the same text, confidence and
// error on every call, optionally after a delay or by panicking.
type MockAdapter struct {
	AdapterName   string
	AdapterMethod models.ExtractionMethod
	Mimes         []string // empty means every type
	Text          string
	Confidence    float64
	Err           error
	Delay         time.Duration
	IgnoreContext bool
	Panic         bool

	calls atomic.Int64
}

// Name implements Adapter.
func (m *MockAdapter) Name() string { return m.AdapterName }

// Method implements Adapter.
func (m *MockAdapter) Method() models.ExtractionMethod { return m.AdapterMethod }

// Supports implements Adapter.
func (m *MockAdapter) Supports(mimeHint string) bool {
	if len(m.Mimes) == 0 {
		return true
	}
	for _, mt := range m.Mimes {
		if mt == mimeHint {
			return true
		}
	}
	return false
}

// Attempt implements Adapter.
func (m *MockAdapter) Attempt(ctx context.Context, content []byte, mimeHint string) models.ExtractionAttempt {
	m.calls.Add(1)
	if m.Panic {
		panic("mock adapter panic")
	}
	if m.Delay > 0 {
		if m.IgnoreContext {
			time.Sleep(m.Delay)
		} else {
			select {
			case <-time.After(m.Delay):
			case <-ctx.Done():
				return models.ExtractionAttempt{Err: ctx.Err()}
			}
		}
	}
	if m.Err != nil {
		return models.ExtractionAttempt{Err: m.Err}
	}
	return models.ExtractionAttempt{Text: m.Text, Confidence: m.Confidence}
}

// Calls returns how many times Attempt ran.
func (m *MockAdapter) Calls() int {
	return int(m.calls.Load())
}
