// Package extract provides the engine adapters that turn raw document bytes into text,
// and the confidence policy that decides whether their output is usable.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/pkg/utils"
)

// Adapter wraps one extraction engine.
//
// Attempt never returns an error and never panics past its boundary: failures are reported
// in the returned attempt with Err set and zero confidence. Implementations should honor
// ctx; Run enforces the deadline for those that do not.
type Adapter interface {
	Name() string
	Method() models.ExtractionMethod
	Supports(mimeHint string) bool
	Attempt(ctx context.Context, content []byte, mimeHint string) models.ExtractionAttempt
}

// Run executes a single adapter attempt under timeout (0 means only ctx bounds it).
// A panic inside the adapter becomes a failed attempt; an expired deadline becomes a
// TimedOut attempt even when the adapter is still running.
func Run(ctx context.Context, a Adapter, content []byte, mimeHint string, timeout time.Duration) models.ExtractionAttempt {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan models.ExtractionAttempt, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- failed(a, fmt.Errorf("%w: %s panicked: %v", models.ErrEngineFailure, a.Name(), r))
			}
		}()
		done <- a.Attempt(ctx, content, mimeHint)
	}()

	att, ok := await(ctx, done)
	if !ok {
		att = failed(a, fmt.Errorf("%w: %s: %w", models.ErrEngineFailure, a.Name(), ctx.Err()))
		att.TimedOut = true
	}

	att.Engine = a.Name()
	if att.Method == models.MethodNone {
		att.Method = a.Method()
	}
	att.Elapsed = time.Since(start)
	if errors.Is(att.Err, context.DeadlineExceeded) {
		att.TimedOut = true
	}
	if !att.OK() {
		att.Text = ""
		att.Confidence = 0
	}
	att.Confidence = utils.Clamp01(att.Confidence)
	return att
}

// await waits for the attempt or for ctx to end. A result that is ready together with
// the deadline still counts.
func await(ctx context.Context, done <-chan models.ExtractionAttempt) (models.ExtractionAttempt, bool) {
	select {
	case att := <-done:
		return att, true
	case <-ctx.Done():
		select {
		case att := <-done:
			return att, true
		default:
			return models.ExtractionAttempt{}, false
		}
	}
}

// failed builds an attempt that carries err and zero confidence.
func failed(a Adapter, err error) models.ExtractionAttempt {
	return models.ExtractionAttempt{
		Engine: a.Name(),
		Method: a.Method(),
		Err:    err,
	}
}

func engineErr(name, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", models.ErrEngineFailure, name, fmt.Sprintf(format, args...))
}

// octetStream is the generic binary type sent by clients that do not know better.
const octetStream = "application/octet-stream"

// ResolveMime returns the effective MIME type for content. An explicit hint wins unless it
// is empty or the generic binary type, in which case the type is sniffed from the bytes.
// Parameters such as "; charset=utf-8" are stripped.
func ResolveMime(content []byte, hint string) string {
	hint = baseMime(hint)
	if hint != "" && hint != octetStream {
		return hint
	}
	if len(content) == 0 {
		return octetStream
	}
	return baseMime(mimetype.Detect(content).String())
}

func baseMime(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}
