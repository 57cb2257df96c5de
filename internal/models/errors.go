package models

import "errors"

// Errors that cross the core boundary. Adapter-level failures never leave the
// orchestrator; they are folded into attempt confidence.
var (
	// ErrNotFound indicates a requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrConflictInFlight indicates an extraction is already running for the same document id.
	ErrConflictInFlight = errors.New("extraction already in flight")

	// ErrExtractionFailed indicates no engine produced usable text for a document.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrEngineFailure wraps adapter-local failures inside an attempt.
	ErrEngineFailure = errors.New("engine failure")

	// ErrInvalidQuery marks a malformed scope reference. The query engine resolves it
	// to an empty scope instead of returning it.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidInput indicates a malformed submission.
	ErrInvalidInput = errors.New("invalid input")
)
