package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/shiryo/internal/corpus"
	"github.com/hyperjump/shiryo/internal/models"
	"go.uber.org/zap"
)

// ErrClosed is returned by SubmitAsync after Shutdown.
var ErrClosed = errors.New("ingest service is shut down")

// Event is published once per finished extraction.
type Event struct {
	DocumentID string
	Status     models.Status
	Confidence float64
	Method     models.ExtractionMethod
	Version    uint64
	Outcome    OutcomeKind
}

// Stats describes in-flight work.
type Stats struct {
	InFlight  int  `json:"in_flight"`
	Queued    int  `json:"queued"`
	Workers   int  `json:"workers"`
	QueueSize int  `json:"queue_size"`
	Processed int  `json:"processed"`
	Failed    int  `json:"failed"`
	Rejected  int  `json:"rejected"`
	ShutDown  bool `json:"shut_down"`
}

type job struct {
	input *models.DocumentInput
}

// Service accepts documents, extracts them, and writes the results into the corpus.
// At most one extraction runs per document id; a second submission while one is in
// flight fails with models.ErrConflictInFlight.
type Service struct {
	orch   *Orchestrator
	corpus *corpus.Index
	logger *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	stats    Stats

	subsMu sync.RWMutex
	subs   []func(Event)

	workers    int
	jobTimeout time.Duration
	jobs       chan job
	wg         sync.WaitGroup
	once       sync.Once
	qmu        sync.RWMutex
	closed     bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithWorkers sets the number of asynchronous extraction workers.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize bounds the asynchronous queue. A full queue blocks SubmitAsync.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.jobs = make(chan job, n)
		}
	}
}

// WithJobTimeout bounds each asynchronous job, including the corpus write.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// NewService starts a service with its worker pool.
func NewService(orch *Orchestrator, ix *corpus.Index, opts ...Option) *Service {
	s := &Service{
		orch:       orch,
		corpus:     ix,
		logger:     zap.NewNop(),
		inflight:   make(map[string]struct{}),
		workers:    4,
		jobTimeout: DefaultOverallTimeout + 30*time.Second,
		jobs:       make(chan job, 256),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start()
	return s
}

func (s *Service) start() {
	s.once.Do(func() {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go func(workerID int) {
				defer s.wg.Done()
				s.logger.Debug("ingest worker started", zap.Int("worker_id", workerID))
				for j := range s.jobs {
					ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
					rec, err := s.process(ctx, j.input)
					cancel()
					s.release(j.input.ID)
					if err != nil {
						s.logger.Error("ingestion failed", zap.Int("worker_id", workerID), zap.String("doc_id", j.input.ID), zap.Error(err))
						continue
					}
					s.logger.Info("document ingested",
						zap.Int("worker_id", workerID),
						zap.String("doc_id", rec.ID),
						zap.String("status", string(rec.Status)),
						zap.Float64("confidence", rec.Confidence))
				}
				s.logger.Debug("ingest worker stopped", zap.Int("worker_id", workerID))
			}(i + 1)
		}
	})
}

// Subscribe registers fn to be called after every finished extraction. Callbacks run on
// the goroutine that performed the extraction and must not block.
func (s *Service) Subscribe(fn func(Event)) {
	s.subsMu.Lock()
	s.subs = append(s.subs, fn)
	s.subsMu.Unlock()
}

// Submit extracts input synchronously and returns the stored record. A chain failure is
// not an error: the record is stored as EXTRACTION_FAILED.
func (s *Service) Submit(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	if err := prepare(input); err != nil {
		return nil, err
	}
	if err := s.acquire(input.ID); err != nil {
		return nil, err
	}
	defer s.release(input.ID)
	return s.process(ctx, input)
}

// SubmitAsync accepts input for background extraction and returns its document id. The
// conflict check happens before queueing, so a duplicate is rejected immediately.
func (s *Service) SubmitAsync(ctx context.Context, input *models.DocumentInput) (string, error) {
	if err := prepare(input); err != nil {
		return "", err
	}
	if err := s.acquire(input.ID); err != nil {
		return "", err
	}

	s.qmu.RLock()
	defer s.qmu.RUnlock()
	if s.closed {
		s.release(input.ID)
		return "", ErrClosed
	}
	select {
	case s.jobs <- job{input: input}:
		s.logger.Debug("queued document for extraction", zap.String("doc_id", input.ID))
		return input.ID, nil
	case <-ctx.Done():
		s.release(input.ID)
		return "", ctx.Err()
	}
}

// Remove deletes a document. It conflicts with an in-flight extraction of the same id.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.acquire(id); err != nil {
		return err
	}
	defer s.release(id)
	return s.corpus.Remove(ctx, id)
}

// InFlight reports whether an extraction for id is running or queued.
func (s *Service) InFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[id]
	return ok
}

// Stats returns a snapshot of service counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	st := s.stats
	st.InFlight = len(s.inflight)
	s.mu.Unlock()
	st.Queued = len(s.jobs)
	st.QueueSize = cap(s.jobs)
	st.Workers = s.workers
	s.qmu.RLock()
	st.ShutDown = s.closed
	s.qmu.RUnlock()
	return st
}

// Shutdown stops accepting work and waits for queued jobs to drain or ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.qmu.Lock()
	if s.closed {
		s.qmu.Unlock()
		return nil
	}
	s.closed = true
	close(s.jobs)
	s.qmu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); s.wg.Wait() }()

	select {
	case <-ctx.Done():
		s.logger.Warn("ingest shutdown interrupted", zap.Error(ctx.Err()))
		return ctx.Err()
	case <-done:
		s.logger.Info("ingest queue drained")
		return nil
	}
}

func (s *Service) acquire(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		s.stats.Rejected++
		return fmt.Errorf("%w: %s", models.ErrConflictInFlight, id)
	}
	s.inflight[id] = struct{}{}
	return nil
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// process runs extraction and stores the result. The caller holds the in-flight slot.
func (s *Service) process(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	if _, err := s.corpus.Get(ctx, input.ID); errors.Is(err, models.ErrNotFound) {
		pending := record(input)
		pending.Status = models.StatusPending
		pending.ExtractionMethod = models.MethodNone
		if _, err := s.corpus.Upsert(ctx, pending); err != nil {
			return nil, fmt.Errorf("register %s: %w", input.ID, err)
		}
	}

	outcome := s.orch.Extract(ctx, input.Content, input.MimeHint)

	doc := record(input)
	doc.MimeHint = outcome.Mime
	doc.ExtractedText = outcome.Text()
	doc.Confidence = outcome.Confidence()
	doc.ExtractionMethod = outcome.Method()
	doc.Status = outcome.Status()
	if err := outcome.Err(); err != nil {
		doc.ExtractionError = err.Error()
	}

	// The caller may have gone away mid-extraction; the terminal record is still written.
	rec, err := s.corpus.Upsert(context.WithoutCancel(ctx), doc)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", input.ID, err)
	}

	s.mu.Lock()
	s.stats.Processed++
	if rec.Status == models.StatusExtractionFailed {
		s.stats.Failed++
	}
	s.mu.Unlock()

	if outcome.Kind == OutcomeFailed {
		s.logger.Warn("extraction failed", zap.String("doc_id", rec.ID), zap.String("reason", rec.ExtractionError))
	} else {
		s.logger.Debug("extraction finished",
			zap.String("doc_id", rec.ID),
			zap.Stringer("outcome", outcome.Kind),
			zap.String("method", string(rec.ExtractionMethod)),
			zap.Float64("confidence", rec.Confidence))
	}
	s.publish(Event{
		DocumentID: rec.ID,
		Status:     rec.Status,
		Confidence: rec.Confidence,
		Method:     rec.ExtractionMethod,
		Version:    rec.Version,
		Outcome:    outcome.Kind,
	})
	return rec, nil
}

func (s *Service) publish(ev Event) {
	s.subsMu.RLock()
	subs := slices.Clone(s.subs)
	s.subsMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// prepare validates input and assigns an id when none was given.
func prepare(input *models.DocumentInput) error {
	if input == nil {
		return fmt.Errorf("%w: nil document", models.ErrInvalidInput)
	}
	input.ID = strings.TrimSpace(input.ID)
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	return nil
}

func record(input *models.DocumentInput) *models.Document {
	title := strings.TrimSpace(input.Title)
	if title == "" && input.SourceURI != "" {
		title = path.Base(strings.ReplaceAll(input.SourceURI, "\\", "/"))
	}
	if title == "" {
		title = input.ID
	}
	return &models.Document{
		ID:           input.ID,
		Title:        title,
		Folder:       input.Folder,
		Tags:         input.Tags,
		SourceURI:    input.SourceURI,
		MimeHint:     input.MimeHint,
		RawSizeBytes: int64(len(input.Content)),
	}
}
