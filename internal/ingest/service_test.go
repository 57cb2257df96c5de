package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/shiryo/internal/corpus"
	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/fileid"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, adapters []extract.Adapter, opts ...Option) (*Service, *corpus.Index) {
	t.Helper()
	ix := corpus.New(storage.NewMemoryStore())
	svc := NewService(NewOrchestrator(adapters), ix, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, ix
}

func defaultChain(ocr ...extract.Adapter) []extract.Adapter {
	return append([]extract.Adapter{extract.NewDirectAdapter(), extract.NewOfficeAdapter()}, ocr...)
}

func TestService_PlainTextDocument(t *testing.T) {
	svc, ix := newService(t, defaultChain())
	rec, err := svc.Submit(context.Background(), &models.DocumentInput{
		ID:       "faq",
		Title:    "Refund FAQ",
		Folder:   "Sales",
		Tags:     []string{"refunds"},
		MimeHint: "text/plain",
		Content:  []byte("Refunds settle within five business days."),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtracted, rec.Status)
	assert.Equal(t, models.MethodDirect, rec.ExtractionMethod)
	assert.Equal(t, 1.0, rec.Confidence)
	assert.Equal(t, "Refunds settle within five business days.", rec.ExtractedText)
	assert.Equal(t, "sales", rec.Folder)
	assert.Equal(t, int64(41), rec.RawSizeBytes)

	stored, err := ix.Get(context.Background(), "faq")
	require.NoError(t, err)
	assert.Equal(t, rec.Version, stored.Version)
	entries, _ := ix.Snapshot("sales")
	assert.Len(t, entries, 1)
}

func TestService_CorruptImageFails(t *testing.T) {
	ocrA := &extract.MockAdapter{AdapterName: extract.NameOCRA, AdapterMethod: models.MethodOCRA, Mimes: []string{"image/png"}, Confidence: 0}
	ocrB := &extract.MockAdapter{AdapterName: extract.NameOCRB, AdapterMethod: models.MethodOCRB, Mimes: []string{"image/png"}, Err: errors.New("bad image")}
	svc, ix := newService(t, defaultChain(ocrA, ocrB))

	rec, err := svc.Submit(context.Background(), &models.DocumentInput{ID: "scan", MimeHint: "image/png", Content: []byte("garbage")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtractionFailed, rec.Status)
	assert.Equal(t, models.MethodFailed, rec.ExtractionMethod)
	assert.Empty(t, rec.ExtractedText)
	assert.Zero(t, rec.Confidence)
	assert.Contains(t, rec.ExtractionError, "bad image")

	entries, _ := ix.Snapshot("")
	assert.Empty(t, entries, "failed documents are not searchable")
}

func TestService_BestEffortScan(t *testing.T) {
	ocrA := &extract.MockAdapter{AdapterName: extract.NameOCRA, AdapterMethod: models.MethodOCRA, Mimes: []string{"application/pdf"}, Text: "MERCHANT AGREEMENT", Confidence: 0.4}
	ocrB := &extract.MockAdapter{AdapterName: extract.NameOCRB, AdapterMethod: models.MethodOCRB, Mimes: []string{"application/pdf"}, Err: errors.New("no text")}
	// The direct adapter finds no usable text layer in the broken PDF.
	svc, _ := newService(t, defaultChain(ocrA, ocrB))

	rec, err := svc.Submit(context.Background(), &models.DocumentInput{ID: "scanned", MimeHint: "application/pdf", Content: []byte("%PDF-1.4 broken")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtracted, rec.Status)
	assert.Equal(t, 0.4, rec.Confidence)
	assert.Equal(t, models.MethodOCRA, rec.ExtractionMethod)
	assert.Equal(t, "MERCHANT AGREEMENT", rec.ExtractedText)
}

func TestService_CancelledSubmitLeavesTerminalRecord(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "documents.db"))
	require.NoError(t, err)
	defer store.Close()
	ix := corpus.New(store)
	require.NoError(t, ix.Load(context.Background()))

	slow := &extract.MockAdapter{AdapterName: "ocr_a", AdapterMethod: models.MethodOCRA, Text: "late", Confidence: 0.9, Delay: 2 * time.Second}
	svc := NewService(NewOrchestrator([]extract.Adapter{slow}), ix)
	defer func() { _ = svc.Shutdown(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	rec, err := svc.Submit(ctx, &models.DocumentInput{ID: "scan", MimeHint: "image/png", Content: []byte("not really a png")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtractionFailed, rec.Status)
	assert.NotEmpty(t, rec.ExtractionError)

	stored, err := ix.Get(context.Background(), "scan")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtractionFailed, stored.Status)
	assert.Equal(t, uint64(2), stored.Version)

	// The in-flight slot is free again.
	slow.Delay = 0
	again, err := svc.Submit(context.Background(), &models.DocumentInput{ID: "scan", MimeHint: "image/png", Content: []byte("not really a png")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtracted, again.Status)
}

func TestService_ConcurrentSubmitConflicts(t *testing.T) {
	slow := &extract.MockAdapter{AdapterName: "slow", Text: "done", Confidence: 1, Delay: 200 * time.Millisecond}
	svc, ix := newService(t, []extract.Adapter{slow})
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		firstErr error
		firstRec *models.Document
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstRec, firstErr = svc.Submit(ctx, &models.DocumentInput{ID: "dup", MimeHint: "text/plain", Content: []byte("a")})
	}()
	require.Eventually(t, func() bool { return svc.InFlight("dup") }, time.Second, time.Millisecond)

	_, err := svc.Submit(ctx, &models.DocumentInput{ID: "dup", MimeHint: "text/plain", Content: []byte("b")})
	assert.ErrorIs(t, err, models.ErrConflictInFlight)
	_, err = svc.SubmitAsync(ctx, &models.DocumentInput{ID: "dup", MimeHint: "text/plain", Content: []byte("c")})
	assert.ErrorIs(t, err, models.ErrConflictInFlight)
	assert.ErrorIs(t, svc.Remove(ctx, "dup"), models.ErrConflictInFlight)

	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, models.StatusExtracted, firstRec.Status)
	assert.Equal(t, 1, slow.Calls())
	assert.False(t, svc.InFlight("dup"))
	assert.Equal(t, 3, svc.Stats().Rejected)

	stored, _ := ix.Get(ctx, "dup")
	assert.Equal(t, uint64(2), stored.Version, "pending registration plus result")
}

func TestService_ResubmitBumpsVersion(t *testing.T) {
	svc, ix := newService(t, defaultChain())
	ctx := context.Background()
	in := func() *models.DocumentInput {
		return &models.DocumentInput{ID: "deck", MimeHint: "text/plain", Content: []byte("same bytes")}
	}

	first, err := svc.Submit(ctx, in())
	require.NoError(t, err)
	second, err := svc.Submit(ctx, in())
	require.NoError(t, err)

	assert.Equal(t, first.ExtractedText, second.ExtractedText)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.ExtractionMethod, second.ExtractionMethod)
	assert.Equal(t, first.Version+1, second.Version)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	v, _ := ix.Version("deck")
	assert.Equal(t, second.Version, v)
}

func TestService_StatusMatchesConfidence(t *testing.T) {
	floor := extract.DefaultFloor
	for _, conf := range []float64{0, 0.05, 0.14, 0.15, 0.2, 0.4, 0.54, 0.55, 0.9, 1} {
		ocr := &extract.MockAdapter{AdapterName: "ocr", AdapterMethod: models.MethodOCRA, Text: "words", Confidence: conf}
		svc, _ := newService(t, []extract.Adapter{ocr})
		rec, err := svc.Submit(context.Background(), &models.DocumentInput{ID: "d", MimeHint: "image/png", Content: []byte("x")})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rec.Confidence, 0.0)
		assert.LessOrEqual(t, rec.Confidence, 1.0)
		assert.Equal(t, conf >= floor && conf > 0, rec.Status == models.StatusExtracted, "confidence %v", conf)
	}
}

func TestService_GeneratesID(t *testing.T) {
	svc, _ := newService(t, defaultChain())
	in := &models.DocumentInput{SourceURI: "/uploads/pricing sheet.txt", MimeHint: "text/plain", Content: []byte("rates")}
	rec, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, in.ID, rec.ID)
	assert.Equal(t, "pricing sheet.txt", rec.Title)

	_, err = svc.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestService_AsyncAndEvents(t *testing.T) {
	svc, ix := newService(t, defaultChain(), WithWorkers(2), WithQueueSize(4))
	ctx := context.Background()

	var (
		mu     sync.Mutex
		events []Event
	)
	svc.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	id, err := svc.SubmitAsync(ctx, &models.DocumentInput{ID: "async", MimeHint: "text/plain", Content: []byte("queued text")})
	require.NoError(t, err)
	assert.Equal(t, "async", id)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	ev := events[0]
	mu.Unlock()
	assert.Equal(t, "async", ev.DocumentID)
	assert.Equal(t, models.StatusExtracted, ev.Status)
	assert.Equal(t, 1.0, ev.Confidence)
	assert.Equal(t, OutcomeAccepted, ev.Outcome)

	require.Eventually(t, func() bool { return !svc.InFlight("async") }, time.Second, time.Millisecond)
	rec, err := ix.Get(ctx, "async")
	require.NoError(t, err)
	assert.Equal(t, "queued text", rec.ExtractedText)
	assert.Equal(t, 1, svc.Stats().Processed)
}

func TestService_ShutdownDrainsAndRejects(t *testing.T) {
	slow := &extract.MockAdapter{AdapterName: "slow", Text: "t", Confidence: 1, Delay: 20 * time.Millisecond}
	svc, ix := newService(t, []extract.Adapter{slow}, WithWorkers(1))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := svc.SubmitAsync(ctx, &models.DocumentInput{ID: id, MimeHint: "text/plain", Content: []byte(id)})
		require.NoError(t, err)
	}
	require.NoError(t, svc.Shutdown(ctx))
	for _, id := range []string{"a", "b", "c"} {
		rec, err := ix.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusExtracted, rec.Status)
	}

	_, err := svc.SubmitAsync(ctx, &models.DocumentInput{ID: "late", Content: []byte("x")})
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, svc.InFlight("late"))
	assert.True(t, svc.Stats().ShutDown)
}

func TestService_Files(t *testing.T) {
	svc, ix := newService(t, defaultChain())
	ctx := context.Background()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sales", "pricing"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".hidden"), 0o755))
	write := func(rel, body string) string {
		p := filepath.Join(root, rel)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}
	top := write("overview.txt", "Company overview")
	sheet := write(filepath.Join("sales", "pricing", "rates.md"), "Interchange plus pricing")
	write(filepath.Join("sales", "logo.bin"), "\x00\x01")
	write(filepath.Join(".hidden", "notes.txt"), "skip me")

	n, err := svc.SubmitDirectory(ctx, root, []string{".txt", "md"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := ix.Get(ctx, fileid.FileDocID(sheet))
	require.NoError(t, err)
	assert.Equal(t, "sales/pricing", rec.Folder)
	assert.Equal(t, "rates.md", rec.Title)
	assert.Equal(t, "Interchange plus pricing", rec.ExtractedText)

	topRec, err := ix.Get(ctx, fileid.FileDocID(top))
	require.NoError(t, err)
	assert.Equal(t, "", topRec.Folder)

	// An unchanged file is skipped.
	again, err := svc.SubmitFile(ctx, sheet, root, nil)
	require.NoError(t, err)
	assert.Equal(t, rec.Version, again.Version)

	_, err = svc.SubmitFile(ctx, filepath.Join(root, "sales", "logo.bin"), root, []string{".txt"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	require.NoError(t, svc.RemoveFile(ctx, sheet))
	_, err = ix.Get(ctx, fileid.FileDocID(sheet))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestExtensionAllowed(t *testing.T) {
	assert.True(t, ExtensionAllowed(".PDF", []string{"pdf"}))
	assert.True(t, ExtensionAllowed("docx", []string{".docx"}))
	assert.False(t, ExtensionAllowed(".exe", []string{".pdf", ".txt"}))
}
