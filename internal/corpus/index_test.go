package corpus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hyperjump/shiryo/internal/keyword"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invalidation struct {
	id     string
	folder string
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []invalidation
}

func (r *recordingInvalidator) Invalidate(documentID, folder string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, invalidation{documentID, folder})
	return 1
}

func (r *recordingInvalidator) all() []invalidation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]invalidation(nil), r.calls...)
}

func extracted(id, folder, title, text string) *models.Document {
	return &models.Document{
		ID:               id,
		Title:            title,
		Folder:           folder,
		ExtractedText:    text,
		ExtractionMethod: models.MethodDirect,
		Confidence:       1,
		Status:           models.StatusExtracted,
	}
}

func TestIndex_UpsertBumpsVersionAndInvalidates(t *testing.T) {
	inv := &recordingInvalidator{}
	ix := New(storage.NewMemoryStore(), WithInvalidator(inv))
	ctx := context.Background()

	rec, err := ix.Upsert(ctx, extracted("a", "/Sales/", "Refund Policy", "refunds within five days"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Version)
	assert.Equal(t, "sales", rec.Folder)
	assert.False(t, rec.CreatedAt.IsZero())

	rec, err = ix.Upsert(ctx, extracted("a", "sales", "Refund Policy", "refunds within ten days"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.Version)

	v, ok := ix.Version("a")
	assert.True(t, ok)
	assert.Equal(t, uint64(2), v)

	assert.Equal(t, []invalidation{{"a", "sales"}, {"a", "sales"}}, inv.all())
}

func TestIndex_UpsertMovingFolderInvalidatesBoth(t *testing.T) {
	inv := &recordingInvalidator{}
	ix := New(storage.NewMemoryStore(), WithInvalidator(inv))
	ctx := context.Background()

	_, _ = ix.Upsert(ctx, extracted("a", "sales", "t", "b"))
	_, _ = ix.Upsert(ctx, extracted("a", "legal", "t", "b"))

	assert.Contains(t, inv.all(), invalidation{"a", "legal"})
	assert.Equal(t, invalidation{"a", "sales"}, inv.all()[2])
	assert.False(t, ix.FolderExists("sales"))
	assert.True(t, ix.FolderExists("legal"))
}

func TestIndex_GetAndRemove(t *testing.T) {
	inv := &recordingInvalidator{}
	store := storage.NewMemoryStore()
	ix := New(store, WithInvalidator(inv))
	ctx := context.Background()

	_, err := ix.Get(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, _ = ix.Upsert(ctx, extracted("a", "sales/pricing", "Pricing", "interchange"))
	got, err := ix.Get(ctx, "a")
	require.NoError(t, err)
	got.Title = "mutated"
	again, _ := ix.Get(ctx, "a")
	assert.Equal(t, "Pricing", again.Title, "Get must return a copy")

	require.NoError(t, ix.Remove(ctx, "a"))
	_, err = ix.Get(ctx, "a")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, ok := ix.Version("a")
	assert.False(t, ok)
	n, _ := store.Count(ctx)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, invalidation{"a", "sales/pricing"}, inv.all()[1])

	assert.ErrorIs(t, ix.Remove(ctx, "a"), models.ErrNotFound)
}

func TestIndex_UpsertRequiresID(t *testing.T) {
	ix := New(storage.NewMemoryStore())
	_, err := ix.Upsert(context.Background(), &models.Document{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestIndex_Snapshot(t *testing.T) {
	ix := New(storage.NewMemoryStore())
	ctx := context.Background()
	_, _ = ix.Upsert(ctx, extracted("b", "sales", "Refund Policy", "Refunds; within FIVE days"))
	_, _ = ix.Upsert(ctx, extracted("a", "sales/pricing", "Pricing", "interchange plus"))
	_, _ = ix.Upsert(ctx, extracted("c", "legal", "Agreement", "terms"))
	_, _ = ix.Upsert(ctx, &models.Document{ID: "failed", Folder: "sales", Title: "Refund scan", Status: models.StatusExtractionFailed})
	_, _ = ix.Upsert(ctx, &models.Document{ID: "pending", Folder: "sales", Title: "Refund draft", Status: models.StatusPending})

	all, err := ix.Snapshot("")
	require.NoError(t, err)
	require.Len(t, all, 3, "only extracted records are searchable")
	assert.Equal(t, "a", all[0].ID)

	sales, err := ix.Snapshot("Sales")
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, []string{"a", "b"}, []string{sales[0].ID, sales[1].ID})

	b := sales[1]
	assert.Equal(t, "refund policy", b.Title)
	assert.Equal(t, "refunds within five days", b.Body)
	assert.True(t, b.HasToken("five"))
	assert.True(t, b.HasToken("refund"))

	pricing, _ := ix.Snapshot("sales/pricing")
	assert.Len(t, pricing, 1)

	none, err := ix.Snapshot("nowhere")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = ix.Snapshot("../etc")
	assert.ErrorIs(t, err, models.ErrInvalidQuery)
}

func TestIndex_SnapshotOf(t *testing.T) {
	ix := New(storage.NewMemoryStore())
	ctx := context.Background()
	_, _ = ix.Upsert(ctx, extracted("a", "sales", "A", "x"))
	_, _ = ix.Upsert(ctx, extracted("b", "legal", "B", "x"))

	got, err := ix.SnapshotOf("sales", []string{"b", "a", "ghost"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	got, err = ix.SnapshotOf("", nil)
	require.NoError(t, err)
	assert.Empty(t, got, "an empty candidate list must not fall back to the full corpus")
}

func TestIndex_LoadProjectsLazily(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	first := New(store)
	_, _ = first.Upsert(ctx, extracted("a", "sales", "Refund Policy", "refunds"))
	_, _ = first.Upsert(ctx, extracted("a", "sales", "Refund Policy", "refunds updated"))

	ix := New(store)
	require.NoError(t, ix.Load(ctx))
	v, ok := ix.Version("a")
	require.True(t, ok)
	assert.Equal(t, uint64(2), v)
	assert.True(t, ix.FolderExists("sales"))

	entries, err := ix.Snapshot("")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(2), entries[0].Version, "entry version must match its record")
	assert.Equal(t, "refunds updated", entries[0].Body)
	assert.Equal(t, 1, ix.Stats().StaleRebuilds)

	_, _ = ix.Snapshot("")
	assert.Equal(t, 1, ix.Stats().StaleRebuilds, "rebuilt entries are kept")

	rec, err := ix.Upsert(ctx, extracted("a", "sales", "Refund Policy", "v3"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rec.Version, "versions continue from the stored record")
}

func TestIndex_KeywordMirror(t *testing.T) {
	kw, err := keyword.NewMemBleveIndex()
	require.NoError(t, err)
	defer kw.Close()

	store := storage.NewMemoryStore()
	ix := New(store, WithKeywordIndex(kw))
	ctx := context.Background()
	_, _ = ix.Upsert(ctx, extracted("a", "sales", "Refund Policy", "refunds"))
	_, _ = ix.Upsert(ctx, extracted("b", "sales", "Pricing", "interchange"))

	ids, err := ix.Keywords().Candidates(ctx, []string{"refund"}, "sales", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	require.NoError(t, ix.Remove(ctx, "a"))
	n, _ := kw.DocCount()
	assert.Equal(t, uint64(1), n)

	// A fresh keyword index is rebuilt from the store on Load.
	kw2, err := keyword.NewMemBleveIndex()
	require.NoError(t, err)
	defer kw2.Close()
	reloaded := New(store, WithKeywordIndex(kw2))
	require.NoError(t, reloaded.Load(ctx))
	n, _ = kw2.DocCount()
	assert.Equal(t, uint64(1), n)
}

func TestIndex_LoadDropsOrphanKeywords(t *testing.T) {
	kw, err := keyword.NewMemBleveIndex()
	require.NoError(t, err)
	defer kw.Close()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	_, err = New(store).Upsert(ctx, extracted("b", "sales", "Pricing", "interchange"))
	require.NoError(t, err)
	// Entries left behind by records deleted while the service was down.
	require.NoError(t, kw.Index(ctx, "gone", keyword.Document{Title: "Old deck", Body: "refunds"}))
	require.NoError(t, kw.Index(ctx, "also-gone", keyword.Document{Title: "Old sheet"}))

	ix := New(store, WithKeywordIndex(kw))
	require.NoError(t, ix.Load(ctx))
	n, _ := kw.DocCount()
	assert.Equal(t, uint64(1), n)
	ids, err := kw.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	candidates, err := ix.Keywords().Candidates(ctx, []string{"refunds"}, "", 0)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestIndex_StatsAndFolders(t *testing.T) {
	ix := New(storage.NewMemoryStore())
	ctx := context.Background()
	_, _ = ix.Upsert(ctx, extracted("a", "sales/pricing", "A", "x"))
	_, _ = ix.Upsert(ctx, &models.Document{ID: "b", Folder: "legal", Status: models.StatusExtractionFailed})
	_, _ = ix.Upsert(ctx, &models.Document{ID: "c", Status: models.StatusPending})

	s := ix.Stats()
	assert.Equal(t, 3, s.Documents)
	assert.Equal(t, 1, s.Extracted)
	assert.Equal(t, 1, s.ExtractionFailed)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 3, s.Folders) // sales, sales/pricing, legal

	assert.True(t, ix.FolderExists(""))
	assert.True(t, ix.FolderExists("sales"))
	assert.True(t, ix.FolderExists("SALES/pricing/"))
	assert.False(t, ix.FolderExists("marketing"))
	assert.False(t, ix.FolderExists("../sales"))

	docs := ix.List("sales")
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
}

func TestIndex_ConcurrentReadersAndWriters(t *testing.T) {
	ix := New(storage.NewMemoryStore(), WithInvalidator(&recordingInvalidator{}))
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("doc-%d-%d", w, i%5)
				if _, err := ix.Upsert(ctx, extracted(id, "sales", "Title", "body")); err != nil {
					t.Error(err)
				}
			}
		}(w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				entries, err := ix.Snapshot("sales")
				if err != nil {
					t.Error(err)
					return
				}
				for _, e := range entries {
					if v, ok := ix.Version(e.ID); ok && v < e.Version {
						t.Errorf("entry %s version %d ahead of record %d", e.ID, e.Version, v)
					}
				}
			}
		}()
	}
	wg.Wait()

	entries, _ := ix.Snapshot("sales")
	assert.Len(t, entries, 20)
	for _, e := range entries {
		v, _ := ix.Version(e.ID)
		assert.Equal(t, v, e.Version)
		assert.Equal(t, uint64(10), v)
	}
}

func TestResolveScope(t *testing.T) {
	s, err := ResolveScope(" /Sales//Pricing/ ")
	require.NoError(t, err)
	assert.Equal(t, "sales/pricing", s)

	_, err = ResolveScope("sales/../../etc")
	assert.ErrorIs(t, err, models.ErrInvalidQuery)
}
