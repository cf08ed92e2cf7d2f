package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"CrateDigger/internal/domain"
	"CrateDigger/internal/infrastructure/storage"
)

type fakePlatform struct {
	mu         sync.Mutex
	details    map[string]domain.Enrichment
	detailsErr error
	batchSizes []int
	pages      map[string]domain.Page
	searchErr  error
	searches   []domain.SearchQuery
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{details: map[string]domain.Enrichment{}, pages: map[string]domain.Page{}}
}

func (f *fakePlatform) Search(_ context.Context, q domain.SearchQuery) (domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, q)
	if f.searchErr != nil {
		return domain.Page{}, f.searchErr
	}
	return f.pages[q.PageToken], nil
}

func (f *fakePlatform) BatchDetails(_ context.Context, ids []string) (map[string]domain.Enrichment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchSizes = append(f.batchSizes, len(ids))
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	out := map[string]domain.Enrichment{}
	for _, id := range ids {
		if e, ok := f.details[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (f *fakePlatform) Enumerate(context.Context, domain.SourceKind, string, string) (domain.Page, error) {
	return domain.Page{}, nil
}

type fakeSource struct {
	items []domain.PlatformItem
	err   error
}

func (f *fakeSource) Discover(_ context.Context, _ domain.SourceKind, _ string, maxItems int) ([]domain.PlatformItem, error) {
	items := f.items
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, f.err
}

type recordingObserver struct {
	mu        sync.Mutex
	stages    map[string]int
	retrieval map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{stages: map[string]int{}, retrieval: map[string]int{}}
}

func (o *recordingObserver) ObserveStage(stage, outcome string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages[stage+"/"+outcome] += n
}

func (o *recordingObserver) ObserveRetrieval(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retrieval[outcome]++
}

type harness struct {
	store    *storage.Store
	platform *fakePlatform
	source   *fakeSource
	observer *recordingObserver
	pipeline *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctx := context.Background()
	var (
		mu  sync.Mutex
		now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	store, err := storage.Open(ctx, storage.DriverSQLite, ":memory:", storage.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx, nil))

	h := &harness{
		store:    store,
		platform: newFakePlatform(),
		source:   &fakeSource{},
		observer: newRecordingObserver(),
	}
	h.pipeline = NewPipeline(PipelineDeps{
		Source:         h.source,
		Platform:       h.platform,
		Candidates:     store.Candidates(),
		Catalog:        store.Catalog(),
		Cursors:        store.Candidates(),
		Observer:       h.observer,
		RelaxedSources: []domain.SourceKind{domain.SourcePage},
	})
	return h
}

func (h *harness) seed(t *testing.T, kind domain.SourceKind, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := h.store.Candidates().UpsertIfAbsent(context.Background(), id, kind, "seed")
		require.NoError(t, err)
	}
}

func archivalAlbum() domain.Enrichment {
	return domain.Enrichment{
		Title:           "Rare Groove Full Album Vinyl Rip — Album Cover — 1974",
		ChannelID:       "UCdeepfunk",
		ChannelTitle:    "Deep Funk Archives",
		ThumbnailURL:    "https://img.example/a.jpg",
		DurationSeconds: 2400,
		Tags:            []string{"funk"},
		PublishedAt:     time.Date(2012, 3, 4, 0, 0, 0, 0, time.UTC),
	}
}

func liveCover() domain.Enrichment {
	return domain.Enrichment{
		Title:           "Live Guitar Cover — Acoustic Session 2023",
		ChannelID:       "UCcover",
		ChannelTitle:    "Cover Town",
		DurationSeconds: 240,
	}
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%03d", prefix, i)
	}
	return out
}
