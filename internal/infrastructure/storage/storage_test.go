package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrateDigger/internal/domain"
)

type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	clock := &tickClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, err := Open(ctx, DriverSQLite, ":memory:", WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx, nil))
	return s
}

func boolPtr(b bool) *bool { return &b }

func enrichment(title string) domain.Enrichment {
	return domain.Enrichment{
		Title:           title,
		Description:     "side a, 1974 pressing",
		ChannelID:       "UC1",
		ChannelTitle:    "Crate Archive",
		ThumbnailURL:    "https://img.example/t.jpg",
		DurationSeconds: 240,
		Tags:            []string{"funk", "library"},
		PublishedAt:     time.Date(2011, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "mysql", "dsn")
	require.Error(t, err)
	_, err = Open(context.Background(), DriverSQLite, "")
	require.Error(t, err)
}

func TestMigrationsRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RunMigration(ctx, nil, "down"))
	require.NoError(t, s.RunMigration(ctx, nil, "up"))

	_, err := s.Candidates().CountByState(ctx)
	require.NoError(t, err)
}

func TestUpsertIfAbsentIsIdempotent(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t).Candidates()
	ctx := context.Background()

	added, err := repo.UpsertIfAbsent(ctx, "vid1", domain.SourceSearch, "rare funk")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.UpsertIfAbsent(ctx, "vid1", domain.SourcePlaylist, "PL1")
	require.NoError(t, err)
	assert.False(t, added)

	c, err := repo.Get(ctx, "vid1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, domain.SourceSearch, c.SourceKind)
	assert.Equal(t, "rare funk", c.SourceRef)
	assert.Equal(t, domain.StateDiscovered, c.State())

	existing, err := repo.ExistingIDs(ctx, []string{"vid1", "vid2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"vid1": true}, existing)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSelectUnenrichedDrainsInDiscoveryOrder(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t).Candidates()
	ctx := context.Background()
	for i := range 120 {
		_, err := repo.UpsertIfAbsent(ctx, fmt.Sprintf("vid%03d", i), domain.SourceSearch, "q")
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	for _, want := range []int{50, 50, 20, 0} {
		batch, err := repo.SelectUnenriched(ctx, 50)
		require.NoError(t, err)
		require.Len(t, batch, want)
		for i, c := range batch {
			assert.False(t, seen[c.ExternalID], "candidate %s selected twice", c.ExternalID)
			seen[c.ExternalID] = true
			if i > 0 {
				assert.False(t, c.DiscoveredAt.Before(batch[i-1].DiscoveredAt))
			}
			require.NoError(t, repo.WriteEnrichment(ctx, c.ExternalID, enrichment("t")))
		}
		if want == 50 && len(seen) == 50 {
			assert.True(t, seen["vid000"])
			assert.True(t, seen["vid049"])
			assert.False(t, seen["vid050"])
		}
	}
	assert.Len(t, seen, 120)
}

func TestEnrichmentRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t).Candidates()
	ctx := context.Background()
	_, err := repo.UpsertIfAbsent(ctx, "vid1", domain.SourceChannel, "UC1")
	require.NoError(t, err)

	e := enrichment("Rare Groove LP")
	e.Embeddable = boolPtr(true)
	require.NoError(t, repo.WriteEnrichment(ctx, "vid1", e))
	// second write is ignored once enriched
	require.NoError(t, repo.WriteEnrichment(ctx, "vid1", enrichment("other")))

	c, err := repo.Get(ctx, "vid1")
	require.NoError(t, err)
	require.NotNil(t, c.EnrichedAt)
	assert.Equal(t, domain.StateEnriched, c.State())
	assert.Equal(t, "Rare Groove LP", c.Enrichment.Title)
	assert.Equal(t, []string{"funk", "library"}, c.Enrichment.Tags)
	assert.Equal(t, 240, c.Enrichment.DurationSeconds)
	assert.True(t, e.PublishedAt.Equal(c.Enrichment.PublishedAt))
	require.NotNil(t, c.Enrichment.Embeddable)
	assert.True(t, *c.Enrichment.Embeddable)
}

func TestRecordEnrichMiss(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t).Candidates()
	ctx := context.Background()
	_, err := repo.UpsertIfAbsent(ctx, "gone", domain.SourceSearch, "q")
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		n, err := repo.RecordEnrichMiss(ctx, "gone")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	_, err = repo.RecordEnrichMiss(ctx, "unknown")
	assert.Error(t, err)
}

func TestScoringAndPromotionSelection(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t).Candidates()
	ctx := context.Background()

	cases := []struct {
		id         string
		title      string
		embeddable *bool
		score      int
	}{
		{"good", "Library LP", nil, 40},
		{"embed", "Library LP", boolPtr(true), 30},
		{"low", "Library LP", nil, 10},
		{"blocked", "Library LP", boolPtr(false), 90},
		{"untitled", "", nil, 90},
	}
	for _, tc := range cases {
		_, err := repo.UpsertIfAbsent(ctx, tc.id, domain.SourceSearch, "q")
		require.NoError(t, err)
		e := enrichment(tc.title)
		e.Embeddable = tc.embeddable
		require.NoError(t, repo.WriteEnrichment(ctx, tc.id, e))
	}

	unscored, err := repo.SelectUnscored(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unscored, len(cases))
	assert.Equal(t, "good", unscored[0].ExternalID)

	for _, tc := range cases {
		require.NoError(t, repo.WriteScore(ctx, tc.id, tc.score, "funk", "1970s"))
	}
	// scores are written once
	require.NoError(t, repo.WriteScore(ctx, "low", 99, "", ""))

	unscored, err = repo.SelectUnscored(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unscored)

	promotable, err := repo.SelectPromotable(ctx, 10, 15)
	require.NoError(t, err)
	ids := make([]string, 0, len(promotable))
	for _, c := range promotable {
		ids = append(ids, c.ExternalID)
	}
	assert.Equal(t, []string{"good", "embed"}, ids)
	require.NotNil(t, promotable[0].Score)
	assert.Equal(t, 40, *promotable[0].Score)
	assert.Equal(t, "funk", promotable[0].Genre)

	require.NoError(t, repo.MarkProcessed(ctx, "good", "sample-1"))
	require.NoError(t, repo.MarkProcessed(ctx, "low", ""))

	promotable, err = repo.SelectPromotable(ctx, 10, 15)
	require.NoError(t, err)
	require.Len(t, promotable, 1)
	assert.Equal(t, "embed", promotable[0].ExternalID)

	stats, err := repo.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.BacklogStats{Scored: 3, Processed: 2, Promoted: 1}, stats)

	good, err := repo.Get(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, domain.StateProcessed, good.State())
	assert.Equal(t, "sample-1", good.SampleID)
}

func TestSelectWithZeroLimit(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t).Candidates()
	got, err := repo.SelectUnenriched(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCursors(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t).Candidates()
	ctx := context.Background()

	token, err := repo.LoadCursor(ctx, "rare funk")
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, repo.SaveCursor(ctx, "rare funk", "P1"))
	require.NoError(t, repo.SaveCursor(ctx, "rare funk", "P2"))
	token, err = repo.LoadCursor(ctx, "rare funk")
	require.NoError(t, err)
	assert.Equal(t, "P2", token)

	require.NoError(t, repo.SaveCursor(ctx, "rare funk", ""))
	token, err = repo.LoadCursor(ctx, "rare funk")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestCatalogUpsertLinksExisting(t *testing.T) {
	t.Parallel()

	catalog := newTestStore(t).Catalog()
	ctx := context.Background()

	ch, err := catalog.FindOrCreateChannel(ctx, "UC1", "Crate Archive")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultChannelReputation, ch.Reputation)

	published := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	first, created, err := catalog.Upsert(ctx, domain.Sample{
		ExternalID: "vid1", Title: "Side A", ChannelTitle: "Crate Archive", ChannelID: "UC1",
		Genre: "funk", Era: "1970s", QualityScore: 50, Embeddable: true, Tags: []string{"funk"},
		SourceKind: domain.SourceSearch, PublishedAt: &published, DurationSeconds: 200,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, []string{"funk"}, first.Tags)
	require.NotNil(t, first.PublishedAt)
	assert.True(t, published.Equal(*first.PublishedAt))

	second, created, err := catalog.Upsert(ctx, domain.Sample{
		ExternalID: "vid1", Title: "Side A (remaster)", Embeddable: true, QualityScore: 60, SourceKind: domain.SourcePlaylist,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Side A (remaster)", second.Title)
	assert.Equal(t, "funk", second.Genre)

	found, err := catalog.FindByExternalID(ctx, "vid1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	_, _, err = catalog.Upsert(ctx, domain.Sample{ID: first.ID, ExternalID: "vid2", Title: "x", Embeddable: true, SourceKind: domain.SourceSearch})
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestChannelReputation(t *testing.T) {
	t.Parallel()

	catalog := newTestStore(t).Catalog()
	ctx := context.Background()

	rep, err := catalog.ChannelReputation(ctx, "UCnew")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultChannelReputation, rep)

	_, err = catalog.FindOrCreateChannel(ctx, "UCnew", "New")
	require.NoError(t, err)
	require.NoError(t, catalog.SetChannelReputation(ctx, "UCnew", 1.7))

	rep, err = catalog.ChannelReputation(ctx, "UCnew")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rep)

	again, err := catalog.FindOrCreateChannel(ctx, "UCnew", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "New", again.Name)
	assert.Equal(t, 1.0, again.Reputation)
}

func TestCatalogFilters(t *testing.T) {
	t.Parallel()

	catalog := newTestStore(t).Catalog()
	ctx := context.Background()

	seed := []domain.Sample{
		{ExternalID: "a", Title: "A", Genre: "Funk", Era: "1970s", Tags: []string{"breaks"}, Embeddable: true},
		{ExternalID: "b", Title: "B", Genre: "jazz", Era: "1960s", Tags: []string{"city pop"}, Embeddable: true},
		{ExternalID: "c", Title: "C", Genre: "funk", Era: "1980s", Embeddable: true},
		{ExternalID: "d", Title: "D", Genre: "funk", Era: "1970s", Embeddable: false},
	}
	for _, s := range seed {
		s.SourceKind = domain.SourceSearch
		_, _, err := catalog.Upsert(ctx, s)
		require.NoError(t, err)
	}

	tests := []struct {
		name       string
		filter     domain.SampleFilter
		exclusions []string
		want       []string
	}{
		{name: "all embeddable", want: []string{"a", "b", "c"}},
		{name: "genre is case insensitive", filter: domain.SampleFilter{Genre: "FUNK"}, want: []string{"a", "c"}},
		{name: "era", filter: domain.SampleFilter{Genre: "funk", Era: "1970s"}, want: []string{"a"}},
		{name: "category matches tags", filter: domain.SampleFilter{Category: "City Pop"}, want: []string{"b"}},
		{name: "category matches genre", filter: domain.SampleFilter{Category: "jazz"}, want: []string{"b"}},
		{name: "exclusions", exclusions: []string{"a", "b"}, want: []string{"c"}},
		{name: "fully excluded", exclusions: []string{"a", "b", "c"}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := catalog.CountMatching(ctx, tt.filter, tt.exclusions)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)

			var got []string
			for i := 0; i < n; i++ {
				s, err := catalog.FindAtOffset(ctx, tt.filter, tt.exclusions, i)
				require.NoError(t, err)
				require.NotNil(t, s)
				got = append(got, s.ExternalID)
			}
			assert.Equal(t, tt.want, got)

			past, err := catalog.FindAtOffset(ctx, tt.filter, tt.exclusions, n)
			require.NoError(t, err)
			assert.Nil(t, past)

			listed, err := catalog.ListMatching(ctx, tt.filter, tt.exclusions, "", 0)
			require.NoError(t, err)
			assert.Len(t, listed, n)
		})
	}
}

func TestCatalogListMatchingPagesByExternalID(t *testing.T) {
	t.Parallel()

	catalog := newTestStore(t).Catalog()
	ctx := context.Background()
	for _, id := range []string{"e", "a", "d", "b", "c"} {
		_, _, err := catalog.Upsert(ctx, domain.Sample{ExternalID: id, Title: id, Embeddable: true, SourceKind: domain.SourceSearch})
		require.NoError(t, err)
	}

	var pages [][]string
	after := ""
	for {
		page, err := catalog.ListMatching(ctx, domain.SampleFilter{}, []string{"c"}, after, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		var ids []string
		for _, s := range page {
			ids = append(ids, s.ExternalID)
		}
		pages = append(pages, ids)
		after = page[len(page)-1].ExternalID
	}
	assert.Equal(t, [][]string{{"a", "b"}, {"d", "e"}}, pages)
}

func TestNewPicksPlaceholderPerDialect(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		DriverPostgres: "SELECT id FROM samples WHERE external_id = $1",
		DriverSQLite:   "SELECT id FROM samples WHERE external_id = ?",
	}
	for driver, want := range tests {
		s := New(nil, driver)
		query, args, err := s.sb.Select("id").From("samples").Where(sq.Eq{"external_id": "x"}).ToSql()
		require.NoError(t, err)
		assert.Equal(t, want, query, driver)
		assert.Equal(t, []any{"x"}, args)
	}
}
