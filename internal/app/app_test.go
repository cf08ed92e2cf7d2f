package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrateDigger/internal/config"
)

const videosFixture = `{"items":[
 {"id":"album1","snippet":{"title":"Rare Groove Full Album Vinyl Rip - Album Cover - 1974","channelId":"UCdeep","channelTitle":"Deep Funk Archives",
  "publishedAt":"2012-03-04T00:00:00Z","thumbnails":{"high":{"url":"https://img.example/album1.jpg"}}},
  "contentDetails":{"duration":"PT40M"},"status":{"embeddable":true}},
 {"id":"cover1","snippet":{"title":"Live Guitar Cover - Acoustic Session 2023","channelId":"UCcover","channelTitle":"Cover Town"},
  "contentDetails":{"duration":"PT4M"},"status":{"embeddable":true}}
]}`

const playlistFixture = `{"items":[
 {"snippet":{"title":"Rare Groove Full Album"},"contentDetails":{"videoId":"album1"}},
 {"snippet":{"title":"Live Guitar Cover"},"contentDetails":{"videoId":"cover1"}}
]}`

func newTestApp(t *testing.T) *Application {
	t.Helper()

	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/playlistItems":
			_, _ = io.WriteString(w, playlistFixture)
		case "/videos":
			_, _ = io.WriteString(w, videosFixture)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(platform.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
database:
  driver: sqlite
  dsn: %s
youtube:
  apiKeys: [test-key]
  baseUrl: %s
  requestsPerSecond: 100
pipeline:
  lockFile: %s
sources:
  - kind: playlist
    ref: PLfunk
`, filepath.Join(dir, "crate.db"), platform.URL, filepath.Join(dir, "run.lock"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	a, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Migrate(context.Background(), "up"))
	return a
}

func TestRunOnceEndToEnd(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	report, err := a.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 2, report.Ingested)
	assert.Equal(t, 2, report.Batch.Enrich.Enriched)
	assert.Equal(t, 1, report.Batch.Score.Accepted)
	assert.Equal(t, 1, report.Batch.Promote.Promoted)

	stats, err := a.Pipeline().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Scored)
	assert.Equal(t, 1, stats.Promoted)

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/samples/random")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "album1", view["externalId"])
	assert.Equal(t, "https://img.example/album1.jpg", view["thumbnailUrl"])
	assert.Equal(t, "1970s", view["era"])

	resp2, err := http.Get(srv.URL + "/api/v1/samples/random?exclude=album1")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	raw, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `cratedigger_stage_items_total{outcome="promoted",stage="promote"} 1`)
	assert.Contains(t, string(raw), `cratedigger_platform_attempts_total{outcome="ok"} 2`)
}

func TestBatchLimitsFollowConfig(t *testing.T) {
	a := newTestApp(t)
	limits := a.BatchLimits()
	assert.Equal(t, 50, limits.Enrich)
	assert.Equal(t, 200, limits.Score)
	assert.Equal(t, 100, limits.Promote)
	assert.Equal(t, 15, limits.MinScore)
}
