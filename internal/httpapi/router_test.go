package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrateDigger/internal/domain"
)

type stubSampler struct {
	view       domain.SampleView
	ok         bool
	err        error
	filter     domain.SampleFilter
	exclusions []string
}

func (s *stubSampler) Random(_ context.Context, f domain.SampleFilter, excl []string) (domain.SampleView, bool, error) {
	s.filter = f
	s.exclusions = excl
	return s.view, s.ok, s.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestRandomSampleReturnsView(t *testing.T) {
	t.Parallel()

	d := 2400
	sampler := &stubSampler{ok: true, view: domain.SampleView{
		ExternalID:      "abc123",
		Title:           "Rare Groove LP",
		ChannelTitle:    "Deep Funk Archives",
		ThumbnailURL:    "https://img.example/a.jpg",
		Genre:           "rare groove",
		DurationSeconds: &d,
	}}
	srv := httptest.NewServer(NewRouter(sampler, nil, nil, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/samples/random?exclude=a,b&exclude=c&genre=Funk&era=1970s&category=japanese")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "abc123", body["externalId"])
	assert.Equal(t, "rare groove", body["genre"])
	assert.EqualValues(t, 2400, body["duration"])
	assert.NotContains(t, body, "era")

	assert.Equal(t, []string{"a", "b", "c"}, sampler.exclusions)
	assert.Equal(t, domain.SampleFilter{Genre: "Funk", Era: "1970s", Category: "japanese"}, sampler.filter)
}

func TestRandomSampleNotFoundAndError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		sampler *stubSampler
		status  int
		message string
	}{
		{"none", &stubSampler{}, http.StatusNotFound, "no sample available"},
		{"error", &stubSampler{err: errors.New("db down")}, http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/samples/random", nil)
			NewRouter(tc.sampler, nil, nil, nil).ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.message)
			assert.Empty(t, tc.sampler.exclusions)
		})
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewRouter(&stubSampler{}, stubPinger{}, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewRouter(&stubSampler{}, stubPinger{err: errors.New("closed")}, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "cratedigger_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	router := NewRouter(&stubSampler{}, nil, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "cratedigger_test_total 1"))

	rec = httptest.NewRecorder()
	NewRouter(&stubSampler{}, nil, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseExclusions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b"}, parseExclusions([]string{" a ,", ",b"}))
	assert.Empty(t, parseExclusions(nil))
}
