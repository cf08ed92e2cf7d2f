// Package httpapi serves the read-only consumer surface: one random catalog sample per request.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"CrateDigger/internal/domain"
)

// RandomSampler picks one catalog sample matching a filter.
type RandomSampler interface {
	Random(ctx context.Context, f domain.SampleFilter, exclusions []string) (domain.SampleView, bool, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter mounts the API. metrics may be nil.
func NewRouter(sampler RandomSampler, db Pinger, metrics http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		requestLogger(logger),
	)

	r.Get("/healthz", Healthz(db))
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api/v1/samples", func(r chi.Router) {
		r.Get("/random", RandomSample(sampler, logger))
	})

	return r
}

// Healthz answers 200 when storage responds within two seconds.
func Healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// RandomSample serves GET /api/v1/samples/random?exclude=a,b&genre=&era=&category=.
func RandomSample(sampler RandomSampler, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := domain.SampleFilter{
			Genre:    strings.TrimSpace(q.Get("genre")),
			Era:      strings.TrimSpace(q.Get("era")),
			Category: strings.TrimSpace(q.Get("category")),
		}

		view, ok, err := sampler.Random(r.Context(), filter, parseExclusions(q["exclude"]))
		if err != nil {
			logger.Error("random sample failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no sample available"})
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// parseExclusions accepts repeated and comma separated values, preserving order.
func parseExclusions(values []string) []string {
	var out []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
