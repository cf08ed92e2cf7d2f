package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode"

	"CrateDigger/internal/domain"
	"CrateDigger/internal/ports"
)

const (
	DefaultMaxExclusions = 500
	scriptScanPage       = 500
)

// scriptCategories are category values answered by scanning titles for a writing system.
var scriptCategories = map[string][]*unicode.RangeTable{
	"japanese":   {unicode.Hiragana, unicode.Katakana, unicode.Han},
	"korean":     {unicode.Hangul},
	"chinese":    {unicode.Han},
	"cyrillic":   {unicode.Cyrillic},
	"russian":    {unicode.Cyrillic},
	"arabic":     {unicode.Arabic},
	"persian":    {unicode.Arabic},
	"greek":      {unicode.Greek},
	"hebrew":     {unicode.Hebrew},
	"thai":       {unicode.Thai},
	"hindi":      {unicode.Devanagari},
	"devanagari": {unicode.Devanagari},
	"armenian":   {unicode.Armenian},
	"georgian":   {unicode.Georgian},
	"ethiopian":  {unicode.Ethiopic},
}

// RetrievalDeps wires the read path.
type RetrievalDeps struct {
	Catalog  ports.CatalogRepository
	Observer ports.StageObserver
	Logger   *slog.Logger
	// MaxExclusions keeps only the newest exclusions; RecycleAttempts bounds the halve-and-retry loop.
	MaxExclusions   int
	RecycleAttempts int
	// IntN returns a uniform int in [0, n); defaults to math/rand/v2.
	IntN func(n int) int
}

// Retrieval selects random catalog samples for end users.
type Retrieval struct {
	catalog       ports.CatalogRepository
	observer      ports.StageObserver
	logger        *slog.Logger
	maxExclusions int
	recycle       int
	intN          func(n int) int
}

// NewRetrieval constructs the read path.
func NewRetrieval(deps RetrievalDeps) *Retrieval {
	r := &Retrieval{
		catalog:       deps.Catalog,
		observer:      deps.Observer,
		logger:        deps.Logger,
		maxExclusions: deps.MaxExclusions,
		recycle:       max(deps.RecycleAttempts, 0),
		intN:          deps.IntN,
	}
	if r.maxExclusions <= 0 {
		r.maxExclusions = DefaultMaxExclusions
	}
	if r.intN == nil {
		r.intN = rand.IntN
	}
	return r
}

// Random returns one sample matching f that is not excluded. ok is false when none is available.
// Exclusions are ordered oldest to newest; when recycling is enabled and everything is excluded,
// the oldest half (rounded up) is released and the lookup retried.
func (r *Retrieval) Random(ctx context.Context, f domain.SampleFilter, exclusions []string) (domain.SampleView, bool, error) {
	excl := cleanExclusions(exclusions, r.maxExclusions)

	for attempt := 0; ; attempt++ {
		s, err := r.pick(ctx, f, excl)
		if err != nil {
			r.observe("error")
			return domain.SampleView{}, false, err
		}
		if s != nil {
			r.observe("hit")
			return s.View(), true, nil
		}
		if attempt >= r.recycle || len(excl) == 0 {
			break
		}
		excl = excl[(len(excl)+1)/2:]
		r.debug("recycling exclusions", "attempt", attempt+1, "remaining", len(excl))
	}

	r.observe("none")
	return domain.SampleView{}, false, nil
}

func (r *Retrieval) pick(ctx context.Context, f domain.SampleFilter, excl []string) (*domain.Sample, error) {
	if tables, ok := scriptCategories[strings.ToLower(strings.TrimSpace(f.Category))]; ok {
		s, err := r.pickByScript(ctx, f, excl, tables)
		if err == nil {
			return s, nil
		}
		r.observe("fallback")
		r.warn("script category lookup failed, using generic filter", "category", f.Category, "error", err)
	}

	n, err := r.catalog.CountMatching(ctx, f, excl)
	if err != nil {
		return nil, fmt.Errorf("count matching samples: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	s, err := r.catalog.FindAtOffset(ctx, f, excl, r.intN(n))
	if err != nil {
		return nil, fmt.Errorf("find sample at offset: %w", err)
	}
	return s, nil
}

func (r *Retrieval) pickByScript(ctx context.Context, f domain.SampleFilter, excl []string, tables []*unicode.RangeTable) (*domain.Sample, error) {
	base := f
	base.Category = ""

	var (
		matches []domain.Sample
		after   string
	)
	for {
		page, err := r.catalog.ListMatching(ctx, base, excl, after, scriptScanPage)
		if err != nil {
			return nil, fmt.Errorf("list samples for script scan: %w", err)
		}
		for _, s := range page {
			if containsScript(s.Title, tables) || containsScript(s.ChannelTitle, tables) {
				matches = append(matches, s)
			}
		}
		if len(page) < scriptScanPage {
			break
		}
		after = page[len(page)-1].ExternalID
	}
	if len(matches) == 0 {
		return nil, nil
	}
	picked := matches[r.intN(len(matches))]
	return &picked, nil
}

func containsScript(s string, tables []*unicode.RangeTable) bool {
	for _, ch := range s {
		if unicode.IsOneOf(tables, ch) {
			return true
		}
	}
	return false
}

// cleanExclusions drops blanks and duplicates, keeping the newest limit entries in order.
func cleanExclusions(in []string, limit int) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for i := len(in) - 1; i >= 0 && len(out) < limit; i-- {
		id := strings.TrimSpace(in[i])
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Reverse(out)
	return out
}

func (r *Retrieval) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveRetrieval(outcome)
	}
}

func (r *Retrieval) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Retrieval) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
