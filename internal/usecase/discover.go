package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"CrateDigger/internal/domain"
	"CrateDigger/internal/scoring"
)

// DiscoverRequest drives a paginated keyword discovery.
type DiscoverRequest struct {
	Query           string
	Exclusions      []string
	PublishedBefore *time.Time
	// PageToken continues a previous traversal; Resume loads the stored cursor when it is empty.
	PageToken string
	Resume    bool
	MaxPages  int
	// EarlyBreak stops after this many items pass the prefilter on one page; zero scans whole pages.
	// When the page still has unvisited items its own token is kept, so a resumed call revisits it.
	EarlyBreak int
	Verbose    bool
}

// Breakdown counts where raw search hits left the funnel.
type Breakdown struct {
	Raw          int
	Duplicate    int
	Denylist     int
	ModernYear   int
	NoIndicator  int
	Manipulation int
	Passed       int
}

// Rejection explains one prefiltered hit; collected in verbose mode only.
type Rejection struct {
	ExternalID string
	Title      string
	Stage      scoring.Stage
	Reason     string
}

// DiscoverResult reports one Discover call.
type DiscoverResult struct {
	Pages         int
	Added         int
	NextPageToken string
	EarlyBreak    bool
	Breakdown     Breakdown
	Rejections    []Rejection
}

// Discover walks search pages, prefilters snippets through the hard filter, and ingests survivors as
// search candidates. The continuation token is returned and stored so a later call can resume.
func (p *Pipeline) Discover(ctx context.Context, req DiscoverRequest) (DiscoverResult, error) {
	var res DiscoverResult
	if p.platform == nil {
		return res, fmt.Errorf("discover: metadata client is not configured")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return res, fmt.Errorf("discover: empty query")
	}
	cursorKey := strings.ToLower(strings.Join(strings.Fields(query), " "))

	token := req.PageToken
	if token == "" && req.Resume && p.cursors != nil {
		saved, err := p.cursors.LoadCursor(ctx, cursorKey)
		if err != nil {
			return res, fmt.Errorf("load cursor: %w", err)
		}
		token = saved
	}

	maxPages := max(req.MaxPages, 1)
	for res.Pages < maxPages {
		page, err := p.platform.Search(ctx, domain.SearchQuery{
			Query:           query,
			Exclusions:      req.Exclusions,
			PublishedBefore: req.PublishedBefore,
			PageToken:       token,
		})
		if err != nil {
			p.saveCursor(ctx, cursorKey, token)
			return res, fmt.Errorf("search page %d: %w", res.Pages+1, err)
		}
		res.Pages++

		partial, err := p.discoverPage(ctx, req, query, page.Items, &res)
		if err != nil {
			p.saveCursor(ctx, cursorKey, token)
			return res, err
		}
		if partial {
			break
		}

		token = page.NextPageToken
		if token == "" || res.EarlyBreak {
			break
		}
	}

	res.NextPageToken = token
	p.saveCursor(ctx, cursorKey, token)

	b := res.Breakdown
	p.info("discover done", "query", query, "pages", res.Pages, "raw", b.Raw, "duplicate", b.Duplicate,
		"denylist", b.Denylist, "modern_year", b.ModernYear, "no_indicator", b.NoIndicator,
		"manipulation", b.Manipulation, "passed", b.Passed, "added", res.Added, "early_break", res.EarlyBreak)
	p.observe("discover", "added", res.Added)
	return res, nil
}

// discoverPage reports partial when an early break left items of the page unvisited.
func (p *Pipeline) discoverPage(ctx context.Context, req DiscoverRequest, query string, items []domain.PlatformItem, res *DiscoverResult) (partial bool, err error) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ExternalID
	}
	known, err := p.candidates.ExistingIDs(ctx, ids)
	if err != nil {
		return false, fmt.Errorf("load known ids: %w", err)
	}

	passedOnPage := 0
	for i, item := range items {
		res.Breakdown.Raw++
		if known[item.ExternalID] {
			res.Breakdown.Duplicate++
			continue
		}

		v := p.engine.Evaluate(scoring.Input{
			Title:       item.Title,
			Channel:     item.ChannelTitle,
			Description: item.Description,
			Query:       query,
		})
		if v.Rejected {
			p.countRejection(res, item, v, req.Verbose)
			continue
		}

		res.Breakdown.Passed++
		passedOnPage++
		added, err := p.candidates.UpsertIfAbsent(ctx, item.ExternalID, domain.SourceSearch, query)
		if err != nil {
			return false, fmt.Errorf("store candidate %s: %w", item.ExternalID, err)
		}
		if added {
			res.Added++
		}

		if req.EarlyBreak > 0 && passedOnPage >= req.EarlyBreak {
			res.EarlyBreak = true
			return i < len(items)-1, nil
		}
	}
	return false, nil
}

func (p *Pipeline) countRejection(res *DiscoverResult, item domain.PlatformItem, v scoring.Verdict, verbose bool) {
	switch v.Stage {
	case scoring.StageDenylist:
		res.Breakdown.Denylist++
	case scoring.StageModernYear:
		res.Breakdown.ModernYear++
	case scoring.StageNoIndicator:
		res.Breakdown.NoIndicator++
	case scoring.StageManipulation:
		res.Breakdown.Manipulation++
	}
	if verbose {
		res.Rejections = append(res.Rejections, Rejection{
			ExternalID: item.ExternalID,
			Title:      item.Title,
			Stage:      v.Stage,
			Reason:     v.Reason,
		})
		p.debug("prefilter rejected", "id", item.ExternalID, "stage", v.Stage, "reason", v.Reason)
	}
}

func (p *Pipeline) saveCursor(ctx context.Context, key, token string) {
	if p.cursors == nil {
		return
	}
	if err := p.cursors.SaveCursor(ctx, key, token); err != nil {
		p.warn("save search cursor failed", "query", key, "error", err)
	}
}
