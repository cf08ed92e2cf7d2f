package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"CrateDigger/internal/domain"
	"CrateDigger/internal/scanner"
)

var videoIDRE = regexp.MustCompile(`(?:youtube(?:-nocookie)?\.com/(?:watch\?(?:.*&)?v=|embed/|shorts/|v/)|youtu\.be/)([a-zA-Z0-9_-]{11})`)

// extractVideoID pulls the 11-char video id from any supported link format.
func extractVideoID(rawURL string) string {
	m := videoIDRE.FindStringSubmatch(rawURL)
	if len(m) >= 2 {
		return m[1]
	}
	return ""
}

// PageScanner reads a single curated HTML page and collects the videos it links or embeds.
type PageScanner struct {
	client *http.Client
}

// NewPageScanner wires an HTTP client; nil falls back to a 20 second timeout client.
func NewPageScanner(client *http.Client) *PageScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &PageScanner{client: client}
}

// Kind identifies the strategy inside the registry.
func (p *PageScanner) Kind() domain.SourceKind {
	return domain.SourcePage
}

// Scan fetches req.Ref and extracts up to MaxItems video ids in document order.
func (p *PageScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	base, err := url.Parse(req.Ref)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return scanner.Result{}, fmt.Errorf("page source: invalid url %q", req.Ref)
	}

	doc, err := p.fetchDocument(ctx, base.String())
	if err != nil {
		return scanner.Result{}, fmt.Errorf("page %s: %w", base.Host, err)
	}
	return scanner.Result{Items: extractItems(doc, base, req.Limit())}, nil
}

func (p *PageScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "CrateDigger/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func extractItems(doc *goquery.Document, base *url.URL, limit int) []domain.PlatformItem {
	var (
		items []domain.PlatformItem
		seen  = map[string]struct{}{}
	)

	doc.Find("a[href], iframe[src], embed[src], [data-video-url]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := firstAttr(sel, "href", "src", "data-video-url")
		ref, err := base.Parse(strings.TrimSpace(raw))
		if err != nil {
			return true
		}
		id := extractVideoID(ref.String())
		if id == "" {
			return true
		}
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}

		title := strings.TrimSpace(sel.AttrOr("title", ""))
		if title == "" && goquery.NodeName(sel) == "a" {
			title = strings.Join(strings.Fields(sel.Text()), " ")
		}
		items = append(items, domain.PlatformItem{ExternalID: id, Title: title})
		return len(items) < limit
	})

	return items
}

func firstAttr(sel *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v, ok := sel.Attr(n); ok && v != "" {
			return v
		}
	}
	return ""
}
