package discovery

import (
	"context"
	"fmt"

	"CrateDigger/internal/domain"
	"CrateDigger/internal/scanner"
)

// Searcher runs keyword searches page by page.
type Searcher interface {
	Search(ctx context.Context, q domain.SearchQuery) (domain.Page, error)
}

// Enumerator lists playlists and channel uploads page by page.
type Enumerator interface {
	Enumerate(ctx context.Context, kind domain.SourceKind, ref, pageToken string) (domain.Page, error)
}

// SearchScanner collects hits for a keyword query across result pages.
type SearchScanner struct {
	client Searcher
}

// NewSearchScanner wires a platform searcher.
func NewSearchScanner(client Searcher) *SearchScanner {
	return &SearchScanner{client: client}
}

// Kind identifies the strategy inside the registry.
func (s *SearchScanner) Kind() domain.SourceKind {
	return domain.SourceSearch
}

// Scan follows continuation tokens until MaxItems ids are collected or results run out.
func (s *SearchScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	return collect(ctx, req, func(ctx context.Context, token string) (domain.Page, error) {
		return s.client.Search(ctx, domain.SearchQuery{Query: req.Ref, PageToken: token})
	})
}

// ListScanner enumerates a playlist or a channel's uploads.
type ListScanner struct {
	client Enumerator
	kind   domain.SourceKind
}

// NewPlaylistScanner enumerates playlists by id.
func NewPlaylistScanner(client Enumerator) *ListScanner {
	return &ListScanner{client: client, kind: domain.SourcePlaylist}
}

// NewChannelScanner enumerates channel uploads by channel id or @handle.
func NewChannelScanner(client Enumerator) *ListScanner {
	return &ListScanner{client: client, kind: domain.SourceChannel}
}

// Kind identifies the strategy inside the registry.
func (l *ListScanner) Kind() domain.SourceKind {
	return l.kind
}

// Scan pages through the list until MaxItems ids are collected.
func (l *ListScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	return collect(ctx, req, func(ctx context.Context, token string) (domain.Page, error) {
		return l.client.Enumerate(ctx, l.kind, req.Ref, token)
	})
}

type pageFunc func(ctx context.Context, token string) (domain.Page, error)

func collect(ctx context.Context, req scanner.Request, fetch pageFunc) (scanner.Result, error) {
	if req.Ref == "" {
		return scanner.Result{}, fmt.Errorf("%s source: empty reference", req.Kind)
	}

	limit := req.Limit()
	seen := map[string]struct{}{}
	result := scanner.Result{}
	token := req.PageToken

	for {
		page, err := fetch(ctx, token)
		if err != nil {
			return result, fmt.Errorf("%s %q: %w", req.Kind, req.Ref, err)
		}
		for _, item := range page.Items {
			if _, ok := seen[item.ExternalID]; ok {
				continue
			}
			seen[item.ExternalID] = struct{}{}
			result.Items = append(result.Items, item)
		}

		token = page.NextPageToken
		if token == "" || len(result.Items) >= limit {
			break
		}
	}

	if len(result.Items) > limit {
		result.Items = result.Items[:limit]
	}
	result.NextPageToken = token
	return result, nil
}
