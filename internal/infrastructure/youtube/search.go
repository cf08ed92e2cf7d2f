package youtube

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"CrateDigger/internal/cache"
	"CrateDigger/internal/credentials"
	"CrateDigger/internal/domain"
)

type searchResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelID    string `json:"channelId"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

// Search returns one page of video hits for q. It always starts from the first credential.
func (c *Client) Search(ctx context.Context, q domain.SearchQuery) (domain.Page, error) {
	size := pageSize(q.MaxResults)
	var before string
	if q.PublishedBefore != nil {
		before = q.PublishedBefore.UTC().Format(time.RFC3339)
	}

	key := cache.Key("search", cache.NormalizeQuery(q.Query), cache.NormalizeSet(q.Exclusions), before, q.PageToken, strconv.Itoa(size))
	if page, ok := cache.GetJSON[domain.Page](ctx, c.cache, key); ok {
		c.debug("search cache hit", "query", q.Query, "page_token", q.PageToken)
		return page, nil
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("q", RenderQuery(q.Query, q.Exclusions))
	params.Set("maxResults", strconv.Itoa(size))
	if before != "" {
		params.Set("publishedBefore", before)
	}
	if q.PageToken != "" {
		params.Set("pageToken", q.PageToken)
	}

	var resp searchResponse
	if err := c.get(ctx, credentials.FixedOrder, "search", params, &resp); err != nil {
		return domain.Page{}, err
	}

	page := domain.Page{NextPageToken: resp.NextPageToken, Items: make([]domain.PlatformItem, 0, len(resp.Items))}
	for _, it := range resp.Items {
		if it.ID.VideoID == "" {
			continue
		}
		page.Items = append(page.Items, domain.PlatformItem{
			ExternalID:   it.ID.VideoID,
			Title:        it.Snippet.Title,
			Description:  it.Snippet.Description,
			ChannelID:    it.Snippet.ChannelID,
			ChannelTitle: it.Snippet.ChannelTitle,
			PublishedAt:  parseTime(it.Snippet.PublishedAt),
		})
	}

	cache.SetJSON(ctx, c.cache, key, page, c.ttl.SearchTTL)
	return page, nil
}

// RenderQuery appends each exclusion as a -term operator, quoting multi-word terms.
func RenderQuery(query string, exclusions []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(query))
	for _, ex := range exclusions {
		ex = strings.TrimSpace(strings.Trim(ex, `"`))
		if ex == "" {
			continue
		}
		b.WriteString(" -")
		if strings.ContainsAny(ex, " \t") {
			b.WriteString(strconv.Quote(ex))
		} else {
			b.WriteString(ex)
		}
	}
	return b.String()
}
