package youtube

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"unicode/utf8"

	"CrateDigger/internal/cache"
	"CrateDigger/internal/credentials"
	"CrateDigger/internal/domain"
)

const maxDescriptionRunes = 2000

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string     `json:"title"`
			Description  string     `json:"description"`
			ChannelID    string     `json:"channelId"`
			ChannelTitle string     `json:"channelTitle"`
			Tags         []string   `json:"tags"`
			PublishedAt  string     `json:"publishedAt"`
			Thumbnails   thumbnails `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Status *struct {
			Embeddable *bool `json:"embeddable"`
		} `json:"status"`
	} `json:"items"`
}

// BatchDetails fetches metadata for 1 to 50 ids in a single call. Ids missing from the
// result were deleted, made private or never existed.
func (c *Client) BatchDetails(ctx context.Context, ids []string) (map[string]domain.Enrichment, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return map[string]domain.Enrichment{}, nil
	}
	if len(unique) > domain.MaxBatchDetails {
		return nil, fmt.Errorf("batch details: %d ids exceeds limit of %d", len(unique), domain.MaxBatchDetails)
	}

	sorted := slices.Clone(unique)
	slices.Sort(sorted)
	key := cache.Key("videos", sorted...)
	if details, ok := cache.GetJSON[map[string]domain.Enrichment](ctx, c.cache, key); ok {
		return details, nil
	}

	params := url.Values{}
	params.Set("part", "snippet,contentDetails,status")
	params.Set("id", strings.Join(unique, ","))
	params.Set("maxResults", fmt.Sprint(len(unique)))

	var resp videosResponse
	if err := c.get(ctx, credentials.RoundRobin, "videos", params, &resp); err != nil {
		return nil, err
	}

	details := make(map[string]domain.Enrichment, len(resp.Items))
	for _, it := range resp.Items {
		if it.ID == "" {
			continue
		}
		e := domain.Enrichment{
			Title:           it.Snippet.Title,
			Description:     truncateRunes(it.Snippet.Description, maxDescriptionRunes),
			ChannelID:       it.Snippet.ChannelID,
			ChannelTitle:    it.Snippet.ChannelTitle,
			ThumbnailURL:    it.Snippet.Thumbnails.best(),
			DurationSeconds: ParseDuration(it.ContentDetails.Duration),
			Tags:            it.Snippet.Tags,
			PublishedAt:     parseTime(it.Snippet.PublishedAt),
		}
		if it.Status != nil {
			e.Embeddable = it.Status.Embeddable
		}
		details[it.ID] = e
	}

	c.debug("batch details fetched", "requested", len(unique), "returned", len(details))
	cache.SetJSON(ctx, c.cache, key, details, c.ttl.DetailsTTL)
	return details, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
