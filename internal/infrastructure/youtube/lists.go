package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"CrateDigger/internal/cache"
	"CrateDigger/internal/credentials"
	"CrateDigger/internal/domain"
)

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title                  string `json:"title"`
			Description            string `json:"description"`
			VideoOwnerChannelID    string `json:"videoOwnerChannelId"`
			VideoOwnerChannelTitle string `json:"videoOwnerChannelTitle"`
		} `json:"snippet"`
		ContentDetails struct {
			VideoID          string `json:"videoId"`
			VideoPublishedAt string `json:"videoPublishedAt"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type channelsResponse struct {
	Items []struct {
		ID             string `json:"id"`
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// Enumerate lists one page of a playlist, or of a channel's uploads when kind is channel.
func (c *Client) Enumerate(ctx context.Context, kind domain.SourceKind, ref, pageToken string) (domain.Page, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Page{}, fmt.Errorf("enumerate %s: empty reference", kind)
	}

	playlistID := ref
	switch kind {
	case domain.SourcePlaylist:
	case domain.SourceChannel:
		uploads, err := c.uploadsPlaylist(ctx, ref)
		if err != nil {
			return domain.Page{}, err
		}
		playlistID = uploads
	default:
		return domain.Page{}, fmt.Errorf("enumerate: unsupported source kind %q", kind)
	}

	key := cache.Key("list", playlistID, pageToken)
	if page, ok := cache.GetJSON[domain.Page](ctx, c.cache, key); ok {
		return page, nil
	}

	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("playlistId", playlistID)
	params.Set("maxResults", strconv.Itoa(maxPageSize))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp playlistItemsResponse
	if err := c.get(ctx, credentials.RoundRobin, "playlistItems", params, &resp); err != nil {
		return domain.Page{}, err
	}

	page := domain.Page{NextPageToken: resp.NextPageToken, Items: make([]domain.PlatformItem, 0, len(resp.Items))}
	for _, it := range resp.Items {
		if it.ContentDetails.VideoID == "" {
			continue
		}
		page.Items = append(page.Items, domain.PlatformItem{
			ExternalID:   it.ContentDetails.VideoID,
			Title:        it.Snippet.Title,
			Description:  it.Snippet.Description,
			ChannelID:    it.Snippet.VideoOwnerChannelID,
			ChannelTitle: it.Snippet.VideoOwnerChannelTitle,
			PublishedAt:  parseTime(it.ContentDetails.VideoPublishedAt),
		})
	}

	cache.SetJSON(ctx, c.cache, key, page, c.ttl.ListTTL)
	return page, nil
}

// uploadsPlaylist resolves a channel id or @handle to its uploads playlist.
func (c *Client) uploadsPlaylist(ctx context.Context, channel string) (string, error) {
	key := cache.Key("uploads", channel)
	if id, ok := cache.GetJSON[string](ctx, c.cache, key); ok {
		return id, nil
	}

	params := url.Values{}
	params.Set("part", "contentDetails")
	if strings.HasPrefix(channel, "@") {
		params.Set("forHandle", channel)
	} else {
		params.Set("id", channel)
	}

	var resp channelsResponse
	if err := c.get(ctx, credentials.RoundRobin, "channels", params, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails.RelatedPlaylists.Uploads == "" {
		return "", fmt.Errorf("channel %s: %w", channel, ErrNotFound)
	}

	uploads := resp.Items[0].ContentDetails.RelatedPlaylists.Uploads
	cache.SetJSON(ctx, c.cache, key, uploads, c.ttl.ListTTL)
	return uploads, nil
}
