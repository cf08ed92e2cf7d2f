package domain

import "time"

// MaxBatchDetails is the largest id batch the platform accepts in one details call.
const MaxBatchDetails = 50

// PlatformItem is one search or enumeration hit. Snippet fields are best-effort.
type PlatformItem struct {
	ExternalID   string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	Description  string    `json:"description,omitempty"`
	ChannelID    string    `json:"channelId,omitempty"`
	ChannelTitle string    `json:"channelTitle,omitempty"`
	PublishedAt  time.Time `json:"publishedAt,omitzero"`
}

// Page is one page of platform results. NextPageToken is empty on the last page.
type Page struct {
	Items         []PlatformItem `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

// SearchQuery describes one keyword search page request.
type SearchQuery struct {
	Query string
	// Exclusions are rendered as -term operators.
	Exclusions      []string
	PublishedBefore *time.Time
	PageToken       string
	MaxResults      int
}
