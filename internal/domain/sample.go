package domain

import "time"

// DefaultChannelReputation is assigned to channels on first sight.
const DefaultChannelReputation = 0.5

// Sample is a promoted, catalog-visible recording.
type Sample struct {
	ID              string
	ExternalID      string
	Title           string
	ChannelTitle    string
	ChannelID       string
	ThumbnailURL    string
	DurationSeconds int
	Genre           string
	Era             string
	QualityScore    int
	Embeddable      bool
	Tags            []string
	SourceKind      SourceKind
	PublishedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// View projects the sample onto the consumer-facing read contract.
func (s Sample) View() SampleView {
	view := SampleView{
		ExternalID:   s.ExternalID,
		Title:        s.Title,
		ChannelTitle: s.ChannelTitle,
		ChannelID:    s.ChannelID,
		ThumbnailURL: s.ThumbnailURL,
		Genre:        s.Genre,
		Era:          s.Era,
	}
	if s.PublishedAt != nil {
		view.PublishedAt = s.PublishedAt.UTC().Format(time.RFC3339)
	}
	if s.DurationSeconds > 0 {
		d := s.DurationSeconds
		view.DurationSeconds = &d
	}
	return view
}

// SampleView is the record handed to end-user applications.
type SampleView struct {
	ExternalID      string `json:"externalId"`
	Title           string `json:"title"`
	ChannelTitle    string `json:"channelTitle"`
	ChannelID       string `json:"channelId,omitempty"`
	ThumbnailURL    string `json:"thumbnailUrl"`
	PublishedAt     string `json:"publishedAt,omitempty"`
	Genre           string `json:"genre,omitempty"`
	Era             string `json:"era,omitempty"`
	DurationSeconds *int   `json:"duration,omitempty"`
}

// Channel carries per-channel reputation read by the scorer.
type Channel struct {
	ExternalID string
	Name       string
	Reputation float64
	CreatedAt  time.Time
}

// SampleFilter narrows retrieval. Empty fields do not filter.
type SampleFilter struct {
	Genre    string
	Era      string
	Category string
}
