package domain

import "time"

// SourceKind identifies how a candidate was discovered.
type SourceKind string

const (
	SourceSearch   SourceKind = "search"
	SourcePlaylist SourceKind = "playlist"
	SourceChannel  SourceKind = "channel"
	SourcePage     SourceKind = "page"
)

// Valid reports whether k is a known discovery source.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceSearch, SourcePlaylist, SourceChannel, SourcePage:
		return true
	}
	return false
}

// CandidateState enumerates pipeline milestones.
type CandidateState string

const (
	StateDiscovered CandidateState = "discovered"
	StateEnriched   CandidateState = "enriched"
	StateScored     CandidateState = "scored"
	StateProcessed  CandidateState = "processed"
)

// Enrichment is the platform metadata written back by the enrich stage.
type Enrichment struct {
	Title           string
	Description     string
	ChannelID       string
	ChannelTitle    string
	ThumbnailURL    string
	DurationSeconds int
	Tags            []string
	PublishedAt     time.Time
	// Embeddable is nil when the platform did not report it.
	Embeddable *bool
}

// Candidate is a discovered external item awaiting enrichment, scoring and promotion.
type Candidate struct {
	ExternalID   string
	SourceKind   SourceKind
	SourceRef    string
	DiscoveredAt time.Time

	Enrichment     Enrichment
	EnrichedAt     *time.Time
	EnrichAttempts int

	Score    *int
	Genre    string
	Era      string
	ScoredAt *time.Time

	ProcessedAt *time.Time
	SampleID    string
}

// State derives the lifecycle position from the stage timestamps.
func (c Candidate) State() CandidateState {
	switch {
	case c.ProcessedAt != nil:
		return StateProcessed
	case c.ScoredAt != nil:
		return StateScored
	case c.EnrichedAt != nil:
		return StateEnriched
	default:
		return StateDiscovered
	}
}

// BacklogStats counts candidates per lifecycle state.
type BacklogStats struct {
	Discovered int
	Enriched   int
	Scored     int
	Processed  int
	Promoted   int
}
