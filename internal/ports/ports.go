package ports

import (
	"context"
	"time"

	"CrateDigger/internal/domain"
)

// CandidateSource discovers platform items for a configured source.
type CandidateSource interface {
	Discover(ctx context.Context, kind domain.SourceKind, ref string, maxItems int) ([]domain.PlatformItem, error)
}

// MetadataClient talks to the video platform.
type MetadataClient interface {
	Search(ctx context.Context, q domain.SearchQuery) (domain.Page, error)
	BatchDetails(ctx context.Context, ids []string) (map[string]domain.Enrichment, error)
	Enumerate(ctx context.Context, kind domain.SourceKind, ref, pageToken string) (domain.Page, error)
}

// CandidateRepository persists discovered ids and their pipeline state.
type CandidateRepository interface {
	UpsertIfAbsent(ctx context.Context, externalID string, kind domain.SourceKind, ref string) (bool, error)
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	SelectUnenriched(ctx context.Context, limit int) ([]domain.Candidate, error)
	SelectUnscored(ctx context.Context, limit int) ([]domain.Candidate, error)
	SelectPromotable(ctx context.Context, limit, minScore int) ([]domain.Candidate, error)
	WriteEnrichment(ctx context.Context, externalID string, e domain.Enrichment) error
	// RecordEnrichMiss bumps the miss counter and returns the new attempt count.
	RecordEnrichMiss(ctx context.Context, externalID string) (int, error)
	WriteScore(ctx context.Context, externalID string, score int, genre, era string) error
	MarkProcessed(ctx context.Context, externalID, sampleID string) error
	CountByState(ctx context.Context) (domain.BacklogStats, error)
}

// CursorStore keeps search continuation tokens next to the candidates.
type CursorStore interface {
	SaveCursor(ctx context.Context, query, token string) error
	LoadCursor(ctx context.Context, query string) (string, error)
}

// CatalogRepository persists promoted samples and channel reputation.
type CatalogRepository interface {
	FindByExternalID(ctx context.Context, externalID string) (*domain.Sample, error)
	// Upsert inserts s or refreshes the existing row; created reports which happened.
	Upsert(ctx context.Context, s domain.Sample) (stored domain.Sample, created bool, err error)
	CountMatching(ctx context.Context, f domain.SampleFilter, exclusions []string) (int, error)
	FindAtOffset(ctx context.Context, f domain.SampleFilter, exclusions []string, offset int) (*domain.Sample, error)
	// ListMatching pages through matching samples by external id; after is the last id of the previous page.
	ListMatching(ctx context.Context, f domain.SampleFilter, exclusions []string, after string, limit int) ([]domain.Sample, error)
	FindOrCreateChannel(ctx context.Context, externalChannelID, name string) (domain.Channel, error)
	ChannelReputation(ctx context.Context, externalChannelID string) (float64, error)
}

// Notifier streams run reports to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// StageObserver receives pipeline and retrieval outcomes (metrics).
type StageObserver interface {
	ObserveStage(stage, outcome string, count int)
	ObserveRetrieval(outcome string)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
