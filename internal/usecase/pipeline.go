package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.uber.org/multierr"

	"CrateDigger/internal/credentials"
	"CrateDigger/internal/domain"
	"CrateDigger/internal/ports"
	"CrateDigger/internal/scoring"
)

// DefaultMaxEnrichAttempts is how many passes may miss an id before it is closed without a sample.
const DefaultMaxEnrichAttempts = 3

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.CandidateSource
	Platform   ports.MetadataClient
	Candidates ports.CandidateRepository
	Catalog    ports.CatalogRepository
	Cursors    ports.CursorStore
	Engine     *scoring.Engine
	Observer   ports.StageObserver
	Logger     *slog.Logger

	// RelaxedSources score without the positive indicator requirement.
	RelaxedSources    []domain.SourceKind
	MaxEnrichAttempts int
}

// Pipeline implements ingest, enrich, score and promote over bounded batches.
type Pipeline struct {
	source     ports.CandidateSource
	platform   ports.MetadataClient
	candidates ports.CandidateRepository
	catalog    ports.CatalogRepository
	cursors    ports.CursorStore
	engine     *scoring.Engine
	observer   ports.StageObserver
	logger     *slog.Logger

	relaxed     map[domain.SourceKind]bool
	maxAttempts int
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	engine := deps.Engine
	if engine == nil {
		engine = scoring.Default()
	}
	maxAttempts := deps.MaxEnrichAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxEnrichAttempts
	}
	relaxed := make(map[domain.SourceKind]bool, len(deps.RelaxedSources))
	for _, k := range deps.RelaxedSources {
		relaxed[k] = true
	}

	return &Pipeline{
		source:      deps.Source,
		platform:    deps.Platform,
		candidates:  deps.Candidates,
		catalog:     deps.Catalog,
		cursors:     deps.Cursors,
		engine:      engine,
		observer:    deps.Observer,
		logger:      deps.Logger,
		relaxed:     relaxed,
		maxAttempts: maxAttempts,
	}
}

// IngestResult counts one ingest call.
type IngestResult struct {
	Found   int
	Added   int
	Skipped int
	Failed  int
	errs    error
}

// Err aggregates the per-item failures.
func (r IngestResult) Err() error { return r.errs }

// Ingest discovers ids from one source and stores the new ones. Re-ingesting is a no-op per known id.
func (p *Pipeline) Ingest(ctx context.Context, kind domain.SourceKind, ref string, maxItems int) (IngestResult, error) {
	var res IngestResult
	if p.source == nil {
		return res, fmt.Errorf("ingest: candidate source is not configured")
	}

	items, discoverErr := p.source.Discover(ctx, kind, ref, maxItems)
	if discoverErr != nil && len(items) == 0 {
		p.observe("ingest", "error", 1)
		return res, fmt.Errorf("discover %s %q: %w", kind, ref, discoverErr)
	}

	res.Found = len(items)
	for _, item := range items {
		added, err := p.candidates.UpsertIfAbsent(ctx, item.ExternalID, kind, ref)
		switch {
		case err != nil:
			res.Failed++
			res.errs = multierr.Append(res.errs, err)
			p.warn("ingest candidate failed", "id", item.ExternalID, "error", err)
		case added:
			res.Added++
		default:
			res.Skipped++
		}
	}

	p.observe("ingest", "added", res.Added)
	p.observe("ingest", "skipped", res.Skipped)
	p.observe("ingest", "failed", res.Failed)
	p.info("ingest done", "kind", kind, "ref", ref, "found", res.Found, "added", res.Added, "skipped", res.Skipped, "failed", res.Failed)

	if discoverErr != nil {
		return res, fmt.Errorf("discover %s %q (partial): %w", kind, ref, discoverErr)
	}
	return res, nil
}

// EnrichResult counts one enrich pass.
type EnrichResult struct {
	Selected  int
	Enriched  int
	Missing   int
	Abandoned int
	Failed    int
	errs      error
}

// Err aggregates the per-item failures.
func (r EnrichResult) Err() error { return r.errs }

// Enrich fetches metadata for up to limit unenriched candidates, oldest first. Ids absent from the
// platform response stay unenriched until they have missed MaxEnrichAttempts passes.
func (p *Pipeline) Enrich(ctx context.Context, limit int) (EnrichResult, error) {
	var res EnrichResult
	if p.platform == nil {
		return res, fmt.Errorf("enrich: metadata client is not configured")
	}

	batch, err := p.candidates.SelectUnenriched(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("select unenriched: %w", err)
	}
	res.Selected = len(batch)

	for chunk := range slices.Chunk(batch, domain.MaxBatchDetails) {
		ids := make([]string, len(chunk))
		for i, c := range chunk {
			ids[i] = c.ExternalID
		}

		details, err := p.platform.BatchDetails(ctx, ids)
		if err != nil {
			if isFatal(err) {
				p.observe("enrich", "aborted", 1)
				return res, fmt.Errorf("batch details: %w", err)
			}
			res.Failed += len(ids)
			res.errs = multierr.Append(res.errs, err)
			p.warn("batch details failed, leaving chunk for next run", "ids", len(ids), "transient", credentials.IsTransient(err), "error", err)
			continue
		}

		for _, id := range ids {
			p.enrichOne(ctx, id, details, &res)
		}
	}

	p.observe("enrich", "enriched", res.Enriched)
	p.observe("enrich", "missing", res.Missing)
	p.observe("enrich", "abandoned", res.Abandoned)
	p.observe("enrich", "failed", res.Failed)
	p.info("enrich done", "selected", res.Selected, "enriched", res.Enriched, "missing", res.Missing, "abandoned", res.Abandoned, "failed", res.Failed)
	return res, nil
}

func (p *Pipeline) enrichOne(ctx context.Context, id string, details map[string]domain.Enrichment, res *EnrichResult) {
	if e, ok := details[id]; ok {
		if err := p.candidates.WriteEnrichment(ctx, id, e); err != nil {
			res.Failed++
			res.errs = multierr.Append(res.errs, err)
			p.warn("write enrichment failed", "id", id, "error", err)
			return
		}
		res.Enriched++
		return
	}

	attempts, err := p.candidates.RecordEnrichMiss(ctx, id)
	if err != nil {
		res.Failed++
		res.errs = multierr.Append(res.errs, err)
		p.warn("record enrich miss failed", "id", id, "error", err)
		return
	}
	if attempts < p.maxAttempts {
		res.Missing++
		p.debug("id missing upstream", "id", id, "attempts", attempts)
		return
	}

	if err := p.candidates.MarkProcessed(ctx, id, ""); err != nil {
		res.Failed++
		res.errs = multierr.Append(res.errs, err)
		p.warn("close unavailable candidate failed", "id", id, "error", err)
		return
	}
	res.Abandoned++
	p.debug("candidate closed after repeated misses", "id", id, "attempts", attempts)
}

// ScoreResult counts one score pass.
type ScoreResult struct {
	Selected int
	Scored   int
	Accepted int
	Rejected int
	Failed   int
	errs     error
}

// Err aggregates the per-item failures.
func (r ScoreResult) Err() error { return r.errs }

// Score evaluates up to limit enriched candidates, oldest enrichment first. Hard rejections are
// persisted with score 0 so they are never evaluated again.
func (p *Pipeline) Score(ctx context.Context, limit int) (ScoreResult, error) {
	var res ScoreResult

	batch, err := p.candidates.SelectUnscored(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("select unscored: %w", err)
	}
	res.Selected = len(batch)

	for _, c := range batch {
		verdict := p.engine.Evaluate(p.scoringInput(ctx, c))
		if err := p.candidates.WriteScore(ctx, c.ExternalID, verdict.Score, verdict.Inference.Genre, verdict.Inference.Era); err != nil {
			res.Failed++
			res.errs = multierr.Append(res.errs, err)
			p.warn("write score failed", "id", c.ExternalID, "error", err)
			continue
		}

		res.Scored++
		if verdict.Accepted {
			res.Accepted++
		} else {
			res.Rejected++
			p.observe("score_reject", string(verdict.Stage), 1)
		}
		p.debug("scored", "id", c.ExternalID, "score", verdict.Score, "accepted", verdict.Accepted,
			"stage", verdict.Stage, "reason", verdict.Reason, "genre", verdict.Inference.Genre, "era", verdict.Inference.Era)
	}

	p.observe("score", "accepted", res.Accepted)
	p.observe("score", "rejected", res.Rejected)
	p.observe("score", "failed", res.Failed)
	p.info("score done", "selected", res.Selected, "scored", res.Scored, "accepted", res.Accepted, "rejected", res.Rejected, "failed", res.Failed)
	return res, nil
}

func (p *Pipeline) scoringInput(ctx context.Context, c domain.Candidate) scoring.Input {
	reputation := domain.DefaultChannelReputation
	if p.catalog != nil && c.Enrichment.ChannelID != "" {
		rep, err := p.catalog.ChannelReputation(ctx, c.Enrichment.ChannelID)
		if err != nil {
			p.warn("channel reputation lookup failed, using default", "channel", c.Enrichment.ChannelID, "error", err)
		} else {
			reputation = rep
		}
	}

	in := scoring.Input{
		Title:             c.Enrichment.Title,
		Channel:           c.Enrichment.ChannelTitle,
		Description:       c.Enrichment.Description,
		Tags:              c.Enrichment.Tags,
		DurationSeconds:   c.Enrichment.DurationSeconds,
		ChannelReputation: reputation,
		Relaxed:           p.relaxed[c.SourceKind],
	}
	if c.SourceKind == domain.SourceSearch {
		in.Query = c.SourceRef
	}
	return in
}

// PromoteResult counts one promote pass.
type PromoteResult struct {
	Selected int
	Promoted int
	Linked   int
	Failed   int
	errs     error
}

// Err aggregates the per-item failures.
func (r PromoteResult) Err() error { return r.errs }

// Promote moves up to limit eligible candidates into the catalog. minScore never drops below the
// engine's acceptance threshold. An id already in the catalog is linked rather than duplicated,
// including when a concurrent writer inserts it first. A candidate whose embeddable flag was never
// reported is promoted as embeddable; explicitly non-embeddable ones are never selected.
func (p *Pipeline) Promote(ctx context.Context, limit, minScore int) (PromoteResult, error) {
	var res PromoteResult
	if p.catalog == nil {
		return res, fmt.Errorf("promote: catalog repository is not configured")
	}

	floor := max(minScore, p.engine.AcceptThreshold())
	batch, err := p.candidates.SelectPromotable(ctx, limit, floor)
	if err != nil {
		return res, fmt.Errorf("select promotable: %w", err)
	}
	res.Selected = len(batch)

	for _, c := range batch {
		sampleID, created, err := p.promoteOne(ctx, c)
		if err == nil {
			err = p.candidates.MarkProcessed(ctx, c.ExternalID, sampleID)
		}
		if err != nil {
			res.Failed++
			res.errs = multierr.Append(res.errs, err)
			p.warn("promote failed", "id", c.ExternalID, "error", err)
			continue
		}
		if created {
			res.Promoted++
		} else {
			res.Linked++
		}
	}

	p.observe("promote", "promoted", res.Promoted)
	p.observe("promote", "linked", res.Linked)
	p.observe("promote", "failed", res.Failed)
	p.info("promote done", "selected", res.Selected, "promoted", res.Promoted, "linked", res.Linked, "failed", res.Failed, "min_score", floor)
	return res, nil
}

func (p *Pipeline) promoteOne(ctx context.Context, c domain.Candidate) (string, bool, error) {
	existing, err := p.catalog.FindByExternalID(ctx, c.ExternalID)
	if err != nil {
		return "", false, fmt.Errorf("lookup sample: %w", err)
	}
	if existing != nil {
		return existing.ID, false, nil
	}

	e := c.Enrichment
	if e.ChannelID != "" {
		if _, err := p.catalog.FindOrCreateChannel(ctx, e.ChannelID, e.ChannelTitle); err != nil {
			return "", false, fmt.Errorf("channel %s: %w", e.ChannelID, err)
		}
	}

	sample := domain.Sample{
		ExternalID:      c.ExternalID,
		Title:           e.Title,
		ChannelTitle:    e.ChannelTitle,
		ChannelID:       e.ChannelID,
		ThumbnailURL:    e.ThumbnailURL,
		DurationSeconds: e.DurationSeconds,
		Genre:           c.Genre,
		Era:             c.Era,
		Embeddable:      e.Embeddable == nil || *e.Embeddable,
		Tags:            e.Tags,
		SourceKind:      c.SourceKind,
	}
	if c.Score != nil {
		sample.QualityScore = *c.Score
	}
	if !e.PublishedAt.IsZero() {
		published := e.PublishedAt
		sample.PublishedAt = &published
	}

	stored, created, err := p.catalog.Upsert(ctx, sample)
	if errors.Is(err, domain.ErrConflict) {
		existing, findErr := p.catalog.FindByExternalID(ctx, c.ExternalID)
		if findErr != nil {
			return "", false, fmt.Errorf("lookup sample after conflict: %w", findErr)
		}
		if existing != nil {
			p.debug("sample inserted concurrently, linking", "id", c.ExternalID)
			return existing.ID, false, nil
		}
	}
	if err != nil {
		return "", false, fmt.Errorf("upsert sample: %w", err)
	}
	return stored.ID, created, nil
}

// BatchLimits bounds one RunBatch call.
type BatchLimits struct {
	Enrich   int
	Score    int
	Promote  int
	MinScore int
}

// BatchResult carries per-stage counts.
type BatchResult struct {
	Enrich  EnrichResult
	Score   ScoreResult
	Promote PromoteResult
}

// Err aggregates per-item failures of every stage.
func (r BatchResult) Err() error {
	return multierr.Combine(r.Enrich.Err(), r.Score.Err(), r.Promote.Err())
}

// RunBatch runs enrich, score and promote once each. A stage error stops the remaining stages.
func (p *Pipeline) RunBatch(ctx context.Context, limits BatchLimits) (BatchResult, error) {
	var (
		res BatchResult
		err error
	)
	if res.Enrich, err = p.Enrich(ctx, limits.Enrich); err != nil {
		return res, fmt.Errorf("enrich stage: %w", err)
	}
	if res.Score, err = p.Score(ctx, limits.Score); err != nil {
		return res, fmt.Errorf("score stage: %w", err)
	}
	if res.Promote, err = p.Promote(ctx, limits.Promote, limits.MinScore); err != nil {
		return res, fmt.Errorf("promote stage: %w", err)
	}
	return res, nil
}

// Stats reports the candidate backlog.
func (p *Pipeline) Stats(ctx context.Context) (domain.BacklogStats, error) {
	return p.candidates.CountByState(ctx)
}

// isFatal reports errors that must abort the current stage: missing credentials and exhausted quota.
func isFatal(err error) bool {
	return errors.Is(err, credentials.ErrNoCredentials) || errors.Is(err, credentials.ErrQuotaExhausted)
}

func (p *Pipeline) observe(stage, outcome string, n int) {
	if p.observer != nil && n > 0 {
		p.observer.ObserveStage(stage, outcome, n)
	}
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
