package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"CrateDigger/internal/domain"
	"CrateDigger/internal/ports"
)

var candidateColumns = []string{
	"external_id", "source_kind", "source_ref", "discovered_at",
	"title", "description", "channel_id", "channel_title", "thumbnail_url", "duration_seconds", "tags",
	"published_at", "embeddable", "enriched_at", "enrich_attempts",
	"score", "genre", "era", "scored_at", "processed_at", "sample_id",
}

// CandidateRepository persists discovered ids and their pipeline state.
type CandidateRepository struct {
	store *Store
}

var (
	_ ports.CandidateRepository = (*CandidateRepository)(nil)
	_ ports.CursorStore         = (*CandidateRepository)(nil)
)

// UpsertIfAbsent inserts a discovered id; existing rows are left untouched. It reports whether a row was added.
func (r *CandidateRepository) UpsertIfAbsent(ctx context.Context, externalID string, kind domain.SourceKind, ref string) (bool, error) {
	query, args, err := r.store.sb.Insert("candidates").
		Columns("external_id", "source_kind", "source_ref", "discovered_at").
		Values(externalID, string(kind), ref, r.store.timestamp()).
		Suffix("ON CONFLICT (external_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert candidate: %w", err)
	}

	res, err := r.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert candidate %s: %w", externalID, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ExistingIDs returns the subset of ids already stored as candidates.
func (r *CandidateRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := r.store.sb.Select("external_id").From("candidates").Where(sq.Eq{"external_id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build existing ids: %w", err)
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing ids: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, closeRows(rows, fmt.Errorf("scan id: %w", err))
		}
		result[id] = true
	}
	if err := closeRows(rows, nil); err != nil {
		return nil, err
	}
	return result, nil
}

// SelectUnenriched returns candidates awaiting metadata, oldest discovery first.
func (r *CandidateRepository) SelectUnenriched(ctx context.Context, limit int) ([]domain.Candidate, error) {
	return r.selectCandidates(ctx, limit, sq.And{
		sq.Eq{"enriched_at": nil},
		sq.Eq{"processed_at": nil},
	}, "discovered_at", "external_id")
}

// SelectUnscored returns enriched candidates awaiting a score, oldest enrichment first.
func (r *CandidateRepository) SelectUnscored(ctx context.Context, limit int) ([]domain.Candidate, error) {
	return r.selectCandidates(ctx, limit, sq.And{
		sq.NotEq{"enriched_at": nil},
		sq.Eq{"scored_at": nil},
		sq.Eq{"processed_at": nil},
	}, "enriched_at", "external_id")
}

// SelectPromotable returns scored, unprocessed candidates at or above minScore with a title and
// an embeddable flag that is true or unknown.
func (r *CandidateRepository) SelectPromotable(ctx context.Context, limit, minScore int) ([]domain.Candidate, error) {
	return r.selectCandidates(ctx, limit, sq.And{
		sq.NotEq{"scored_at": nil},
		sq.Eq{"processed_at": nil},
		sq.GtOrEq{"score": minScore},
		sq.NotEq{"title": nil},
		sq.NotEq{"title": ""},
		sq.Or{sq.Eq{"embeddable": nil}, sq.Eq{"embeddable": true}},
	}, "scored_at", "external_id")
}

func (r *CandidateRepository) selectCandidates(ctx context.Context, limit int, where sq.Sqlizer, orderBy ...string) ([]domain.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	query, args, err := r.store.sb.Select(candidateColumns...).
		From("candidates").
		Where(where).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidate select: %w", err)
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}

	var out []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, closeRows(rows, err)
		}
		out = append(out, c)
	}
	if err := closeRows(rows, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// Get loads one candidate; a missing id yields nil.
func (r *CandidateRepository) Get(ctx context.Context, externalID string) (*domain.Candidate, error) {
	query, args, err := r.store.sb.Select(candidateColumns...).From("candidates").Where(sq.Eq{"external_id": externalID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidate get: %w", err)
	}
	c, err := scanCandidate(r.store.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// WriteEnrichment stores platform metadata and stamps enriched_at. Already enriched rows are left alone.
func (r *CandidateRepository) WriteEnrichment(ctx context.Context, externalID string, e domain.Enrichment) error {
	tags, err := json.Marshal(nonNilTags(e.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	return r.update(ctx, "write enrichment", r.store.sb.Update("candidates").
		Set("title", e.Title).
		Set("description", e.Description).
		Set("channel_id", nullString(e.ChannelID)).
		Set("channel_title", e.ChannelTitle).
		Set("thumbnail_url", e.ThumbnailURL).
		Set("duration_seconds", nullInt(e.DurationSeconds)).
		Set("tags", string(tags)).
		Set("published_at", nullTime(e.PublishedAt)).
		Set("embeddable", nullBool(e.Embeddable)).
		Set("enriched_at", r.store.timestamp()).
		Where(sq.Eq{"external_id": externalID, "enriched_at": nil}))
}

// RecordEnrichMiss increments the miss counter of an id the platform did not return.
func (r *CandidateRepository) RecordEnrichMiss(ctx context.Context, externalID string) (int, error) {
	query, args, err := r.store.sb.Update("candidates").
		Set("enrich_attempts", sq.Expr("enrich_attempts + 1")).
		Where(sq.Eq{"external_id": externalID}).
		Suffix("RETURNING enrich_attempts").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build enrich miss: %w", err)
	}

	var attempts int
	if err := r.store.db.QueryRowContext(ctx, query, args...).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("record enrich miss %s: %w", externalID, err)
	}
	return attempts, nil
}

// WriteScore persists the score and inferred annotations once.
func (r *CandidateRepository) WriteScore(ctx context.Context, externalID string, score int, genre, era string) error {
	return r.update(ctx, "write score", r.store.sb.Update("candidates").
		Set("score", score).
		Set("genre", nullString(genre)).
		Set("era", nullString(era)).
		Set("scored_at", r.store.timestamp()).
		Where(sq.Eq{"external_id": externalID, "scored_at": nil}))
}

// MarkProcessed closes the candidate; sampleID is empty when nothing was promoted.
func (r *CandidateRepository) MarkProcessed(ctx context.Context, externalID, sampleID string) error {
	return r.update(ctx, "mark processed", r.store.sb.Update("candidates").
		Set("processed_at", r.store.timestamp()).
		Set("sample_id", nullString(sampleID)).
		Where(sq.Eq{"external_id": externalID, "processed_at": nil}))
}

func (r *CandidateRepository) update(ctx context.Context, op string, b sq.UpdateBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// CountByState reports the backlog per lifecycle state.
func (r *CandidateRepository) CountByState(ctx context.Context) (domain.BacklogStats, error) {
	query, args, err := r.store.sb.Select(
		"COALESCE(SUM(CASE WHEN enriched_at IS NULL AND processed_at IS NULL THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN enriched_at IS NOT NULL AND scored_at IS NULL AND processed_at IS NULL THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN scored_at IS NOT NULL AND processed_at IS NULL THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN processed_at IS NOT NULL THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN sample_id IS NOT NULL THEN 1 ELSE 0 END), 0)",
	).From("candidates").ToSql()
	if err != nil {
		return domain.BacklogStats{}, fmt.Errorf("build stats: %w", err)
	}

	var s domain.BacklogStats
	if err := r.store.db.QueryRowContext(ctx, query, args...).Scan(&s.Discovered, &s.Enriched, &s.Scored, &s.Processed, &s.Promoted); err != nil {
		return domain.BacklogStats{}, fmt.Errorf("query stats: %w", err)
	}
	return s, nil
}

// SaveCursor stores the continuation token for query; an empty token clears it.
func (r *CandidateRepository) SaveCursor(ctx context.Context, query, token string) error {
	if token == "" {
		sqlStr, args, err := r.store.sb.Delete("search_cursors").Where(sq.Eq{"query": query}).ToSql()
		if err != nil {
			return fmt.Errorf("build cursor delete: %w", err)
		}
		if _, err := r.store.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("clear cursor: %w", err)
		}
		return nil
	}

	sqlStr, args, err := r.store.sb.Insert("search_cursors").
		Columns("query", "page_token", "updated_at").
		Values(query, token, r.store.timestamp()).
		Suffix("ON CONFLICT (query) DO UPDATE SET page_token = excluded.page_token, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build cursor upsert: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

// LoadCursor returns the stored token for query or an empty string.
func (r *CandidateRepository) LoadCursor(ctx context.Context, query string) (string, error) {
	sqlStr, args, err := r.store.sb.Select("page_token").From("search_cursors").Where(sq.Eq{"query": query}).ToSql()
	if err != nil {
		return "", fmt.Errorf("build cursor select: %w", err)
	}

	var token string
	err = r.store.db.QueryRowContext(ctx, sqlStr, args...).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load cursor: %w", err)
	}
	return token, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (domain.Candidate, error) {
	var (
		c                                                  domain.Candidate
		kind                                               string
		title, description, channelID, channelTitle, thumb sql.NullString
		tags, genre, era, sampleID                         sql.NullString
		duration, score                                    sql.NullInt64
		embeddable                                         sql.NullBool
		publishedAt, enrichedAt, scoredAt, processedAt     sql.NullTime
	)

	err := row.Scan(
		&c.ExternalID, &kind, &c.SourceRef, &c.DiscoveredAt,
		&title, &description, &channelID, &channelTitle, &thumb, &duration, &tags,
		&publishedAt, &embeddable, &enrichedAt, &c.EnrichAttempts,
		&score, &genre, &era, &scoredAt, &processedAt, &sampleID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("scan candidate: %w", err)
	}

	c.SourceKind = domain.SourceKind(kind)
	c.DiscoveredAt = c.DiscoveredAt.UTC()
	c.Enrichment = domain.Enrichment{
		Title:           title.String,
		Description:     description.String,
		ChannelID:       channelID.String,
		ChannelTitle:    channelTitle.String,
		ThumbnailURL:    thumb.String,
		DurationSeconds: int(duration.Int64),
		Tags:            decodeTags(tags.String),
	}
	if publishedAt.Valid {
		c.Enrichment.PublishedAt = publishedAt.Time.UTC()
	}
	if embeddable.Valid {
		v := embeddable.Bool
		c.Enrichment.Embeddable = &v
	}
	c.EnrichedAt = timePtr(enrichedAt)
	if score.Valid {
		s := int(score.Int64)
		c.Score = &s
	}
	c.Genre = genre.String
	c.Era = era.String
	c.ScoredAt = timePtr(scoredAt)
	c.ProcessedAt = timePtr(processedAt)
	c.SampleID = sampleID.String
	return c, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func decodeTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}
