package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"CrateDigger/internal/domain"
	"CrateDigger/internal/ports"
)

var sampleColumns = []string{
	"id", "external_id", "title", "channel_title", "channel_id", "thumbnail_url", "duration_seconds",
	"genre", "era", "quality_score", "embeddable", "tags", "source_kind", "published_at", "created_at", "updated_at",
}

// CatalogRepository persists promoted samples and channel reputation.
type CatalogRepository struct {
	store *Store
}

var _ ports.CatalogRepository = (*CatalogRepository)(nil)

// FindByExternalID returns the sample for externalID or nil.
func (r *CatalogRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Sample, error) {
	query, args, err := r.store.sb.Select(sampleColumns...).From("samples").Where(sq.Eq{"external_id": externalID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sample lookup: %w", err)
	}
	s, err := scanSample(r.store.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert inserts s or refreshes the metadata of the existing row with the same external id.
func (r *CatalogRepository) Upsert(ctx context.Context, s domain.Sample) (domain.Sample, bool, error) {
	if s.ExternalID == "" {
		return domain.Sample{}, false, fmt.Errorf("upsert sample: empty external id")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	tags, err := json.Marshal(nonNilTags(s.Tags))
	if err != nil {
		return domain.Sample{}, false, fmt.Errorf("encode tags: %w", err)
	}
	now := r.store.timestamp()

	var published sql.NullTime
	if s.PublishedAt != nil {
		published = nullTime(*s.PublishedAt)
	}

	query, args, err := r.store.sb.Insert("samples").
		Columns(sampleColumns...).
		Values(s.ID, s.ExternalID, s.Title, s.ChannelTitle, nullString(s.ChannelID), s.ThumbnailURL, nullInt(s.DurationSeconds),
			nullString(s.Genre), nullString(s.Era), s.QualityScore, s.Embeddable, string(tags), string(s.SourceKind),
			published, now, now).
		Suffix("ON CONFLICT (external_id) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.Sample{}, false, fmt.Errorf("build sample insert: %w", err)
	}

	res, err := r.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Sample{}, false, fmt.Errorf("insert sample %s: %w", s.ExternalID, mapError(err))
	}
	created := false
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		created = true
	}

	if !created {
		query, args, err = r.store.sb.Update("samples").
			Set("title", s.Title).
			Set("channel_title", s.ChannelTitle).
			Set("thumbnail_url", s.ThumbnailURL).
			Set("duration_seconds", nullInt(s.DurationSeconds)).
			Set("quality_score", s.QualityScore).
			Set("tags", string(tags)).
			Set("updated_at", now).
			Where(sq.Eq{"external_id": s.ExternalID}).
			ToSql()
		if err != nil {
			return domain.Sample{}, false, fmt.Errorf("build sample refresh: %w", err)
		}
		if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
			return domain.Sample{}, false, fmt.Errorf("refresh sample %s: %w", s.ExternalID, mapError(err))
		}
	}

	stored, err := r.FindByExternalID(ctx, s.ExternalID)
	if err != nil {
		return domain.Sample{}, false, err
	}
	if stored == nil {
		return domain.Sample{}, false, fmt.Errorf("sample %s vanished after upsert", s.ExternalID)
	}
	return *stored, created, nil
}

// CountMatching counts embeddable samples matching f that are not in exclusions.
func (r *CatalogRepository) CountMatching(ctx context.Context, f domain.SampleFilter, exclusions []string) (int, error) {
	query, args, err := applyFilter(r.store.sb.Select("COUNT(*)").From("samples"), f, exclusions).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := r.store.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}

// FindAtOffset returns the matching sample at offset in external id order, or nil past the end.
func (r *CatalogRepository) FindAtOffset(ctx context.Context, f domain.SampleFilter, exclusions []string, offset int) (*domain.Sample, error) {
	if offset < 0 {
		return nil, fmt.Errorf("negative offset %d", offset)
	}
	query, args, err := applyFilter(r.store.sb.Select(sampleColumns...).From("samples"), f, exclusions).
		OrderBy("external_id").
		Limit(1).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build offset select: %w", err)
	}
	s, err := scanSample(r.store.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListMatching returns up to limit matching samples with an external id greater than after, in external id order.
// Passing the last id of one page as after yields the next page.
func (r *CatalogRepository) ListMatching(ctx context.Context, f domain.SampleFilter, exclusions []string, after string, limit int) ([]domain.Sample, error) {
	b := applyFilter(r.store.sb.Select(sampleColumns...).From("samples"), f, exclusions).OrderBy("external_id")
	if after != "" {
		b = b.Where(sq.Gt{"external_id": after})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	var out []domain.Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, closeRows(rows, err)
		}
		out = append(out, s)
	}
	if err := closeRows(rows, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// FindOrCreateChannel returns the channel row, creating it with the default reputation on first sight.
func (r *CatalogRepository) FindOrCreateChannel(ctx context.Context, externalChannelID, name string) (domain.Channel, error) {
	if externalChannelID == "" {
		return domain.Channel{}, fmt.Errorf("find or create channel: empty id")
	}

	query, args, err := r.store.sb.Insert("channels").
		Columns("external_id", "name", "reputation", "created_at").
		Values(externalChannelID, name, domain.DefaultChannelReputation, r.store.timestamp()).
		Suffix("ON CONFLICT (external_id) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.Channel{}, fmt.Errorf("build channel insert: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Channel{}, fmt.Errorf("insert channel %s: %w", externalChannelID, mapError(err))
	}

	query, args, err = r.store.sb.Select("external_id", "name", "reputation", "created_at").
		From("channels").
		Where(sq.Eq{"external_id": externalChannelID}).
		ToSql()
	if err != nil {
		return domain.Channel{}, fmt.Errorf("build channel select: %w", err)
	}
	var ch domain.Channel
	if err := r.store.db.QueryRowContext(ctx, query, args...).Scan(&ch.ExternalID, &ch.Name, &ch.Reputation, &ch.CreatedAt); err != nil {
		return domain.Channel{}, fmt.Errorf("load channel %s: %w", externalChannelID, err)
	}
	ch.CreatedAt = ch.CreatedAt.UTC()
	return ch, nil
}

// ChannelReputation returns the stored reputation, or the default for unseen channels.
func (r *CatalogRepository) ChannelReputation(ctx context.Context, externalChannelID string) (float64, error) {
	if externalChannelID == "" {
		return domain.DefaultChannelReputation, nil
	}
	query, args, err := r.store.sb.Select("reputation").From("channels").Where(sq.Eq{"external_id": externalChannelID}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build reputation select: %w", err)
	}
	var rep float64
	err = r.store.db.QueryRowContext(ctx, query, args...).Scan(&rep)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultChannelReputation, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load reputation %s: %w", externalChannelID, err)
	}
	return rep, nil
}

// SetChannelReputation is an administrative adjustment; values are clamped to [0, 1].
func (r *CatalogRepository) SetChannelReputation(ctx context.Context, externalChannelID string, reputation float64) error {
	reputation = max(0, min(1, reputation))
	query, args, err := r.store.sb.Update("channels").
		Set("reputation", reputation).
		Where(sq.Eq{"external_id": externalChannelID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reputation update: %w", err)
	}
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update reputation %s: %w", externalChannelID, err)
	}
	return nil
}

func applyFilter(b sq.SelectBuilder, f domain.SampleFilter, exclusions []string) sq.SelectBuilder {
	b = b.Where(sq.Eq{"embeddable": true})
	if g := strings.ToLower(strings.TrimSpace(f.Genre)); g != "" {
		b = b.Where(sq.Eq{"LOWER(genre)": g})
	}
	if e := strings.TrimSpace(f.Era); e != "" {
		b = b.Where(sq.Eq{"era": e})
	}
	if c := strings.ToLower(strings.TrimSpace(f.Category)); c != "" {
		b = b.Where(sq.Or{
			sq.Eq{"LOWER(genre)": c},
			sq.Like{"LOWER(tags)": "%" + escapeLike(c) + "%"},
		})
	}
	if len(exclusions) > 0 {
		b = b.Where(sq.NotEq{"external_id": exclusions})
	}
	return b
}

func escapeLike(s string) string {
	return strings.NewReplacer(`%`, "", `_`, "").Replace(s)
}

func scanSample(row rowScanner) (domain.Sample, error) {
	var (
		s                     domain.Sample
		channelID, genre, era sql.NullString
		duration              sql.NullInt64
		tags, kind            string
		publishedAt           sql.NullTime
	)
	err := row.Scan(&s.ID, &s.ExternalID, &s.Title, &s.ChannelTitle, &channelID, &s.ThumbnailURL, &duration,
		&genre, &era, &s.QualityScore, &s.Embeddable, &tags, &kind, &publishedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, err
		}
		return s, fmt.Errorf("scan sample: %w", err)
	}
	s.ChannelID = channelID.String
	s.Genre = genre.String
	s.Era = era.String
	s.DurationSeconds = int(duration.Int64)
	s.Tags = decodeTags(tags)
	s.SourceKind = domain.SourceKind(kind)
	s.PublishedAt = timePtr(publishedAt)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}
