package postgresql

import (
	"context"
	"time"

	"github.com/Tarick/naca-feeds/internal/entity"
	otLog "github.com/opentracing/opentracing-go/log"

	"github.com/jackc/pgx/v4"
)

const feedColumns = `id, status::text, format::text, link, domain,
		title, description, icon, language,
		skip_hours, skip_days_of_week, ttl_in_minutes, etag,
		created_at, updated_at, fetched_at, successful_fetch_at, next_fetch_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFeed(row rowScanner) (*entity.Feed, error) {
	f := &entity.Feed{}
	var status, format string
	if err := row.Scan(
		&f.ID, &status, &format, &f.Link, &f.Domain,
		&f.Title, &f.Description, &f.Icon, &f.Language,
		&f.SkipHours, &f.SkipDaysOfWeek, &f.TTLInMinutes, &f.ETag,
		&f.CreatedAt, &f.UpdatedAt, &f.FetchedAt, &f.SuccessfulFetchAt, &f.NextFetchAt,
	); err != nil {
		return nil, err
	}
	f.Status = entity.FeedStatus(status)
	f.Format = entity.FeedFormat(format)
	return f, nil
}

// GetOutOfDate returns every active feed whose next fetch time has passed.
func (repository *Repository) GetOutOfDate(ctx context.Context) ([]entity.Feed, error) {
	query := "SELECT " + feedColumns + " FROM feed WHERE next_fetch_at < NOW() AND status = 'active'"
	span, ctx := repository.setupTracingSpan(ctx, "get-out-of-date-feeds", query)
	defer span.Finish()
	rows, err := repository.pool.Query(ctx, query)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	feeds := []entity.Feed{}
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			span.LogFields(
				otLog.Error(err),
			)
			return nil, err
		}
		feeds = append(feeds, *f)
	}
	if err := rows.Err(); err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	span.LogKV("feeds number", len(feeds))
	return feeds, nil
}

// GetByID returns one feed, nil when it does not exist.
func (repository *Repository) GetByID(ctx context.Context, id int32) (*entity.Feed, error) {
	query := "SELECT " + feedColumns + " FROM feed WHERE id = $1"
	span, ctx := repository.setupTracingSpan(ctx, "get-feed-by-id", query)
	defer span.Finish()
	f, err := scanFeed(repository.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		span.LogKV("event", "feed not found")
		return nil, nil
	}
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	span.LogKV("event", "got feed")
	return f, nil
}

func (repository *Repository) GetAll(ctx context.Context) ([]entity.Feed, error) {
	query := "SELECT " + feedColumns + " FROM feed"
	span, ctx := repository.setupTracingSpan(ctx, "get-all-feeds", query)
	defer span.Finish()
	rows, err := repository.pool.Query(ctx, query)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	feeds := []entity.Feed{}
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			span.LogFields(
				otLog.Error(err),
			)
			return nil, err
		}
		feeds = append(feeds, *f)
	}
	if err := rows.Err(); err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return nil, err
	}
	span.LogKV("feeds number", len(feeds))
	return feeds, nil
}

// CreateWithItems inserts a bootstrapped feed together with its initial
// items in one transaction and fills in the generated feed id. Initial items
// all carry index_in_feed 0; the first refresh assigns real positions.
func (repository *Repository) CreateWithItems(ctx context.Context, f *entity.Feed, items []entity.ParsedFeedItem) error {
	query := `INSERT INTO feed
		(status, format, link, domain, title, description, icon, language,
		skip_hours, skip_days_of_week, ttl_in_minutes, etag,
		created_at, updated_at, fetched_at, successful_fetch_at, next_fetch_at)
		VALUES ($1::feed_status, $2::feed_format, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`
	span, ctx := repository.setupTracingSpan(ctx, "create-feed-with-items", query)
	defer span.Finish()

	tx, err := repository.pool.Begin(ctx)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, query,
		string(f.Status), string(f.Format), f.Link, f.Domain, f.Title, f.Description, f.Icon, f.Language,
		f.SkipHours, f.SkipDaysOfWeek, f.TTLInMinutes, f.ETag,
		f.CreatedAt, f.UpdatedAt, f.FetchedAt, f.SuccessfulFetchAt, f.NextFetchAt,
	).Scan(&f.ID); err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}

	now := f.CreatedAt
	for n := range items {
		item := entity.NewFeedItemFromParsed(&items[n], f.ID, 0, now)
		if err := insertFeedItem(ctx, tx, &item); err != nil {
			span.LogFields(
				otLog.Error(err),
			)
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	span.LogKV("event", "created feed")
	return nil
}

// ApplyFeedUpdate commits one refresh outcome: reconciles items when the
// update carries them, then writes the feed row with the update fields
// winning over the current values. Runs as a single transaction and reports
// whether any item rows were inserted or updated.
func (repository *Repository) ApplyFeedUpdate(ctx context.Context, f *entity.Feed, update *entity.FeedUpdate) (bool, error) {
	query := `UPDATE feed SET
		status = $2::feed_status,
		format = $3::feed_format,
		link = $4,
		domain = $5,
		title = $6,
		description = $7,
		icon = $8,
		skip_hours = $9,
		skip_days_of_week = $10,
		ttl_in_minutes = $11,
		etag = $12,
		updated_at = $13,
		fetched_at = $14,
		successful_fetch_at = $15,
		next_fetch_at = $16
		WHERE id = $1`
	span, ctx := repository.setupTracingSpan(ctx, "apply-feed-update", query)
	defer span.Finish()

	tx, err := repository.pool.Begin(ctx)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return false, err
	}
	defer tx.Rollback(ctx)

	// item timestamps and updated_at run on the fetch clock carried by the
	// update, never a second reading of the wall clock
	now := updateClock(update)
	itemsChanged := false
	if update.Items != nil {
		itemsChanged, err = reconcileFeedItems(ctx, tx, f.ID, update.Items, now)
		if err != nil {
			span.LogFields(
				otLog.Error(err),
			)
			return false, err
		}
	}

	// updated_at moves only when item content actually changed
	updatedAt := f.UpdatedAt
	if itemsChanged {
		updatedAt = now
	}

	merged := *f
	merged.ApplyUpdate(update)

	if _, err := tx.Exec(ctx, query,
		merged.ID,
		string(merged.Status),
		string(merged.Format),
		merged.Link,
		merged.Domain,
		merged.Title,
		merged.Description,
		merged.Icon,
		merged.SkipHours,
		merged.SkipDaysOfWeek,
		merged.TTLInMinutes,
		merged.ETag,
		updatedAt,
		merged.FetchedAt,
		merged.SuccessfulFetchAt,
		merged.NextFetchAt,
	); err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return false, err
	}
	span.LogKV("event", "applied feed update")
	return itemsChanged, nil
}

// updateClock returns the fetch time of the update, falling back to the wall
// clock for updates that carry none.
func updateClock(update *entity.FeedUpdate) time.Time {
	if update.FetchedAt != nil {
		return *update.FetchedAt
	}
	return time.Now().UTC()
}
