package postgresql

import (
	"context"
	"time"

	"github.com/Tarick/naca-feeds/internal/entity"

	"github.com/jackc/pgx/v4"
)

// pruneFeedItemsQuery keeps the MaxItemsPerFeed most recent rows of one feed
// by (updated_at, id) ordering and deletes the rest.
const pruneFeedItemsQuery = `DELETE FROM feed_item WHERE id IN
	(SELECT id FROM feed_item WHERE feed_id = $1 ORDER BY updated_at, id DESC OFFSET 1000)`

// reconcileFeedItems merges one parse against the stored items of a feed,
// executes the resulting inserts and updates in order and prunes the overflow.
// Reports whether any row was created or changed.
func reconcileFeedItems(ctx context.Context, tx pgx.Tx, feedID int32, parsed []entity.ParsedFeedItem, now time.Time) (bool, error) {
	existing, err := getFeedItems(ctx, tx, feedID)
	if err != nil {
		return false, err
	}

	plan := entity.PlanItemReconciliation(feedID, existing, parsed, now)
	for n := range plan.Inserts {
		if err := insertFeedItem(ctx, tx, &plan.Inserts[n]); err != nil {
			return false, err
		}
	}
	for n := range plan.Updates {
		if err := updateFeedItem(ctx, tx, &plan.Updates[n]); err != nil {
			return false, err
		}
	}
	if _, err := tx.Exec(ctx, pruneFeedItemsQuery, feedID); err != nil {
		return false, err
	}
	return plan.Changed, nil
}

func getFeedItems(ctx context.Context, tx pgx.Tx, feedID int32) ([]entity.FeedItem, error) {
	query := `SELECT
		id, feed_id, guid, index_in_feed, title, link, description,
		(enclosure).url, (enclosure).length, (enclosure).mime_type,
		categories, comments_link, published_at,
		content, content_type, base_link, created_at, updated_at
		FROM feed_item WHERE feed_id = $1`
	rows, err := tx.Query(ctx, query, feedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []entity.FeedItem{}
	for rows.Next() {
		var item entity.FeedItem
		var encURL, encMIMEType *string
		var encLength *int32
		if err := rows.Scan(
			&item.ID, &item.FeedID, &item.GUID, &item.IndexInFeed, &item.Title, &item.Link, &item.Description,
			&encURL, &encLength, &encMIMEType,
			&item.Categories, &item.CommentsLink, &item.PublishedAt,
			&item.Content, &item.ContentType, &item.BaseLink, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if encURL != nil {
			length := int32(0)
			if encLength != nil {
				length = *encLength
			}
			mimeType := ""
			if encMIMEType != nil {
				mimeType = *encMIMEType
			}
			item.Enclosure = &entity.Enclosure{URL: *encURL, Length: length, MIMEType: mimeType}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func insertFeedItem(ctx context.Context, tx pgx.Tx, item *entity.FeedItem) error {
	query := `INSERT INTO feed_item
		(feed_id, guid, index_in_feed, title, link, description, enclosure,
		categories, comments_link, published_at, content, content_type, base_link,
		created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6,
		CASE WHEN $7::text IS NULL THEN NULL ELSE ROW($7::text, $8::int, $9::text)::feed_item_enclosure END,
		$10, $11, $12, $13, $14, $15, $16, $17)`
	encURL, encLength, encMIMEType := enclosureParams(item.Enclosure)
	_, err := tx.Exec(ctx, query,
		item.FeedID, item.GUID, item.IndexInFeed, item.Title, item.Link, item.Description,
		encURL, encLength, encMIMEType,
		item.Categories, item.CommentsLink, item.PublishedAt, item.Content, item.ContentType, item.BaseLink,
		item.CreatedAt, item.UpdatedAt,
	)
	return err
}

// updateFeedItem rewrites the merged business fields of one row. The scraped
// content_type and base_link columns are retained as is.
func updateFeedItem(ctx context.Context, tx pgx.Tx, item *entity.FeedItem) error {
	query := `UPDATE feed_item SET
		index_in_feed = $2,
		title = $3,
		link = $4,
		description = $5,
		enclosure = CASE WHEN $6::text IS NULL THEN NULL ELSE ROW($6::text, $7::int, $8::text)::feed_item_enclosure END,
		categories = $9,
		comments_link = $10,
		published_at = $11,
		content = $12,
		updated_at = $13
		WHERE id = $1`
	encURL, encLength, encMIMEType := enclosureParams(item.Enclosure)
	_, err := tx.Exec(ctx, query,
		item.ID, item.IndexInFeed, item.Title, item.Link, item.Description,
		encURL, encLength, encMIMEType,
		item.Categories, item.CommentsLink, item.PublishedAt, item.Content,
		item.UpdatedAt,
	)
	return err
}

func enclosureParams(enclosure *entity.Enclosure) (interface{}, interface{}, interface{}) {
	if enclosure == nil {
		return nil, nil, nil
	}
	return enclosure.URL, enclosure.Length, enclosure.MIMEType
}
