package entity

import (
	"time"
)

// FeedItem is a single item of a feed in the database, identified within its
// feed by the guid derived from the source document.
type FeedItem struct {
	ID     int64  `json:"id"`
	FeedID int32  `json:"feed_id"`
	GUID   string `json:"guid"`
	// IndexInFeed is the 0-based position in the most recent parse, low = newest
	IndexInFeed int32 `json:"index_in_feed"`

	Title        string     `json:"title"`
	Link         *string    `json:"link"`
	Description  *string    `json:"description"`
	Enclosure    *Enclosure `json:"enclosure"`
	Categories   []string   `json:"categories"`
	CommentsLink *string    `json:"comments_link"`
	PublishedAt  *time.Time `json:"published_at"`

	// Content fields are retained across updates once scraped
	Content     *string `json:"content"`
	ContentType *string `json:"content_type"`
	BaseLink    *string `json:"base_link"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFeedItemFromParsed builds a fresh row for an item seen for the first time.
func NewFeedItemFromParsed(parsed *ParsedFeedItem, feedID int32, indexInFeed int32, now time.Time) FeedItem {
	return FeedItem{
		FeedID:      feedID,
		GUID:        parsed.GUID,
		IndexInFeed: indexInFeed,

		Title:        parsed.Title,
		Link:         parsed.Link,
		Description:  parsed.Description,
		Enclosure:    parsed.Enclosure,
		Categories:   parsed.Categories,
		CommentsLink: parsed.CommentsLink,
		PublishedAt:  parsed.PublishedAt,
		Content:      parsed.Content,

		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MergeParsed folds a parsed item into an existing row. Title and categories
// always overwrite; link, description, enclosure, comments link, content and
// published time overwrite only when the parsed value is present. Reports
// whether the row differs from its previous state.
func (i *FeedItem) MergeParsed(parsed *ParsedFeedItem, indexInFeed int32) bool {
	before := *i

	i.Title = parsed.Title
	i.Categories = parsed.Categories
	if parsed.Link != nil {
		i.Link = parsed.Link
	}
	if parsed.Description != nil {
		i.Description = parsed.Description
	}
	if parsed.Enclosure != nil {
		i.Enclosure = parsed.Enclosure
	}
	if parsed.CommentsLink != nil {
		i.CommentsLink = parsed.CommentsLink
	}
	if parsed.Content != nil {
		i.Content = parsed.Content
	}
	if parsed.PublishedAt != nil {
		i.PublishedAt = parsed.PublishedAt
	}
	i.IndexInFeed = indexInFeed

	return !i.equalContent(&before)
}

// equalContent compares all business fields, ignoring bookkeeping
// timestamps and ids.
func (i *FeedItem) equalContent(other *FeedItem) bool {
	return i.GUID == other.GUID &&
		i.IndexInFeed == other.IndexInFeed &&
		i.Title == other.Title &&
		equalStringPtr(i.Link, other.Link) &&
		equalStringPtr(i.Description, other.Description) &&
		equalEnclosure(i.Enclosure, other.Enclosure) &&
		equalStrings(i.Categories, other.Categories) &&
		equalStringPtr(i.CommentsLink, other.CommentsLink) &&
		equalTimePtr(i.PublishedAt, other.PublishedAt) &&
		equalStringPtr(i.Content, other.Content) &&
		equalStringPtr(i.ContentType, other.ContentType) &&
		equalStringPtr(i.BaseLink, other.BaseLink)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func equalEnclosure(a, b *Enclosure) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for n := range a {
		if a[n] != b[n] {
			return false
		}
	}
	return true
}

// MaxItemsPerFeed bounds the stored item window of one feed; the reconciler
// truncates parsed input and the repository prunes rows beyond it.
const MaxItemsPerFeed = 1000

// ItemReconciliation is the outcome of merging one parse against the stored
// item set. Inserts are ordered oldest first so that newer items receive
// higher database ids, which the pruning delete relies on.
type ItemReconciliation struct {
	Inserts []FeedItem
	Updates []FeedItem
	Changed bool
}

// PlanItemReconciliation merges parsed items (newest first) with the existing
// rows of a feed, keyed by guid. Parsed input is truncated to
// MaxItemsPerFeed. Iteration runs in reverse so the newest item is planned
// last; index_in_feed still records the position in the newest-first list.
func PlanItemReconciliation(feedID int32, existing []FeedItem, parsed []ParsedFeedItem, now time.Time) ItemReconciliation {
	if len(parsed) > MaxItemsPerFeed {
		parsed = parsed[:MaxItemsPerFeed]
	}

	byGUID := make(map[string]*FeedItem, len(existing))
	rows := make([]FeedItem, len(existing))
	copy(rows, existing)
	for n := range rows {
		byGUID[rows[n].GUID] = &rows[n]
	}

	var result ItemReconciliation
	pendingInserts := make(map[string]int)

	for n := len(parsed) - 1; n >= 0; n-- {
		item := &parsed[n]
		index := int32(n)

		if at, ok := pendingInserts[item.GUID]; ok {
			// Duplicate guid within one document: the newest occurrence wins.
			result.Inserts[at].MergeParsed(item, index)
			continue
		}

		if row, ok := byGUID[item.GUID]; ok {
			if row.MergeParsed(item, index) {
				row.UpdatedAt = now
				result.Updates = append(result.Updates, *row)
			}
			continue
		}

		result.Inserts = append(result.Inserts, NewFeedItemFromParsed(item, feedID, index, now))
		pendingInserts[item.GUID] = len(result.Inserts) - 1
	}

	result.Changed = len(result.Inserts) > 0 || len(result.Updates) > 0
	return result
}
