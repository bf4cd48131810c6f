package entity

import (
	"fmt"
	"time"
)

// FeedStatus defines refresh eligibility of a feed.
type FeedStatus string

const (
	FeedStatusActive    FeedStatus = "active"
	FeedStatusCompleted FeedStatus = "completed"
	FeedStatusSuspended FeedStatus = "suspended"
	FeedStatusBroken    FeedStatus = "broken"
)

// FeedFormat is the syndication format observed on the last successful parse.
type FeedFormat string

const (
	FeedFormatRSS  FeedFormat = "rss"
	FeedFormatAtom FeedFormat = "atom"
	FeedFormatJSON FeedFormat = "json"
)

// FormatFromContentType maps the first Content-Type token (before any ';')
// to a feed format. Unknown content types return ok=false.
func FormatFromContentType(contentType string) (FeedFormat, bool) {
	switch contentType {
	case "application/rss+xml", "application/rss", "text/xml", "text/rss+xml":
		return FeedFormatRSS, true
	case "application/atom+xml", "application/atom", "text/atom+xml", "text/atom":
		return FeedFormatAtom, true
	case "application/json", "text/json":
		return FeedFormatJSON, true
	default:
		return "", false
	}
}

// Enclosure is an attached media file of a feed item (e.g. an image or audio file).
// Stored as the feed_item_enclosure composite type.
type Enclosure struct {
	URL      string `json:"url"`
	Length   int32  `json:"length"`
	MIMEType string `json:"mime_type"`
}

// Feed is a single syndicated feed in the database.
// It can be an RSS, Atom or JSON feed.
// swagger:model
type Feed struct {
	ID     int32      `json:"id"`
	Status FeedStatus `json:"status"`
	Format FeedFormat `json:"format"`
	// Link is the feed URL actually polled
	Link   string  `json:"link"`
	Domain *string `json:"domain"`

	Title       string  `json:"title"`
	Description string  `json:"description"`
	Icon        *string `json:"icon"`
	Language    *string `json:"language"`

	// Publisher declared black-out windows, persisted but not consulted
	// by the refresh timer.
	SkipHours      []int32 `json:"skip_hours"`
	SkipDaysOfWeek []int32 `json:"skip_days_of_week"`
	// TTLInMinutes is the publisher declared minimum refresh interval
	TTLInMinutes *int32 `json:"ttl_in_minutes"`
	// ETag header from the last successful response
	ETag *string `json:"etag"`

	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the time of the last observed content change
	UpdatedAt time.Time `json:"updated_at"`
	// FetchedAt is the time of the last fetch attempt
	FetchedAt time.Time `json:"fetched_at"`
	// SuccessfulFetchAt is the time of the last 2xx/304 fetch
	SuccessfulFetchAt time.Time `json:"successful_fetch_at"`
	// NextFetchAt is the scheduled wake time, never zero once the feed exists
	NextFetchAt time.Time `json:"next_fetch_at"`
}

func (f *Feed) String() string {
	return fmt.Sprintf("ID: %d, Status: %s, Format: %s, Link: %s", f.ID, f.Status, f.Format, f.Link)
}

// ApplyUpdate merges a sparse FeedUpdate into the feed, field by field:
// update value if present, current value otherwise. UpdatedAt is owned by the
// reconciler and left alone here.
func (f *Feed) ApplyUpdate(update *FeedUpdate) {
	if update.Status != nil {
		f.Status = *update.Status
	}
	if update.Format != nil {
		f.Format = *update.Format
	}
	if update.Link != nil {
		f.Link = *update.Link
	}
	if update.Domain != nil {
		f.Domain = update.Domain
	}
	if update.Title != nil {
		f.Title = *update.Title
	}
	if update.Description != nil {
		f.Description = *update.Description
	}
	if update.Icon != nil {
		f.Icon = update.Icon
	}
	if update.SkipHours != nil {
		f.SkipHours = update.SkipHours
	}
	if update.SkipDaysOfWeek != nil {
		f.SkipDaysOfWeek = update.SkipDaysOfWeek
	}
	if update.TTLInMinutes != nil {
		f.TTLInMinutes = update.TTLInMinutes
	}
	if update.ETag != nil {
		f.ETag = update.ETag
	}
	if update.FetchedAt != nil {
		f.FetchedAt = *update.FetchedAt
	}
	if update.SuccessfulFetchAt != nil {
		f.SuccessfulFetchAt = *update.SuccessfulFetchAt
	}
	if update.NextFetchAt != nil {
		f.NextFetchAt = *update.NextFetchAt
	}
}
