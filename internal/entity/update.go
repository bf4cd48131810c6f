package entity

import "time"

// FeedUpdate is a sparse patch against a feed row. A nil field means "leave
// unchanged"; slices use nil for "unchanged" as well, so decoders must
// produce non-nil (possibly empty) slices. Items carries the full parsed
// item list when the fetch produced new content; nil means the item set is
// untouched.
type FeedUpdate struct {
	Status *FeedStatus
	Format *FeedFormat
	Link   *string
	Domain *string

	Title       *string
	Description *string
	Icon        *string

	SkipHours      []int32
	SkipDaysOfWeek []int32
	TTLInMinutes   *int32
	ETag           *string

	FetchedAt         *time.Time
	SuccessfulFetchAt *time.Time
	NextFetchAt       *time.Time

	Items []ParsedFeedItem
}
