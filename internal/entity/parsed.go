package entity

import (
	"net/url"
	"time"
)

// ParsedFeed is the normalized result of decoding one feed document,
// regardless of the source format.
type ParsedFeed struct {
	Format      FeedFormat
	Link        string
	Domain      *string
	Title       string
	Description string
	Icon        *string

	SkipHours      []int32
	SkipDaysOfWeek []int32
	UpdatedAt      *time.Time

	TTLInMinutes int32
	Items        []ParsedFeedItem
}

// ParsedFeedItem is one normalized item of a parsed feed, in document order
// (index 0 is the newest).
type ParsedFeedItem struct {
	GUID         string
	Title        string
	Link         *string
	Description  *string
	Enclosure    *Enclosure
	Content      *string
	Categories   []string
	CommentsLink *string
	PublishedAt  *time.Time
}

// DomainFromLink extracts the host part of a feed URL, nil when the URL does
// not parse or carries no host.
func DomainFromLink(link string) *string {
	u, err := url.Parse(link)
	if err != nil {
		return nil
	}
	host := u.Hostname()
	if host == "" {
		return nil
	}
	return &host
}
