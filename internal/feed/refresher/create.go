package refresher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tarick/naca-feeds/internal/entity"
	"github.com/Tarick/naca-feeds/internal/feed/fetcher"
	"github.com/Tarick/naca-feeds/internal/feed/parser"
	"github.com/Tarick/naca-feeds/internal/feed/scheduler"
)

// CreationErrorKind classifies bootstrap failures so the HTTP layer can map
// them to status codes.
type CreationErrorKind int

const (
	// CreationNotModified means the server answered 304 to an
	// unconditional request.
	CreationNotModified CreationErrorKind = iota
	// CreationRedirectLoop means the redirect limit was exhausted.
	CreationRedirectLoop
	// CreationNotFound means the feed does not exist.
	CreationNotFound
	// CreationParsingError wraps a parse failure.
	CreationParsingError
	// CreationFetchError wraps any other fetch failure.
	CreationFetchError
	// CreationStorageError wraps a database failure.
	CreationStorageError
)

// CreationError is a classified bootstrap failure.
type CreationError struct {
	Kind  CreationErrorKind
	cause error
}

func (e *CreationError) Error() string {
	switch e.Kind {
	case CreationNotModified:
		return "feed returned not modified during creation"
	case CreationRedirectLoop:
		return "feed redirected too many times"
	case CreationNotFound:
		return "feed does not exist"
	case CreationParsingError:
		return fmt.Sprintf("failed to parse feed: %v", e.cause)
	case CreationFetchError:
		return fmt.Sprintf("failed to fetch feed: %v", e.cause)
	case CreationStorageError:
		return fmt.Sprintf("failed to store feed: %v", e.cause)
	default:
		return "unknown feed creation error"
	}
}

func (e *CreationError) Unwrap() error {
	return e.cause
}

// CreateFeed bootstraps a feed from a link: unconditional fetch following
// all redirects, parse, insert feed and items in one transaction. Initial
// items all get index 0 and the first refresh assigns real positions.
func (d *Driver) CreateFeed(ctx context.Context, link string) (*entity.Feed, error) {
	res, err := fetcher.Fetch(ctx, d.bootstrapClient, link, nil, nil)
	if err != nil {
		var fetchErr *fetcher.Error
		if errors.As(err, &fetchErr) && fetchErr.Kind == fetcher.ErrorNotFound {
			return nil, &CreationError{Kind: CreationNotFound, cause: err}
		}
		return nil, &CreationError{Kind: CreationFetchError, cause: err}
	}
	switch res.Status {
	case fetcher.StatusNotModified:
		return nil, &CreationError{Kind: CreationNotModified}
	case fetcher.StatusMoved:
		return nil, &CreationError{Kind: CreationRedirectLoop}
	}

	parsed, err := parser.ParseResponse(res)
	if err != nil {
		return nil, &CreationError{Kind: CreationParsingError, cause: err}
	}

	now := time.Now().UTC()
	cacheDuration := res.CacheMaxAge()

	var ttl *int32
	if cacheDuration != nil {
		minutes := int32(cacheDuration.Minutes())
		ttl = &minutes
	}

	interval := scheduler.MinTimeBetweenUpdates
	if cacheDuration != nil {
		interval = *cacheDuration
	}
	if interval > scheduler.MaxTimeBetweenUpdates {
		interval = scheduler.MaxTimeBetweenUpdates
	}
	if interval < scheduler.MinTimeBetweenUpdates {
		interval = scheduler.MinTimeBetweenUpdates
	}

	feed := &entity.Feed{
		Status: entity.FeedStatusActive,
		Format: parsed.Format,
		Link:   parsed.Link,
		// the domain is taken from the address the feed was requested
		// on, not from the self reported document link
		Domain: entity.DomainFromLink(link),

		Title:       parsed.Title,
		Description: parsed.Description,
		Icon:        parsed.Icon,

		SkipHours:      parsed.SkipHours,
		SkipDaysOfWeek: parsed.SkipDaysOfWeek,
		TTLInMinutes:   ttl,
		ETag:           res.ETag(),

		CreatedAt:         now,
		UpdatedAt:         now,
		FetchedAt:         now,
		SuccessfulFetchAt: now,
		NextFetchAt:       now.Add(interval),
	}

	if err := d.repository.CreateWithItems(ctx, feed, parsed.Items); err != nil {
		return nil, &CreationError{Kind: CreationStorageError, cause: err}
	}
	d.logger.Info("Created feed ", feed.ID, " from ", link, " with ", len(parsed.Items), " items")

	if d.events != nil {
		if err := d.events.SendFeedCreated(ctx, feed.ID, feed.Link); err != nil {
			d.logger.Error("Failure publishing creation event for feed ", feed.ID, ": ", err)
		}
	}
	return feed, nil
}
