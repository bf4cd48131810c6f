// Package scheduler turns one refresh outcome into a sparse feed update:
// which columns change and when the feed is polled next. Every failure mode
// collapses into an update, so a refresh job always has exactly one write to
// commit.
package scheduler

import (
	"time"

	"github.com/Tarick/naca-feeds/internal/entity"
	"github.com/Tarick/naca-feeds/internal/feed/fetcher"
)

const (
	// MinTimeBetweenUpdates is the default and upper bound of the polling
	// floor.
	MinTimeBetweenUpdates = 15 * time.Minute
	// MaxTimeBetweenUpdates caps the polling interval of stale feeds.
	MaxTimeBetweenUpdates = 24 * time.Hour
	// BrokenAfter is how long a feed may go without a successful fetch
	// before it is demoted and dropped from selection.
	BrokenAfter = 4 * 7 * 24 * time.Hour

	// rateLimitSafetyMargin is added on top of a server supplied Retry-After.
	rateLimitSafetyMargin = time.Minute

	// desiredPerStaleDay grows the polling interval by five minutes for
	// every full day the content has not changed.
	desiredPerStaleDay = 5 * time.Minute
)

// PlanModified builds the update for a 200 response that parsed successfully.
// When the document carries no new content, observed through an unchanged
// ETag or an updated timestamp not past the last successful fetch, only the
// bookkeeping columns are touched.
func PlanModified(feed *entity.Feed, res *fetcher.Result, parsed *entity.ParsedFeed, now time.Time) *entity.FeedUpdate {
	etag := res.ETag()

	etagUnchanged := feed.ETag != nil && etag != nil && *feed.ETag == *etag
	staleContent := parsed.UpdatedAt != nil && !parsed.UpdatedAt.After(feed.SuccessfulFetchAt)
	if etagUnchanged || staleContent {
		return planTouch(feed, res.CacheMaxAge(), etag, now)
	}

	update := &entity.FeedUpdate{
		Format: &parsed.Format,

		Title:       &parsed.Title,
		Description: &parsed.Description,
		Icon:        parsed.Icon,

		SkipHours:      parsed.SkipHours,
		SkipDaysOfWeek: parsed.SkipDaysOfWeek,
		TTLInMinutes:   &parsed.TTLInMinutes,
		ETag:           etag,

		FetchedAt:         &now,
		SuccessfulFetchAt: &now,

		Items: parsed.Items,
	}
	if update.Items == nil {
		update.Items = []entity.ParsedFeedItem{}
	}
	applyNextFetch(update, NextFetch(feed, res.CacheMaxAge(), now))
	return update
}

// PlanNotModified builds the update for a 304 response.
func PlanNotModified(feed *entity.Feed, res *fetcher.Result, now time.Time) *entity.FeedUpdate {
	return planTouch(feed, res.CacheMaxAge(), res.ETag(), now)
}

// PlanMoved rewrites the feed location; scheduling fields are left alone so
// the next tick polls the new address.
func PlanMoved(location string) *entity.FeedUpdate {
	return &entity.FeedUpdate{
		Link:   &location,
		Domain: entity.DomainFromLink(location),
	}
}

// PlanRateLimited backs off for the server supplied delay plus a safety
// margin.
func PlanRateLimited(retryAfter time.Duration, now time.Time) *entity.FeedUpdate {
	next := now.Add(retryAfter + rateLimitSafetyMargin)
	return &entity.FeedUpdate{
		FetchedAt:   &now,
		NextFetchAt: &next,
	}
}

// PlanFailure handles every remaining fetch or parse failure: record the
// attempt and reschedule, demoting the feed once it has been failing for
// longer than BrokenAfter.
func PlanFailure(feed *entity.Feed, now time.Time) *entity.FeedUpdate {
	update := &entity.FeedUpdate{FetchedAt: &now}
	applyNextFetch(update, NextFetch(feed, nil, now))
	return update
}

func planTouch(feed *entity.Feed, cacheDuration *time.Duration, etag *string, now time.Time) *entity.FeedUpdate {
	update := &entity.FeedUpdate{
		ETag:              etag,
		FetchedAt:         &now,
		SuccessfulFetchAt: &now,
	}
	applyNextFetch(update, NextFetch(feed, cacheDuration, now))
	return update
}

// NextUpdate is the outcome of the next-fetch policy: either a wake time or
// a demotion to broken.
type NextUpdate struct {
	Broken bool
	At     time.Time
}

// NextFetch computes when the feed should be polled again. The interval
// grows linearly with the age of the content, bounded below by the publisher
// declared caching hints (themselves capped at fifteen minutes) and above by
// one day. Feeds without a successful fetch in four weeks are declared
// broken instead.
func NextFetch(feed *entity.Feed, cacheDuration *time.Duration, now time.Time) NextUpdate {
	if now.Sub(feed.SuccessfulFetchAt) > BrokenAfter {
		return NextUpdate{Broken: true}
	}

	staleDays := int64(now.Sub(feed.UpdatedAt).Hours() / 24)
	desired := time.Duration(staleDays) * desiredPerStaleDay

	floor := MinTimeBetweenUpdates
	switch {
	case cacheDuration != nil:
		floor = *cacheDuration
	case feed.TTLInMinutes != nil:
		floor = time.Duration(*feed.TTLInMinutes) * time.Minute
	}
	if floor > MinTimeBetweenUpdates {
		floor = MinTimeBetweenUpdates
	}

	interval := desired
	if interval < floor {
		interval = floor
	}
	if interval > MaxTimeBetweenUpdates {
		interval = MaxTimeBetweenUpdates
	}
	return NextUpdate{At: now.Add(interval)}
}

func applyNextFetch(update *entity.FeedUpdate, next NextUpdate) {
	if next.Broken {
		status := entity.FeedStatusBroken
		update.Status = &status
		return
	}
	at := next.At
	update.NextFetchAt = &at
}
