// Package refresher drives the periodic feed refresh cycle: a leader elected
// tick loop that selects due feeds and updates each one through fetch, parse,
// plan and commit, with a bounded number of concurrent jobs.
package refresher

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Tarick/naca-feeds/internal/entity"
	"github.com/Tarick/naca-feeds/internal/feed/fetcher"
	"github.com/Tarick/naca-feeds/internal/feed/parser"
	"github.com/Tarick/naca-feeds/internal/feed/scheduler"
	"github.com/Tarick/naca-feeds/internal/metrics"
)

// Logger is a generic logging interface
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
}

// FeedsRepository defines the persistence operations the refresher needs.
type FeedsRepository interface {
	GetOutOfDate(ctx context.Context) ([]entity.Feed, error)
	ApplyFeedUpdate(ctx context.Context, feed *entity.Feed, update *entity.FeedUpdate) (bool, error)
	CreateWithItems(ctx context.Context, feed *entity.Feed, items []entity.ParsedFeedItem) error
}

// LeaderLease is the election capability: a single process deployment runs
// without one.
type LeaderLease interface {
	TryAcquireOrRenew(ctx context.Context) (bool, error)
	StepDown(ctx context.Context) error
}

// EventsProducer publishes feed lifecycle events to the messaging subsystem.
type EventsProducer interface {
	SendFeedRefreshed(ctx context.Context, feedID int32) error
	SendFeedCreated(ctx context.Context, feedID int32, link string) error
}

// Config defines refresher configuration, usable for Viper
type Config struct {
	ConcurrentUpdates int    `mapstructure:"concurrent_updates"`
	TickSeconds       int    `mapstructure:"tick_seconds"`
	LeaseName         string `mapstructure:"lease_name"`
	LeaseNamespace    string `mapstructure:"lease_namespace"`
}

const defaultTick = 60 * time.Second

// Driver runs the refresh loop.
type Driver struct {
	repository FeedsRepository
	lease      LeaderLease
	events     EventsProducer
	collector  *metrics.Collector
	logger     Logger

	client          *http.Client
	bootstrapClient *http.Client

	concurrentUpdates int
	tick              time.Duration

	stop chan struct{}
	done chan struct{}
}

// New creates the refresh driver. lease and events may be nil: without a
// lease every tick proceeds, without a producer no events are published.
func New(cfg Config, repository FeedsRepository, lease LeaderLease, events EventsProducer, collector *metrics.Collector, logger Logger) *Driver {
	tick := defaultTick
	if cfg.TickSeconds > 0 {
		tick = time.Duration(cfg.TickSeconds) * time.Second
	}
	concurrentUpdates := cfg.ConcurrentUpdates
	if concurrentUpdates < 1 {
		concurrentUpdates = 1
	}
	return &Driver{
		repository:        repository,
		lease:             lease,
		events:            events,
		collector:         collector,
		logger:            logger,
		client:            fetcher.NewRefreshClient(),
		bootstrapClient:   fetcher.NewBootstrapClient(),
		concurrentUpdates: concurrentUpdates,
		tick:              tick,
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}
}

// Start launches the tick loop in the background.
func (d *Driver) Start() error {
	go d.run()
	d.logger.Info("Started feeds refresh driver, tick interval ", d.tick)
	return nil
}

// Stop signals the loop to finish, waits for in-flight jobs and releases the
// lease.
func (d *Driver) Stop() {
	close(d.stop)
	<-d.done
	d.logger.Info("Stopped feeds refresh driver")
}

func (d *Driver) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-d.stop:
			if d.lease != nil {
				if err := d.lease.StepDown(ctx); err != nil {
					d.logger.Error("Failure stepping down from leadership: ", err)
				}
			}
			return
		case <-ticker.C:
			if d.lease != nil {
				acquired, err := d.lease.TryAcquireOrRenew(ctx)
				if err != nil {
					d.logger.Error("Failure acquiring leader lease: ", err)
					continue
				}
				if !acquired {
					d.logger.Debug("Not the leader, skipping feeds refresh")
					continue
				}
			}
			d.refreshOutOfDateFeeds(ctx)
		}
	}
}

// refreshOutOfDateFeeds runs one tick: select all due feeds and refresh them
// concurrently, bounded by the semaphore. Waits for the whole batch before
// returning.
func (d *Driver) refreshOutOfDateFeeds(ctx context.Context) {
	feeds, err := d.repository.GetOutOfDate(ctx)
	if err != nil {
		d.logger.Error("Failure getting out of date feeds, skipping tick: ", err)
		return
	}
	if len(feeds) == 0 {
		return
	}
	d.logger.Debug("Refreshing ", len(feeds), " out of date feeds")

	semaphore := make(chan struct{}, d.concurrentUpdates)
	var wg sync.WaitGroup
	for n := range feeds {
		semaphore <- struct{}{}
		wg.Add(1)
		go func(feed *entity.Feed) {
			defer wg.Done()
			defer func() { <-semaphore }()
			d.RefreshFeed(ctx, feed)
		}(&feeds[n])
	}
	wg.Wait()
}

// RefreshFeed runs one refresh job: fetch, parse, plan, commit. Every fetch
// results in exactly one database update, at minimum moving next_fetch_at.
// All errors are absorbed into the update and logged; nothing propagates to
// sibling jobs.
func (d *Driver) RefreshFeed(ctx context.Context, feed *entity.Feed) {
	started := time.Now()
	now := started.UTC()

	update, outcome := d.planRefresh(ctx, feed, now)

	if update.Status != nil && *update.Status == entity.FeedStatusBroken {
		d.logger.Warn("Feed ", feed.ID, " had no successful fetch in four weeks, marking broken")
		if d.collector != nil {
			d.collector.RecordBrokenFeed()
		}
	}

	itemsChanged, err := d.repository.ApplyFeedUpdate(ctx, feed, update)
	if err != nil {
		d.logger.Error("Failure applying update for feed ", feed.ID, ": ", err)
		return
	}

	if d.collector != nil {
		d.collector.RecordRefreshOutcome(outcome)
		d.collector.RecordRefreshDuration(time.Since(started))
	}
	if d.events != nil && itemsChanged {
		if err := d.events.SendFeedRefreshed(ctx, feed.ID); err != nil {
			d.logger.Error("Failure publishing refresh event for feed ", feed.ID, ": ", err)
		}
	}
}

// planRefresh fetches the feed and converts whatever happened into a feed
// update plus a metrics outcome label.
func (d *Driver) planRefresh(ctx context.Context, feed *entity.Feed, now time.Time) (*entity.FeedUpdate, string) {
	res, err := fetcher.Fetch(ctx, d.client, feed.Link, &feed.UpdatedAt, feed.ETag)
	if err != nil {
		var fetchErr *fetcher.Error
		if errors.As(err, &fetchErr) {
			if d.collector != nil && fetchErr.Status != 0 {
				d.collector.RecordFetchStatus(fetchErr.Status)
			}
			if fetchErr.Kind == fetcher.ErrorRateLimited {
				d.logger.Debug("Feed ", feed.ID, " is rate limited, retrying after ", fetchErr.RetryAfter)
				return scheduler.PlanRateLimited(fetchErr.RetryAfter, now), metrics.OutcomeRateLimited
			}
			if fetchErr.Expected() {
				d.logger.Debug("Failure fetching feed ", feed.ID, ": ", err)
			} else {
				d.logger.Error("Failure fetching feed ", feed.ID, ": ", err)
			}
		} else {
			d.logger.Error("Failure fetching feed ", feed.ID, ": ", err)
		}
		return scheduler.PlanFailure(feed, now), metrics.OutcomeError
	}

	switch res.Status {
	case fetcher.StatusNotModified:
		if d.collector != nil {
			d.collector.RecordFetchStatus(304)
		}
		return scheduler.PlanNotModified(feed, res, now), metrics.OutcomeNotModified

	case fetcher.StatusMoved:
		if d.collector != nil {
			d.collector.RecordFetchStatus(301)
		}
		d.logger.Info("Feed ", feed.ID, " moved permanently to ", res.Location)
		return scheduler.PlanMoved(res.Location), metrics.OutcomeMoved

	default:
		if d.collector != nil {
			d.collector.RecordFetchStatus(200)
		}
		parsed, err := parser.ParseResponse(res)
		if err != nil {
			d.logger.Error("Failure parsing feed ", feed.ID, ": ", err)
			return scheduler.PlanFailure(feed, now), metrics.OutcomeError
		}
		return scheduler.PlanModified(feed, res, parsed, now), metrics.OutcomeModified
	}
}
