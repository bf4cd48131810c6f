package refresher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tarick/naca-feeds/internal/entity"
	"github.com/Tarick/naca-feeds/internal/feed/scheduler"
)

const rssDocument = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example News</title>
  <link>https://example.com/</link>
  <description>News about examples</description>
  <item>
    <title>First</title>
    <link>https://example.com/1</link>
    <guid>guid-1</guid>
  </item>
</channel>
</rss>`

type fakeRepository struct {
	mu      sync.Mutex
	feeds   []entity.Feed
	applied []appliedUpdate
	created []entity.Feed

	getErr    error
	applyErr  error
	createErr error

	// applyUnchanged makes ApplyFeedUpdate report that reconciliation
	// found nothing to insert or update
	applyUnchanged bool
}

type appliedUpdate struct {
	feedID int32
	update *entity.FeedUpdate
}

func (r *fakeRepository) GetOutOfDate(ctx context.Context) ([]entity.Feed, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.feeds, nil
}

func (r *fakeRepository) ApplyFeedUpdate(ctx context.Context, feed *entity.Feed, update *entity.FeedUpdate) (bool, error) {
	if r.applyErr != nil {
		return false, r.applyErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, appliedUpdate{feedID: feed.ID, update: update})
	return update.Items != nil && !r.applyUnchanged, nil
}

func (r *fakeRepository) CreateWithItems(ctx context.Context, feed *entity.Feed, items []entity.ParsedFeedItem) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	feed.ID = int32(len(r.created) + 1)
	r.created = append(r.created, *feed)
	return nil
}

func (r *fakeRepository) lastApplied(t *testing.T) appliedUpdate {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.applied)
	return r.applied[len(r.applied)-1]
}

type fakeEvents struct {
	mu        sync.Mutex
	refreshed []int32
	created   []int32
}

func (e *fakeEvents) SendFeedRefreshed(ctx context.Context, feedID int32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshed = append(e.refreshed, feedID)
	return nil
}

func (e *fakeEvents) SendFeedCreated(ctx context.Context, feedID int32, link string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, feedID)
	return nil
}

func testLogger() Logger {
	return zap.NewNop().Sugar()
}

func testFeed(link string) *entity.Feed {
	now := time.Now().UTC()
	return &entity.Feed{
		ID:                1,
		Status:            entity.FeedStatusActive,
		Format:            entity.FeedFormatRSS,
		Link:              link,
		Title:             "Example",
		UpdatedAt:         now.Add(-time.Hour),
		FetchedAt:         now.Add(-time.Hour),
		SuccessfulFetchAt: now.Add(-time.Hour),
		NextFetchAt:       now.Add(-time.Minute),
	}
}

func TestRefreshFeedModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssDocument))
	}))
	defer server.Close()

	repo := &fakeRepository{}
	events := &fakeEvents{}
	driver := New(Config{}, repo, nil, events, nil, testLogger())

	driver.RefreshFeed(context.Background(), testFeed(server.URL))

	applied := repo.lastApplied(t)
	assert.Equal(t, int32(1), applied.feedID)
	require.NotNil(t, applied.update.Title)
	assert.Equal(t, "Example News", *applied.update.Title)
	require.Len(t, applied.update.Items, 1)
	assert.Equal(t, "guid-1", applied.update.Items[0].GUID)
	// an item without a description stays nil all the way to storage
	assert.Nil(t, applied.update.Items[0].Description)
	require.NotNil(t, applied.update.SuccessfulFetchAt)

	assert.Equal(t, []int32{1}, events.refreshed)
}

func TestRefreshFeedUnchangedItemsNoEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssDocument))
	}))
	defer server.Close()

	repo := &fakeRepository{applyUnchanged: true}
	events := &fakeEvents{}
	driver := New(Config{}, repo, nil, events, nil, testLogger())

	driver.RefreshFeed(context.Background(), testFeed(server.URL))

	applied := repo.lastApplied(t)
	require.Len(t, applied.update.Items, 1)

	// the document was fetched and applied but no rows changed, no event
	assert.Empty(t, events.refreshed)
}

func TestRefreshFeedNotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	repo := &fakeRepository{}
	events := &fakeEvents{}
	driver := New(Config{}, repo, nil, events, nil, testLogger())

	driver.RefreshFeed(context.Background(), testFeed(server.URL))

	applied := repo.lastApplied(t)
	assert.Nil(t, applied.update.Items)
	assert.Nil(t, applied.update.Title)
	require.NotNil(t, applied.update.SuccessfulFetchAt)
	require.NotNil(t, applied.update.NextFetchAt)

	// no content change, no event
	assert.Empty(t, events.refreshed)
}

func TestRefreshFeedMoved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://moved.example.org/feed.xml")
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer server.Close()

	repo := &fakeRepository{}
	driver := New(Config{}, repo, nil, nil, nil, testLogger())

	driver.RefreshFeed(context.Background(), testFeed(server.URL))

	applied := repo.lastApplied(t)
	require.NotNil(t, applied.update.Link)
	assert.Equal(t, "https://moved.example.org/feed.xml", *applied.update.Link)
	assert.Nil(t, applied.update.NextFetchAt)
}

func TestRefreshFeedRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	repo := &fakeRepository{}
	driver := New(Config{}, repo, nil, nil, nil, testLogger())

	before := time.Now().UTC()
	driver.RefreshFeed(context.Background(), testFeed(server.URL))

	applied := repo.lastApplied(t)
	require.NotNil(t, applied.update.NextFetchAt)
	// server delay plus the safety margin
	assert.WithinDuration(t, before.Add(180*time.Second), *applied.update.NextFetchAt, 5*time.Second)
	assert.Nil(t, applied.update.SuccessfulFetchAt)
}

func TestRefreshFeedFailureReschedules(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	repo := &fakeRepository{}
	driver := New(Config{}, repo, nil, nil, nil, testLogger())

	driver.RefreshFeed(context.Background(), testFeed(server.URL))

	applied := repo.lastApplied(t)
	require.NotNil(t, applied.update.FetchedAt)
	require.NotNil(t, applied.update.NextFetchAt)
	assert.Nil(t, applied.update.SuccessfulFetchAt)
	assert.Nil(t, applied.update.Status)
}

func TestRefreshFeedDemotesBrokenFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	repo := &fakeRepository{}
	driver := New(Config{}, repo, nil, nil, nil, testLogger())

	feed := testFeed(server.URL)
	feed.SuccessfulFetchAt = time.Now().UTC().Add(-scheduler.BrokenAfter - time.Hour)
	driver.RefreshFeed(context.Background(), feed)

	applied := repo.lastApplied(t)
	require.NotNil(t, applied.update.Status)
	assert.Equal(t, entity.FeedStatusBroken, *applied.update.Status)
	assert.Nil(t, applied.update.NextFetchAt)
}

func TestRefreshFeedParseFailureReschedules(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte("not xml at all"))
	}))
	defer server.Close()

	repo := &fakeRepository{}
	driver := New(Config{}, repo, nil, nil, nil, testLogger())

	driver.RefreshFeed(context.Background(), testFeed(server.URL))

	applied := repo.lastApplied(t)
	assert.Nil(t, applied.update.Items)
	require.NotNil(t, applied.update.NextFetchAt)
}

func TestRefreshOutOfDateFeedsRunsWholeBatch(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	repo := &fakeRepository{}
	for n := 0; n < 5; n++ {
		feed := testFeed(server.URL)
		feed.ID = int32(n + 1)
		repo.feeds = append(repo.feeds, *feed)
	}
	driver := New(Config{ConcurrentUpdates: 2}, repo, nil, nil, nil, testLogger())

	driver.refreshOutOfDateFeeds(context.Background())

	assert.Equal(t, 5, requests)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Len(t, repo.applied, 5)
}

func TestRefreshOutOfDateFeedsSkipsTickOnRepositoryError(t *testing.T) {
	repo := &fakeRepository{getErr: errors.New("db down")}
	driver := New(Config{}, repo, nil, nil, nil, testLogger())
	driver.refreshOutOfDateFeeds(context.Background())
	assert.Empty(t, repo.applied)
}

type fakeLease struct {
	mu       sync.Mutex
	acquired bool
	calls    int
	stepped  bool
}

func (l *fakeLease) TryAcquireOrRenew(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.acquired, nil
}

func (l *fakeLease) StepDown(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stepped = true
	return nil
}

func TestDriverSkipsTicksWithoutLeadership(t *testing.T) {
	repo := &fakeRepository{feeds: []entity.Feed{*testFeed("http://127.0.0.1:1/feed")}}
	lease := &fakeLease{acquired: false}
	driver := New(Config{TickSeconds: 1}, repo, lease, nil, nil, testLogger())
	driver.tick = 10 * time.Millisecond

	require.NoError(t, driver.Start())
	time.Sleep(50 * time.Millisecond)
	driver.Stop()

	lease.mu.Lock()
	defer lease.mu.Unlock()
	assert.Greater(t, lease.calls, 0)
	assert.True(t, lease.stepped)
	assert.Empty(t, repo.applied)
}
