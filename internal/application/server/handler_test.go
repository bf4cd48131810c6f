package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tarick/naca-feeds/internal/entity"
	"github.com/Tarick/naca-feeds/internal/feed/refresher"
)

type fakeFeedsRepository struct {
	feeds     []entity.Feed
	getErr    error
	healthErr error
}

func (r *fakeFeedsRepository) GetAll(ctx context.Context) ([]entity.Feed, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.feeds, nil
}

func (r *fakeFeedsRepository) GetByID(ctx context.Context, id int32) (*entity.Feed, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	for n := range r.feeds {
		if r.feeds[n].ID == id {
			return &r.feeds[n], nil
		}
	}
	return nil, nil
}

func (r *fakeFeedsRepository) Healthcheck(ctx context.Context) error {
	return r.healthErr
}

type fakeCreator struct {
	feed *entity.Feed
	err  error
}

func (c *fakeCreator) CreateFeed(ctx context.Context, link string) (*entity.Feed, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.feed, nil
}

func testRouter(repository FeedsRepository, creator FeedCreator) *chi.Mux {
	handler := NewHandler(zap.NewNop().Sugar(), opentracing.NoopTracer{}, repository, creator)
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Route("/feeds", func(r chi.Router) {
		r.Get("/", handler.getFeeds)
		r.Post("/", handler.createFeed)
		r.Post("/discover", handler.discoverFeeds)
		r.Route("/{feed_id}", func(r chi.Router) {
			r.Use(handler.feedCtx)
			r.Get("/", handler.getFeed)
		})
	})
	r.Get("/healthz", handler.healthCheck)
	return r
}

func sampleFeed() entity.Feed {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return entity.Feed{
		ID:                42,
		Status:            entity.FeedStatusActive,
		Format:            entity.FeedFormatRSS,
		Link:              "https://example.com/feed.xml",
		Title:             "Example",
		CreatedAt:         now,
		UpdatedAt:         now,
		FetchedAt:         now,
		SuccessfulFetchAt: now,
		NextFetchAt:       now.Add(15 * time.Minute),
	}
}

func TestGetFeeds(t *testing.T) {
	router := testRouter(&fakeFeedsRepository{feeds: []entity.Feed{sampleFeed()}}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feeds", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var feeds []entity.Feed
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &feeds))
	require.Len(t, feeds, 1)
	assert.Equal(t, int32(42), feeds[0].ID)
	assert.Equal(t, "Example", feeds[0].Title)
}

func TestGetFeed(t *testing.T) {
	router := testRouter(&fakeFeedsRepository{feeds: []entity.Feed{sampleFeed()}}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feeds/42", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var feed entity.Feed
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &feed))
	assert.Equal(t, "https://example.com/feed.xml", feed.Link)
}

func TestGetFeedNotFound(t *testing.T) {
	router := testRouter(&fakeFeedsRepository{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feeds/9000", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetFeedBadID(t *testing.T) {
	router := testRouter(&fakeFeedsRepository{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feeds/not-a-number", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetFeedRepositoryFailure(t *testing.T) {
	router := testRouter(&fakeFeedsRepository{getErr: errors.New("db down")}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feeds/42", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func postJSON(router http.Handler, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateFeed(t *testing.T) {
	created := sampleFeed()
	router := testRouter(&fakeFeedsRepository{}, &fakeCreator{feed: &created})

	w := postJSON(router, "/feeds", `{"link": "https://example.com/feed.xml"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var feed entity.Feed
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &feed))
	assert.Equal(t, int32(42), feed.ID)
}

func TestCreateFeedValidation(t *testing.T) {
	router := testRouter(&fakeFeedsRepository{}, &fakeCreator{})

	cases := []struct {
		name string
		body string
	}{
		{"missing link", `{}`},
		{"not a url", `{"link": "definitely not a url"}`},
		{"too short", `{"link": "h"}`},
		{"malformed json", `{"link": `},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(router, "/feeds", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCreateFeedErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"upstream not found", &refresher.CreationError{Kind: refresher.CreationNotFound}, http.StatusNotFound},
		{"unparseable document", &refresher.CreationError{Kind: refresher.CreationParsingError}, http.StatusUnprocessableEntity},
		{"storage failure", &refresher.CreationError{Kind: refresher.CreationStorageError}, http.StatusInternalServerError},
		{"redirect loop", &refresher.CreationError{Kind: refresher.CreationRedirectLoop}, http.StatusBadGateway},
		{"fetch failure", &refresher.CreationError{Kind: refresher.CreationFetchError}, http.StatusBadGateway},
		{"unclassified failure", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := testRouter(&fakeFeedsRepository{}, &fakeCreator{err: tc.err})
			w := postJSON(router, "/feeds", `{"link": "https://example.com/feed.xml"}`)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	router := testRouter(&fakeFeedsRepository{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ".", w.Body.String())
}

func TestHealthCheckRepositoryDown(t *testing.T) {
	router := testRouter(&fakeFeedsRepository{healthErr: errors.New("db down")}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDiscoverFeeds(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head>
<link rel="alternate" type="application/rss+xml" href="/feed.xml">
</head><body></body></html>`))
	}))
	defer page.Close()

	router := testRouter(&fakeFeedsRepository{}, nil)
	w := postJSON(router, "/feeds/discover", `{"url": "`+page.URL+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var feeds []map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &feeds))
	require.Len(t, feeds, 1)
	assert.Equal(t, page.URL+"/feed.xml", feeds[0]["url"])
	assert.Equal(t, "rss", feeds[0]["format"])
}

func TestDiscoverFeedsDirectFeedAddress(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(`<rss version="2.0"><channel><title>T</title></channel></rss>`))
	}))
	defer page.Close()

	router := testRouter(&fakeFeedsRepository{}, nil)
	w := postJSON(router, "/feeds/discover", `{"url": "`+page.URL+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var feeds []map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &feeds))
	require.Len(t, feeds, 1)
	assert.Equal(t, page.URL, feeds[0]["url"])
	assert.Equal(t, "rss", feeds[0]["format"])
}

func TestDiscoverFeedsUnreachablePage(t *testing.T) {
	router := testRouter(&fakeFeedsRepository{}, nil)
	w := postJSON(router, "/feeds/discover", `{"url": "http://127.0.0.1:1/nothing"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
