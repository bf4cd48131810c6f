package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Tarick/naca-feeds/internal/entity"
	"github.com/Tarick/naca-feeds/internal/feed/discover"
	"github.com/Tarick/naca-feeds/internal/feed/refresher"
	"github.com/asaskevich/govalidator"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otLog "github.com/opentracing/opentracing-go/log"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
)

// Handler provides http handlers
type Handler struct {
	logger     Logger
	repository FeedsRepository
	creator    FeedCreator
	tracer     opentracing.Tracer
	pageClient *http.Client
}

// FeedCreator bootstraps new feeds from a link
type FeedCreator interface {
	CreateFeed(ctx context.Context, link string) (*entity.Feed, error)
}

// FeedsRepository defines repository methods used to serve feeds
type FeedsRepository interface {
	GetAll(context.Context) ([]entity.Feed, error)
	GetByID(context.Context, int32) (*entity.Feed, error)
	Healthcheck(context.Context) error
}

// NewHandler creates http handler
func NewHandler(logger Logger, tracer opentracing.Tracer, feedRepository FeedsRepository, creator FeedCreator) *Handler {
	return &Handler{
		logger:     logger,
		repository: feedRepository,
		creator:    creator,
		tracer:     tracer,
		pageClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// FeedResponse defines Feed response with Body and any additional headers
// swagger:response
type FeedResponse struct {
	// in: body
	Body FeedResponseBody
}

// FeedResponseBody is returned on successfull operations to get or create feed.
type FeedResponseBody struct {
	// swagger:allOf
	*entity.Feed
}

// Render converts FeedResponseBody to json and sends it to client
func (fp *FeedResponse) Render(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, fp.Body)
}

// NewFeedResponse creates new response struct body for feed
func NewFeedResponse(f *entity.Feed) *FeedResponse {
	return &FeedResponse{Body: FeedResponseBody{
		Feed: f,
	}}
}

// Used as middleware to load an feed object from the URL parameters passed through as the request.
// If not found - 404
func (h *Handler) feedCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span, ctx := h.setupTracingSpan(r, "retrieve-feed-middleware")
		defer span.Finish()

		feedIDParam := chi.URLParam(r, "feed_id")
		feedID, err := strconv.ParseInt(feedIDParam, 10, 32)
		if err != nil {
			ext.HTTPStatusCode.Set(span, http.StatusBadRequest)
			span.LogFields(
				otLog.Error(err),
			)
			ErrInvalidRequest(fmt.Errorf("wrong feed id format: %w", err)).Render(w, r)
			return
		}
		span.SetTag("feed.ID", feedID)
		dbFeed, err := h.repository.GetByID(ctx, int32(feedID))
		if err != nil {
			ext.HTTPStatusCode.Set(span, http.StatusInternalServerError)
			ErrInternal(err).Render(w, r)
			return
		}
		// empty result
		if dbFeed == nil {
			ext.HTTPStatusCode.Set(span, http.StatusNotFound)
			ErrNotFound.Render(w, r)
			return
		}
		span.LogKV("event", "got feed from repository")
		ctx = context.WithValue(ctx, "feed", dbFeed)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var isRequestURL = validation.NewStringRuleWithError(
	govalidator.IsRequestURL,
	validation.NewError("validation_is_request_url", "must be a valid absolute URL"))

// FeedCreateRequestBody defines data of feed creation request body
type FeedCreateRequestBody struct {
	Link string `json:"link"`
}

// Validate request body
func (b FeedCreateRequestBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Link, validation.Required, validation.Length(5, 2048), isRequestURL),
	)
}

// Bind implements Bind interface for chi Bind to map request body to request body struct
func (b *FeedCreateRequestBody) Bind(r *http.Request) error {
	return b.Validate()
}

// DiscoverRequestBody defines data of feed discovery request body
type DiscoverRequestBody struct {
	URL string `json:"url"`
}

// Validate request body
func (b DiscoverRequestBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.URL, validation.Required, validation.Length(5, 2048), isRequestURL),
	)
}

// Bind implements Bind interface for chi Bind to map request body to request body struct
func (b *DiscoverRequestBody) Bind(r *http.Request) error {
	return b.Validate()
}

// Response with single feed
func (h *Handler) getFeed(w http.ResponseWriter, r *http.Request) {
	span, _ := h.setupTracingSpan(r, "get-feed")
	defer span.Finish()
	dbFeed := r.Context().Value("feed").(*entity.Feed)
	ext.HTTPStatusCode.Set(span, http.StatusOK)
	span.LogKV("event", "got feed")
	NewFeedResponse(dbFeed).Render(w, r)
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if err := h.repository.Healthcheck(r.Context()); err != nil {
		h.logger.Error("Healthcheck: repository check failed with: ", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Repository is unailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("."))
}

// createFeed bootstraps a feed from the submitted link: it is fetched,
// parsed and stored with its initial items before the response returns.
func (h *Handler) createFeed(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "create-feed")
	defer span.Finish()
	body := new(FeedCreateRequestBody)
	if err := render.Bind(r, body); err != nil {
		h.logger.Error("Failure accepting input for creating feed with error: ", err)
		ext.HTTPStatusCode.Set(span, http.StatusBadRequest)
		span.LogFields(
			otLog.Error(err),
		)
		ErrInvalidRequest(err).Render(w, r)
		return
	}
	span.SetTag("feed.Link", body.Link)
	f, err := h.creator.CreateFeed(ctx, body.Link)
	if err != nil {
		h.logger.Error("Failure creating feed from ", body.Link, ": ", err)
		response := creationErrResponse(err)
		ext.HTTPStatusCode.Set(span, uint16(response.HTTPStatusCode))
		span.LogFields(
			otLog.Error(err),
		)
		response.Render(w, r)
		return
	}
	// return 201 on create
	ext.HTTPStatusCode.Set(span, http.StatusCreated)
	span.LogKV("event", "created feed")
	render.Status(r, http.StatusCreated)
	NewFeedResponse(f).Render(w, r)
}

// creationErrResponse maps bootstrap failures to HTTP status codes
func creationErrResponse(err error) *ErrResponse {
	var creationErr *refresher.CreationError
	if !errors.As(err, &creationErr) {
		return ErrInternal(err)
	}
	switch creationErr.Kind {
	case refresher.CreationNotFound:
		return ErrNotFound
	case refresher.CreationParsingError:
		return ErrUnprocessable(err)
	case refresher.CreationStorageError:
		return ErrInternal(err)
	default:
		return ErrBadGateway(err)
	}
}

// discoverFeeds fetches the submitted page and returns the feed addresses it
// declares. A page that is itself a feed document is returned as the single
// candidate.
func (h *Handler) discoverFeeds(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "discover-feeds")
	defer span.Finish()
	body := new(DiscoverRequestBody)
	if err := render.Bind(r, body); err != nil {
		ext.HTTPStatusCode.Set(span, http.StatusBadRequest)
		span.LogFields(
			otLog.Error(err),
		)
		ErrInvalidRequest(err).Render(w, r)
		return
	}
	pageURL, err := url.Parse(body.URL)
	if err != nil {
		ext.HTTPStatusCode.Set(span, http.StatusBadRequest)
		ErrInvalidRequest(err).Render(w, r)
		return
	}
	span.SetTag("page.URL", body.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, body.URL, nil)
	if err != nil {
		ext.HTTPStatusCode.Set(span, http.StatusBadRequest)
		ErrInvalidRequest(err).Render(w, r)
		return
	}
	resp, err := h.pageClient.Do(req)
	if err != nil {
		h.logger.Error("Failure fetching page for feed discovery: ", err)
		ext.HTTPStatusCode.Set(span, http.StatusBadGateway)
		ErrBadGateway(err).Render(w, r)
		return
	}
	defer resp.Body.Close()
	page, err := io.ReadAll(resp.Body)
	if err != nil {
		h.logger.Error("Failure reading page for feed discovery: ", err)
		ext.HTTPStatusCode.Set(span, http.StatusBadGateway)
		ErrBadGateway(err).Render(w, r)
		return
	}

	// the address may point at a feed document directly
	if format, ok := discover.SniffFormat(page); ok {
		span.LogKV("event", "page is a feed document")
		render.JSON(w, r, []discover.FeedInformation{{URL: body.URL, Format: format}})
		return
	}

	feeds, err := discover.DiscoverFeedLinks(pageURL, page)
	if err != nil {
		h.logger.Error("Failure parsing page for feed discovery: ", err)
		ext.HTTPStatusCode.Set(span, http.StatusUnprocessableEntity)
		ErrUnprocessable(err).Render(w, r)
		return
	}
	span.LogFields(
		otLog.Int("feedsNumber", len(feeds)),
	)
	render.JSON(w, r, feeds)
}

// Returns feeds entries
// TODO: filtering
func (h *Handler) getFeeds(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "serve-get-all-feeds")
	defer span.Finish()

	dbFeeds, err := h.repository.GetAll(ctx)
	span.LogKV("event", "got feeds from repository")
	if err != nil {
		h.logger.Error("Failure reading feeds from database: ", err)
		ErrInternal(fmt.Errorf("failure reading feeds from database")).Render(w, r)
		ext.HTTPStatusCode.Set(span, http.StatusInternalServerError)
		return
	}
	feedsResponse := make([]FeedResponseBody, len(dbFeeds))
	for i := 0; i < len(dbFeeds); i++ {
		feedsResponse[i] = NewFeedResponse(&dbFeeds[i]).Body
	}
	span.LogKV("event", "populated response feeds slice")
	span.LogFields(
		otLog.Int("feedsNumber", len(dbFeeds)),
	)
	render.JSON(w, r, feedsResponse)
}

func (h *Handler) setupTracingSpan(r *http.Request, name string) (opentracing.Span, context.Context) {
	// we ignore error since if there are missing headers it will start new trace
	spanContext, _ := h.tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(r.Header))
	span := h.tracer.StartSpan(name, ext.RPCServerOption(spanContext))
	ctx := opentracing.ContextWithSpan(r.Context(), span)
	ext.Component.Set(span, "httpServer-chi")
	ext.HTTPMethod.Set(span, r.Method)
	ext.HTTPUrl.Set(span, r.URL.String())
	return span, ctx
}
