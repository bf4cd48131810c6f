package fetcher

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// Status tags the success variants of a fetch. Protocol and transport faults
// travel on the error channel instead, which keeps the scheduler a total
// function on outcomes.
type Status int

const (
	// StatusModified is a 200 with a fresh document body.
	StatusModified Status = iota
	// StatusNotModified is a 304 answer to our validators.
	StatusNotModified
	// StatusMoved is a 301 carrying the new feed location.
	StatusMoved
)

// Result is a fetch outcome with the response parts later stages consume.
// The body is fully read and the connection released before Result is
// returned.
type Result struct {
	Status   Status
	Header   http.Header
	Body     []byte
	Location string

	// bodyErr records a mid-stream read failure; surfaced by the parser
	// as a corrupt response body.
	bodyErr error
}

// BodyErr reports a failure while draining the response body.
func (r *Result) BodyErr() error {
	return r.bodyErr
}

// ContentType returns the first Content-Type token, lowercased, without
// parameters. Empty when the header is missing.
func (r *Result) ContentType() string {
	value := r.Header.Get("Content-Type")
	if value == "" {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(strings.SplitN(value, ";", 2)[0]))
}

// ETag returns the ETag header verbatim, nil when absent. No weak/strong
// normalization is applied.
func (r *Result) ETag() *string {
	value := r.Header.Get("ETag")
	if value == "" {
		return nil
	}
	return &value
}

// CacheMaxAge returns the Cache-Control max-age directive when present and
// well formed.
func (r *Result) CacheMaxAge() *time.Duration {
	value := r.Header.Get("Cache-Control")
	if value == "" {
		return nil
	}
	age, ok := ParseCacheControlMaxAge(value)
	if !ok {
		return nil
	}
	return &age
}

const defaultRateLimitDelay = time.Hour

// Fetch performs one conditional GET of a feed document. Stored validators
// are attached when present: etag as If-None-Match and updatedAt as
// If-Modified-Since. The status dispatch is exhaustive; anything outside the
// table comes back as *Error.
func Fetch(ctx context.Context, client *http.Client, link string, updatedAt *time.Time, etag *string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, &Error{Kind: ErrorTransport, cause: err}
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", UserAgent())
	if etag != nil {
		req.Header.Set("If-None-Match", *etag)
	}
	if updatedAt != nil {
		req.Header.Set("If-Modified-Since", updatedAt.UTC().Format(time.RFC1123Z))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Kind: ErrorTransport, cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		return &Result{
			Status:  StatusModified,
			Header:  resp.Header,
			Body:    body,
			bodyErr: readErr,
		}, nil

	case resp.StatusCode == http.StatusNotModified:
		return &Result{Status: StatusNotModified, Header: resp.Header}, nil

	case resp.StatusCode == http.StatusMovedPermanently:
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, &Error{Kind: ErrorMovedWithoutLocation, Status: resp.StatusCode}
		}
		return &Result{Status: StatusMoved, Header: resp.Header, Location: location}, nil

	case resp.StatusCode == http.StatusBadRequest:
		return nil, &Error{Kind: ErrorBadRequest, Status: resp.StatusCode}

	case resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: ErrorForbidden, Status: resp.StatusCode}

	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Kind: ErrorNotFound, Status: resp.StatusCode}

	case resp.StatusCode == http.StatusTooManyRequests:
		delay := defaultRateLimitDelay
		if value := resp.Header.Get("Retry-After"); value != "" {
			if parsed, ok := ParseRetryAfter(value); ok {
				delay = parsed
			}
		}
		return nil, &Error{Kind: ErrorRateLimited, Status: resp.StatusCode, RetryAfter: delay}

	case resp.StatusCode >= 500 && resp.StatusCode <= 599:
		return nil, &Error{Kind: ErrorServer, Status: resp.StatusCode}

	default:
		return nil, &Error{Kind: ErrorUnexpectedStatus, Status: resp.StatusCode}
	}
}
