// Package fetcher implements conditional HTTP retrieval of feed documents:
// a shared client with the feed user agent and redirect policy, status
// dispatch into a small result type and parsing of the caching headers the
// scheduler consumes.
package fetcher

import (
	"errors"
	"net/http"
	"time"

	"github.com/Tarick/naca-feeds/internal/version"
)

const (
	// RequestTimeout bounds every feed request end to end.
	RequestTimeout = 30 * time.Second

	acceptHeader = "application/rss+xml, application/xml, application/atom+xml, application/json, text/xml;q=0.9"

	refreshRedirectLimit   = 5
	bootstrapRedirectLimit = 20
)

var errTooManyRedirects = errors.New("too many redirects")

// UserAgent is sent on every outbound feed request.
func UserAgent() string {
	return "naca-feeds/" + version.Version
}

// NewRefreshClient returns the client used when polling a known feed.
// Temporary redirects are followed up to five hops; 301 Moved Permanently is
// returned to the caller so the stored feed link can be rewritten.
func NewRefreshClient() *http.Client {
	return &http.Client{
		Timeout: RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.Response != nil && req.Response.StatusCode == http.StatusMovedPermanently {
				return http.ErrUseLastResponse
			}
			if len(via) > refreshRedirectLimit {
				return errTooManyRedirects
			}
			return nil
		},
	}
}

// NewBootstrapClient returns the client used during initial feed creation.
// All redirects, permanent ones included, are followed up to twenty hops;
// beyond that the last redirect response is surfaced so creation can report
// a redirect loop.
func NewBootstrapClient() *http.Client {
	return &http.Client{
		Timeout: RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > bootstrapRedirectLimit {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}
