// Package discover finds feed addresses for a website: declared link
// elements in the HTML head, with format sniffing as a fallback when the
// address itself serves a feed document.
package discover

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/Tarick/naca-feeds/internal/entity"
)

// FeedInformation is one discovered feed candidate.
type FeedInformation struct {
	URL    string            `json:"url"`
	Format entity.FeedFormat `json:"format"`
}

// DiscoverFeedLinks extracts feed links declared in an HTML document.
// Relative hrefs are resolved against the page URL.
func DiscoverFeedLinks(pageURL *url.URL, html []byte) ([]FeedInformation, error) {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	feeds := []FeedInformation{}
	document.Find("link[type]").Each(func(_ int, selection *goquery.Selection) {
		link, ok := selection.Attr("href")
		if !ok {
			return
		}
		var format entity.FeedFormat
		switch strings.TrimSpace(selection.AttrOr("type", "")) {
		case "application/atom+xml":
			format = entity.FeedFormatAtom
		case "application/rss+xml":
			format = entity.FeedFormatRSS
		case "application/json":
			format = entity.FeedFormatJSON
		default:
			return
		}
		resolved, err := pageURL.Parse(link)
		if err != nil {
			return
		}
		feeds = append(feeds, FeedInformation{URL: resolved.String(), Format: format})
	})
	return feeds, nil
}

// SniffFormat detects the feed format of a document body, for addresses that
// point at a feed directly instead of an HTML page.
func SniffFormat(body []byte) (entity.FeedFormat, bool) {
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeRSS:
		return entity.FeedFormatRSS, true
	case gofeed.FeedTypeAtom:
		return entity.FeedFormatAtom, true
	case gofeed.FeedTypeJSON:
		return entity.FeedFormatJSON, true
	default:
		return "", false
	}
}
