// Package parser decodes RSS, Atom and JSON Feed documents into the
// normalized entity.ParsedFeed model. The format is chosen from the response
// content type, never sniffed from the body.
package parser

import (
	"fmt"

	"github.com/Tarick/naca-feeds/internal/entity"
	"github.com/Tarick/naca-feeds/internal/feed/fetcher"
)

// ErrorKind classifies parse failures.
type ErrorKind int

const (
	// ErrorUnknownContentType means the response content type maps to no
	// supported feed format.
	ErrorUnknownContentType ErrorKind = iota
	// ErrorCorruptContentType means a Content-Type header was present but
	// unusable.
	ErrorCorruptContentType
	// ErrorCorruptResponseBody means the body could not be read in full.
	ErrorCorruptResponseBody
	// ErrorRSSDocument means the RSS XML did not decode.
	ErrorRSSDocument
	// ErrorAtomDocument means the Atom XML did not decode.
	ErrorAtomDocument
	// ErrorJSONDocument means the JSON Feed document did not decode.
	ErrorJSONDocument
	// ErrorSemantics means the document decoded but violates the format,
	// e.g. an item with no usable guid or title.
	ErrorSemantics
)

// Error is a classified parse failure.
type Error struct {
	Kind  ErrorKind
	cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrorUnknownContentType:
		return "unknown content type"
	case ErrorCorruptContentType:
		return "corrupt content type"
	case ErrorCorruptResponseBody:
		return fmt.Sprintf("corrupt response body: %v", e.cause)
	case ErrorRSSDocument:
		return fmt.Sprintf("failed to decode RSS feed: %v", e.cause)
	case ErrorAtomDocument:
		return fmt.Sprintf("failed to decode Atom feed: %v", e.cause)
	case ErrorJSONDocument:
		return fmt.Sprintf("failed to decode JSON feed: %v", e.cause)
	case ErrorSemantics:
		return fmt.Sprintf("failed to normalize feed: %v", e.cause)
	default:
		return "unknown parse error"
	}
}

func (e *Error) Unwrap() error {
	return e.cause
}

// ParseResponse normalizes the body of a modified fetch result.
func ParseResponse(res *fetcher.Result) (*entity.ParsedFeed, error) {
	if err := res.BodyErr(); err != nil {
		return nil, &Error{Kind: ErrorCorruptResponseBody, cause: err}
	}
	if res.Header.Get("Content-Type") == "" {
		return nil, &Error{Kind: ErrorUnknownContentType}
	}
	contentType := res.ContentType()
	if contentType == "" {
		// header present but reduced to an empty token
		return nil, &Error{Kind: ErrorCorruptContentType}
	}
	return Parse(contentType, res.Body)
}

// Parse decodes body according to the given content type token (lowercased,
// without parameters).
func Parse(contentType string, body []byte) (*entity.ParsedFeed, error) {
	if contentType == "" {
		return nil, &Error{Kind: ErrorUnknownContentType}
	}
	format, ok := entity.FormatFromContentType(contentType)
	if !ok {
		return nil, &Error{Kind: ErrorUnknownContentType}
	}
	switch format {
	case entity.FeedFormatRSS:
		return parseRSS(body)
	case entity.FeedFormatAtom:
		return parseAtom(body)
	default:
		return parseJSONFeed(body)
	}
}
