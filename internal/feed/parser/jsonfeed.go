package parser

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Tarick/naca-feeds/internal/entity"
)

type jsonFeed struct {
	Version     string         `json:"version"`
	Title       string         `json:"title"`
	HomePageURL *string        `json:"home_page_url"`
	FeedURL     *string        `json:"feed_url"`
	Description *string        `json:"description"`
	Icon        *string        `json:"icon"`
	Items       []jsonFeedItem `json:"items"`
}

type jsonFeedItem struct {
	ID            string           `json:"id"`
	URL           *string          `json:"url"`
	ExternalURL   *string          `json:"external_url"`
	Title         *string          `json:"title"`
	ContentText   *string          `json:"content_text"`
	ContentHTML   *string          `json:"content_html"`
	Summary       *string          `json:"summary"`
	DatePublished *time.Time       `json:"date_published"`
	Tags          []string         `json:"tags"`
	Attachments   []jsonAttachment `json:"attachments"`
}

type jsonAttachment struct {
	URL         string `json:"url"`
	MIMEType    string `json:"mime_type"`
	SizeInBytes int64  `json:"size_in_bytes"`
}

func parseJSONFeed(body []byte) (*entity.ParsedFeed, error) {
	var doc jsonFeed
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &Error{Kind: ErrorJSONDocument, cause: err}
	}

	// the canonical feed address wins over the site address
	var link string
	switch {
	case doc.FeedURL != nil:
		link = *doc.FeedURL
	case doc.HomePageURL != nil:
		link = *doc.HomePageURL
	default:
		return nil, &Error{Kind: ErrorSemantics, cause: errors.New("json feed without feed_url or home_page_url")}
	}

	items := make([]entity.ParsedFeedItem, 0, len(doc.Items))
	for n := range doc.Items {
		item, err := jsonItemToParsed(&doc.Items[n])
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	description := ""
	if doc.Description != nil {
		description = *doc.Description
	}

	return &entity.ParsedFeed{
		Format:         entity.FeedFormatJSON,
		Link:           link,
		Domain:         entity.DomainFromLink(link),
		Title:          doc.Title,
		Description:    description,
		Icon:           doc.Icon,
		SkipHours:      []int32{},
		SkipDaysOfWeek: []int32{},
		TTLInMinutes:   0,
		Items:          items,
	}, nil
}

func jsonItemToParsed(item *jsonFeedItem) (*entity.ParsedFeedItem, error) {
	if item.ID == "" {
		return nil, &Error{Kind: ErrorSemantics, cause: errors.New("json feed item without id")}
	}

	content := item.ContentText
	if content == nil {
		content = item.ContentHTML
	}

	// an untitled item still renders by its content
	title := item.Title
	if title == nil {
		title = content
	}
	if title == nil {
		return nil, &Error{Kind: ErrorSemantics, cause: errors.New("json feed item without title or content")}
	}

	var enclosure *entity.Enclosure
	if len(item.Attachments) > 0 {
		attachment := &item.Attachments[0]
		enclosure = &entity.Enclosure{
			URL:      attachment.URL,
			Length:   int32(attachment.SizeInBytes),
			MIMEType: attachment.MIMEType,
		}
	}

	categories := item.Tags
	if categories == nil {
		categories = []string{}
	}

	return &entity.ParsedFeedItem{
		GUID:         item.ID,
		Title:        *title,
		Link:         item.URL,
		Description:  item.Summary,
		Enclosure:    enclosure,
		Content:      content,
		Categories:   categories,
		CommentsLink: item.ExternalURL,
		PublishedAt:  item.DatePublished,
	}, nil
}
