package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Tarick/naca-feeds/internal/entity"
)

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Links         []rssLink `xml:"link"`
	Description   string    `xml:"description"`
	Image         *rssImage `xml:"image"`
	LastBuildDate string    `xml:"lastBuildDate"`
	SkipHours     []string  `xml:"skipHours>hour"`
	SkipDays      []string  `xml:"skipDays>day"`
	Items         []rssItem `xml:"item"`
}

// rssLink captures both plain RSS <link> elements and namespaced variants
// such as atom:link; only the former carry character data.
type rssLink struct {
	Value string `xml:",chardata"`
}

type rssImage struct {
	URL string `xml:"url"`
}

type rssItem struct {
	Title       string        `xml:"title"`
	Links       []rssLink     `xml:"link"`
	Description string        `xml:"description"`
	GUID        *rssGUID      `xml:"guid"`
	Enclosure   *rssEnclosure `xml:"enclosure"`
	Comments    string        `xml:"comments"`
	PubDate     string        `xml:"pubDate"`
	Content     string        `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
}

type rssGUID struct {
	Value string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length string `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

func (l rssLink) text() string {
	return strings.TrimSpace(l.Value)
}

func firstLink(links []rssLink) string {
	for _, link := range links {
		if text := link.text(); text != "" {
			return text
		}
	}
	return ""
}

var rssDayNumbers = map[string]int32{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

func parseRSS(body []byte) (*entity.ParsedFeed, error) {
	var doc rssDocument
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&doc); err != nil {
		return nil, &Error{Kind: ErrorRSSDocument, cause: err}
	}
	channel := &doc.Channel

	items := make([]entity.ParsedFeedItem, 0, len(channel.Items))
	for n := range channel.Items {
		item, err := rssItemToParsed(&channel.Items[n])
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	skipHours := make([]int32, 0, len(channel.SkipHours))
	for _, raw := range channel.SkipHours {
		hour, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
		if err != nil || hour < 0 || hour >= 24 {
			continue
		}
		skipHours = append(skipHours, int32(hour))
	}

	skipDays := make([]int32, 0, len(channel.SkipDays))
	for _, raw := range channel.SkipDays {
		if day, ok := rssDayNumbers[strings.ToLower(strings.TrimSpace(raw))]; ok {
			skipDays = append(skipDays, day)
		}
	}

	var updatedAt *time.Time
	if channel.LastBuildDate != "" {
		if at, ok := parseRFC2822(channel.LastBuildDate); ok {
			updatedAt = &at
		}
	}

	var icon *string
	if channel.Image != nil && channel.Image.URL != "" {
		icon = &channel.Image.URL
	}

	link := firstLink(channel.Links)
	return &entity.ParsedFeed{
		Format:         entity.FeedFormatRSS,
		Link:           link,
		Domain:         entity.DomainFromLink(link),
		Title:          channel.Title,
		Description:    channel.Description,
		Icon:           icon,
		SkipHours:      skipHours,
		SkipDaysOfWeek: skipDays,
		UpdatedAt:      updatedAt,
		TTLInMinutes:   0,
		Items:          items,
	}, nil
}

func rssItemToParsed(item *rssItem) (*entity.ParsedFeedItem, error) {
	link := firstLink(item.Links)

	// one of guid, link, title or description must identify the item
	guid := ""
	if item.GUID != nil {
		guid = strings.TrimSpace(item.GUID.Value)
	}
	if guid == "" {
		guid = link
	}
	if guid == "" {
		guid = item.Title
	}
	if guid == "" {
		guid = item.Description
	}
	if guid == "" {
		return nil, &Error{Kind: ErrorSemantics, cause: errors.New("rss item without guid, link, title or description")}
	}

	title := item.Title
	if title == "" {
		title = item.Description
	}
	if title == "" {
		return nil, &Error{Kind: ErrorSemantics, cause: errors.New("rss item without title or description")}
	}

	var enclosure *entity.Enclosure
	if item.Enclosure != nil {
		length, err := strconv.ParseInt(item.Enclosure.Length, 10, 32)
		if err != nil {
			length = 0
		}
		enclosure = &entity.Enclosure{
			URL:      item.Enclosure.URL,
			Length:   int32(length),
			MIMEType: item.Enclosure.Type,
		}
	}

	var publishedAt *time.Time
	if item.PubDate != "" {
		at, err := time.Parse(time.RFC3339, strings.TrimSpace(item.PubDate))
		if err != nil {
			return nil, &Error{Kind: ErrorSemantics, cause: errors.New("rss item with unparseable pubDate")}
		}
		at = at.UTC()
		publishedAt = &at
	}

	parsed := &entity.ParsedFeedItem{
		GUID:        guid,
		Title:       title,
		PublishedAt: publishedAt,
		Enclosure:   enclosure,
		Categories:  []string{},
	}
	if link != "" {
		parsed.Link = &link
	}
	if item.Description != "" {
		parsed.Description = &item.Description
	}
	if item.Content != "" {
		parsed.Content = &item.Content
	}
	if item.Comments != "" {
		parsed.CommentsLink = &item.Comments
	}
	return parsed, nil
}

// parseRFC2822 accepts the date formats RSS documents carry in
// lastBuildDate, with and without a named zone.
func parseRFC2822(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC1123Z, time.RFC1123} {
		if at, err := time.Parse(layout, value); err == nil {
			return at.UTC(), true
		}
	}
	return time.Time{}, false
}
