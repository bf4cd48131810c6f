package parser

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/Tarick/naca-feeds/internal/entity"
)

type atomFeed struct {
	XMLName  xml.Name    `xml:"feed"`
	ID       string      `xml:"id"`
	Title    atomText    `xml:"title"`
	Subtitle *atomText   `xml:"subtitle"`
	Icon     string      `xml:"icon"`
	Updated  string      `xml:"updated"`
	Entries  []atomEntry `xml:"entry"`
}

type atomText struct {
	Value string `xml:",chardata"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     atomText     `xml:"title"`
	Summary   *atomText    `xml:"summary"`
	Links     []atomLink   `xml:"link"`
	Content   *atomContent `xml:"content"`
	Published string       `xml:"published"`
}

type atomLink struct {
	Rel    string `xml:"rel,attr"`
	Href   string `xml:"href,attr"`
	Type   string `xml:"type,attr"`
	Length string `xml:"length,attr"`
}

// atomContent carries either inline character data or an src link to the
// full content.
type atomContent struct {
	Src   string `xml:"src,attr"`
	Value string `xml:",chardata"`
}

func parseAtom(body []byte) (*entity.ParsedFeed, error) {
	var doc atomFeed
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&doc); err != nil {
		return nil, &Error{Kind: ErrorAtomDocument, cause: err}
	}

	items := make([]entity.ParsedFeedItem, 0, len(doc.Entries))
	for n := range doc.Entries {
		items = append(items, atomEntryToParsed(&doc.Entries[n]))
	}

	var updatedAt *time.Time
	if doc.Updated != "" {
		if at, err := time.Parse(time.RFC3339, strings.TrimSpace(doc.Updated)); err == nil {
			at = at.UTC()
			updatedAt = &at
		}
	}

	description := ""
	if doc.Subtitle != nil {
		description = doc.Subtitle.Value
	}
	var icon *string
	if doc.Icon != "" {
		icon = &doc.Icon
	}

	return &entity.ParsedFeed{
		Format:         entity.FeedFormatAtom,
		Link:           doc.ID,
		Domain:         entity.DomainFromLink(doc.ID),
		Title:          doc.Title.Value,
		Description:    description,
		Icon:           icon,
		SkipHours:      []int32{},
		SkipDaysOfWeek: []int32{},
		UpdatedAt:      updatedAt,
		TTLInMinutes:   0,
		Items:          items,
	}, nil
}

// atomEntryToParsed normalizes one entry. The entry id doubles as both guid
// and link.
func atomEntryToParsed(entry *atomEntry) entity.ParsedFeedItem {
	var enclosure *entity.Enclosure
	var commentsLink *string
	for n := range entry.Links {
		link := &entry.Links[n]
		switch link.Rel {
		case "enclosure":
			if enclosure == nil {
				length, err := strconv.ParseInt(link.Length, 10, 32)
				if err != nil {
					length = 0
				}
				enclosure = &entity.Enclosure{
					URL:      link.Href,
					Length:   int32(length),
					MIMEType: link.Type,
				}
			}
		case "comments":
			if commentsLink == nil {
				href := link.Href
				commentsLink = &href
			}
		}
	}

	var content *string
	if entry.Content != nil {
		if value := strings.TrimSpace(entry.Content.Value); value != "" {
			content = &value
		} else if entry.Content.Src != "" {
			content = &entry.Content.Src
		}
	}

	var description *string
	if entry.Summary != nil {
		description = &entry.Summary.Value
	}

	var publishedAt *time.Time
	if entry.Published != "" {
		if at, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.Published)); err == nil {
			at = at.UTC()
			publishedAt = &at
		}
	}

	link := entry.ID
	return entity.ParsedFeedItem{
		GUID:         entry.ID,
		Title:        entry.Title.Value,
		Link:         &link,
		Description:  description,
		Enclosure:    enclosure,
		Content:      content,
		Categories:   []string{},
		CommentsLink: commentsLink,
		PublishedAt:  publishedAt,
	}
}
