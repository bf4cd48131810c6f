package entity

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestMergeParsedReportsChanges(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	parsed := ParsedFeedItem{
		GUID:        "guid-1",
		Title:       "Title",
		Link:        strPtr("https://example.com/1"),
		Description: strPtr("Description"),
		Categories:  []string{},
	}
	item := NewFeedItemFromParsed(&parsed, 7, 0, now)

	// same content again, nothing changes
	assert.False(t, item.MergeParsed(&parsed, 0))

	// title change is always applied
	changed := parsed
	changed.Title = "New title"
	assert.True(t, item.MergeParsed(&changed, 0))
	assert.Equal(t, "New title", item.Title)

	// position change alone counts as a change
	assert.True(t, item.MergeParsed(&changed, 3))
	assert.Equal(t, int32(3), item.IndexInFeed)
}

func TestMergeParsedKeepsAbsentFields(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	full := ParsedFeedItem{
		GUID:        "guid-1",
		Title:       "Title",
		Link:        strPtr("https://example.com/1"),
		Description: strPtr("Description"),
		Content:     strPtr("Content"),
		Categories:  []string{"a"},
	}
	item := NewFeedItemFromParsed(&full, 7, 0, now)

	sparse := ParsedFeedItem{
		GUID:       "guid-1",
		Title:      "Title",
		Categories: []string{"a"},
	}
	assert.False(t, item.MergeParsed(&sparse, 0))
	require.NotNil(t, item.Link)
	assert.Equal(t, "https://example.com/1", *item.Link)
	require.NotNil(t, item.Description)
	assert.Equal(t, "Description", *item.Description)
	require.NotNil(t, item.Content)
	assert.Equal(t, "Content", *item.Content)
}

func TestPlanItemReconciliationFirstParse(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	parsed := []ParsedFeedItem{
		{GUID: "new", Title: "Newest", Categories: []string{}},
		{GUID: "mid", Title: "Middle", Categories: []string{}},
		{GUID: "old", Title: "Oldest", Categories: []string{}},
	}

	plan := PlanItemReconciliation(1, nil, parsed, now)
	require.Len(t, plan.Inserts, 3)
	assert.Empty(t, plan.Updates)
	assert.True(t, plan.Changed)

	// inserts run oldest first so newer rows get higher ids
	assert.Equal(t, "old", plan.Inserts[0].GUID)
	assert.Equal(t, int32(2), plan.Inserts[0].IndexInFeed)
	assert.Equal(t, "new", plan.Inserts[2].GUID)
	assert.Equal(t, int32(0), plan.Inserts[2].IndexInFeed)
}

func TestPlanItemReconciliationIdempotent(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	parsed := []ParsedFeedItem{
		{GUID: "a", Title: "A", Categories: []string{}},
		{GUID: "b", Title: "B", Categories: []string{}},
	}
	first := PlanItemReconciliation(1, nil, parsed, now)
	require.Len(t, first.Inserts, 2)

	later := now.Add(time.Hour)
	second := PlanItemReconciliation(1, first.Inserts, parsed, later)
	assert.Empty(t, second.Inserts)
	assert.Empty(t, second.Updates)
	assert.False(t, second.Changed)
}

func TestPlanItemReconciliationRestoresChangedItem(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	existing := []FeedItem{
		{FeedID: 1, GUID: "a", Title: "Vandalized", IndexInFeed: 0, Categories: []string{}},
	}
	parsed := []ParsedFeedItem{
		{GUID: "a", Title: "Original", Categories: []string{}},
	}

	plan := PlanItemReconciliation(1, existing, parsed, now)
	assert.Empty(t, plan.Inserts)
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "Original", plan.Updates[0].Title)
	assert.Equal(t, now, plan.Updates[0].UpdatedAt)
	assert.True(t, plan.Changed)
}

func TestPlanItemReconciliationDuplicateGUID(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	parsed := []ParsedFeedItem{
		{GUID: "dup", Title: "Newest occurrence", Categories: []string{}},
		{GUID: "dup", Title: "Older occurrence", Categories: []string{}},
	}

	plan := PlanItemReconciliation(1, nil, parsed, now)
	require.Len(t, plan.Inserts, 1)
	assert.Equal(t, "Newest occurrence", plan.Inserts[0].Title)
	assert.Equal(t, int32(0), plan.Inserts[0].IndexInFeed)
}

func TestPlanItemReconciliationTruncates(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	parsed := make([]ParsedFeedItem, MaxItemsPerFeed+50)
	for n := range parsed {
		parsed[n] = ParsedFeedItem{GUID: fmt.Sprintf("guid-%d", n), Title: "T", Categories: []string{}}
	}

	plan := PlanItemReconciliation(1, nil, parsed, now)
	assert.Len(t, plan.Inserts, MaxItemsPerFeed)
}

func TestDomainFromLink(t *testing.T) {
	domain := DomainFromLink("https://news.example.com/feed.xml")
	require.NotNil(t, domain)
	assert.Equal(t, "news.example.com", *domain)

	assert.Nil(t, DomainFromLink("not a url at all\x7f"))
	assert.Nil(t, DomainFromLink("/relative/path"))
}
