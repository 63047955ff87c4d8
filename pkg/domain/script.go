package domain

import "time"

// ItemSummary is the generated part of a summarized item
type ItemSummary struct {
	Summary   string   `json:"summary" validate:"required" jsonschema:"description=Summary of the article in plain spoken language"`
	KeyPoints []string `json:"key_points,omitempty" jsonschema:"description=Short key points extracted from the article"`
}

// SummarizedItem is the output of one fan-out step: the item's passthrough
// metadata merged with its generated summary.
type SummarizedItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Author      string     `json:"author,omitempty"`
	URL         string     `json:"url,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
	Summary     string     `json:"summary"`
	KeyPoints   []string   `json:"key_points,omitempty"`
}

// NewSummarizedItem merges an item with its generated summary
func NewSummarizedItem(item ContentItem, summary ItemSummary) SummarizedItem {
	return SummarizedItem{
		ID:          item.ID,
		Title:       item.Title,
		Author:      item.Author,
		URL:         item.URL,
		Tags:        item.Tags,
		PublishedAt: item.PublishedAt,
		FetchedAt:   item.FetchedAt,
		Summary:     summary.Summary,
		KeyPoints:   summary.KeyPoints,
	}
}

// ScriptSection is the description block of one item
type ScriptSection struct {
	ItemID  string `json:"item_id" validate:"required" jsonschema:"description=ID of the item this section talks about"`
	Heading string `json:"heading" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

// Script is the final output of a run
type Script struct {
	Title    string          `json:"title" validate:"required"`
	Opening  string          `json:"opening" validate:"required"`
	Sections []ScriptSection `json:"sections" validate:"required,dive"`
	Closing  string          `json:"closing" validate:"required"`
}

// Length returns the number of characters of spoken text in the script
func (s *Script) Length() int {
	n := len([]rune(s.Opening)) + len([]rune(s.Closing))
	for _, sec := range s.Sections {
		n += len([]rune(sec.Body))
	}
	return n
}
