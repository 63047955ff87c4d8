package domain

import "time"

// SpeakerMode selects the host persona of the generated script
type SpeakerMode string

const (
	// SpeakerModeMonologue is a single host reading the episode
	SpeakerModeMonologue SpeakerMode = "monologue"
	// SpeakerModeDialogue is two hosts talking through the episode
	SpeakerModeDialogue SpeakerMode = "dialogue"
)

// ContentItem is one article fed into the fan-out phase
type ContentItem struct {
	ID          string     `json:"id" yaml:"id" validate:"required"`
	Title       string     `json:"title" yaml:"title" validate:"required"`
	Author      string     `json:"author,omitempty" yaml:"author"`
	URL         string     `json:"url,omitempty" yaml:"url" validate:"omitempty,url"`
	Text        string     `json:"text" yaml:"text" validate:"required"`
	Tags        []string   `json:"tags,omitempty" yaml:"tags"`
	PublishedAt *time.Time `json:"published_at,omitempty" yaml:"published_at"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty" yaml:"fetched_at"`
}

// ListenerNote is a message from a listener to be answered on air
type ListenerNote struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	Name string `json:"name" yaml:"name" validate:"required"`
	Text string `json:"text" yaml:"text" validate:"required"`
}

// LengthBounds is the desired total script length in characters.
// Zero values are replaced by configured defaults.
type LengthBounds struct {
	MinChars int `json:"min_chars,omitempty" yaml:"min_chars" validate:"gte=0"`
	MaxChars int `json:"max_chars,omitempty" yaml:"max_chars" validate:"gte=0"`
}

// Contains reports whether n characters fall within the bounds. A zero
// MaxChars leaves the upper end open.
func (b LengthBounds) Contains(n int) bool {
	if n < b.MinChars {
		return false
	}
	return b.MaxChars == 0 || n <= b.MaxChars
}

// TriggerPayload is the input of one generation run.
// Items order is meaningful and preserved in the final script.
type TriggerPayload struct {
	Items         []ContentItem  `json:"items" yaml:"items" validate:"dive"`
	ProgramName   string         `json:"program_name" yaml:"program_name" validate:"required"`
	ProgramDate   time.Time      `json:"program_date" yaml:"program_date" validate:"required"`
	SpeakerMode   SpeakerMode    `json:"speaker_mode,omitempty" yaml:"speaker_mode" validate:"omitempty,oneof=monologue dialogue"`
	ListenerNotes []ListenerNote `json:"listener_notes,omitempty" yaml:"listener_notes" validate:"dive"`
	Length        LengthBounds   `json:"length,omitempty" yaml:"length"`
}

// Mode returns the speaker mode, defaulting to monologue
func (p *TriggerPayload) Mode() SpeakerMode {
	if p.SpeakerMode == "" {
		return SpeakerModeMonologue
	}
	return p.SpeakerMode
}
