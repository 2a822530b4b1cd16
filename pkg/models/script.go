package models

import (
	"strings"
	"time"
)

// wordsPerMinute is the narration speed used to estimate video length.
const wordsPerMinute = 150

// Script is the AI-generated narration for a video, together with the
// source attribution used later when publishing.
type Script struct {
	Title           string    `json:"title"  validate:"required"`
	Text            string    `json:"text"   validate:"required"`
	SourcePostID    string    `json:"source_post_id,omitempty"`
	SourceSubreddit string    `json:"source_subreddit,omitempty"`
	Annotation      string    `json:"annotation,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (s *Script) WordCount() int {
	return len(strings.Fields(s.Text))
}

// EstimatedDuration estimates the narrated length of the script.
func (s *Script) EstimatedDuration() time.Duration {
	return time.Duration(float64(s.WordCount()) / wordsPerMinute * float64(time.Minute))
}

// WithinWordLimit reports whether the script fits maxWords plus the allowed
// overflow fraction. Exceeding the limit is a soft signal: callers log it,
// they do not fail the step.
func (s *Script) WithinWordLimit(maxWords int, allowOverflow float64) bool {
	if maxWords <= 0 {
		return true
	}

	limit := int(float64(maxWords) * (1 + allowOverflow))

	return s.WordCount() <= limit
}

// PublishTitle returns a title trimmed to the 100 character limit enforced
// by the publish target.
func (s *Script) PublishTitle() string {
	if len(s.Title) <= 100 {
		return s.Title
	}

	return s.Title[:97] + "..."
}
