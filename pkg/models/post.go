package models

import (
	"strings"
	"time"
)

// Comment is a single reddit comment, flattened with its thread depth.
type Comment struct {
	ID     string `json:"id"`
	Body   string `json:"body"`
	Author string `json:"author"`
	Depth  int    `json:"depth"`
	Score  int    `json:"score"`
}

// Post is the content bundle fetched for one reddit submission. Deleted
// authors and bodies are normalized to "[deleted]" by the client.
type Post struct {
	ID        string     `json:"id"        validate:"required"`
	Subreddit string     `json:"subreddit" validate:"required"`
	Title     string     `json:"title"     validate:"required"`
	SelfText  string     `json:"selftext"`
	URL       string     `json:"url"`
	Author    string     `json:"author"`
	Score     int        `json:"score"`
	Comments  []Comment  `json:"comments"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// IsEmpty reports whether the post carries nothing worth scripting: no body
// text and no comments. The orchestrator treats an empty post as a fatal
// failure, not a retryable one.
func (p *Post) IsEmpty() bool {
	return strings.TrimSpace(p.SelfText) == "" && len(p.Comments) == 0
}

// TopComments returns up to limit comments ordered as fetched.
func (p *Post) TopComments(limit int) []Comment {
	if limit <= 0 || limit >= len(p.Comments) {
		return p.Comments
	}

	return p.Comments[:limit]
}
