// Package models defines the core domain models for the reddit-to-video
// pipeline: source references, fetched content, generated artifacts and the
// per-run audit aggregates.
package models

import "fmt"

// SourceRef identifies a single reddit post extracted from a user-supplied
// URL. Subreddit is empty for short links until the fetch resolves it.
type SourceRef struct {
	Subreddit string `json:"subreddit,omitempty"`
	PostID    string `json:"post_id" validate:"required,alphanum"`
	URL       string `json:"url"     validate:"required,url"`
}

// Permalink returns the canonical reddit URL for the post.
func (s SourceRef) Permalink() string {
	return fmt.Sprintf("https://www.reddit.com/r/%s/comments/%s/", s.Subreddit, s.PostID)
}
