// Package reddit parses reddit post URLs and fetches post content through
// the public JSON listing endpoints. No authentication is used; the client
// only needs read access to public posts.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/redflow/redflow/pkg/errs"
	"github.com/redflow/redflow/pkg/log"
	"github.com/redflow/redflow/pkg/models"
)

const (
	defaultBaseURL     = "https://www.reddit.com"
	defaultUserAgent   = "redflow/1.0 (content pipeline)"
	defaultMaxComments = 50
	defaultTimeout     = 30 * time.Second
)

var (
	standardURLPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.|old\.)?reddit\.com/r/([a-zA-Z0-9_]+)/comments/([a-z0-9]+)`)
	shareURLPattern    = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?reddit\.com/r/([a-zA-Z0-9_]+)/s/([a-zA-Z0-9]+)`)
	shortURLPattern    = regexp.MustCompile(`(?i)(?:https?://)?redd\.it/([a-z0-9]+)`)
)

type Config struct {
	// BaseURL overrides the reddit endpoint, used by tests.
	BaseURL string
	// UserAgent identifies the client; reddit rate-limits anonymous default
	// agents aggressively.
	UserAgent string
	// MaxComments caps how many comments are kept per post.
	MaxComments int
	Timeout     time.Duration
}

// Client parses source URLs and fetches posts. It implements both the
// SourceParser and ContentFetcher contracts.
type Client struct {
	baseURL     string
	userAgent   string
	maxComments int
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	if cfg.MaxComments <= 0 {
		cfg.MaxComments = defaultMaxComments
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		maxComments: cfg.MaxComments,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      log.WithModule("reddit"),
	}
}

// ParseSource extracts the subreddit and post id from a reddit URL. Standard
// and old-reddit permalinks and share links carry both; redd.it short links
// only carry the post id, the subreddit is filled in during the fetch.
func (c *Client) ParseSource(_ context.Context, raw string) (models.SourceRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return models.SourceRef{}, errs.New(errs.KindInvalidInput, "source URL is empty")
	}

	if match := standardURLPattern.FindStringSubmatch(trimmed); match != nil {
		return models.SourceRef{
			Subreddit: match[1],
			PostID:    strings.ToLower(match[2]),
			URL:       trimmed,
		}, nil
	}

	if match := shareURLPattern.FindStringSubmatch(trimmed); match != nil {
		return models.SourceRef{
			Subreddit: match[1],
			PostID:    strings.ToLower(match[2]),
			URL:       trimmed,
		}, nil
	}

	if match := shortURLPattern.FindStringSubmatch(trimmed); match != nil {
		return models.SourceRef{
			PostID: strings.ToLower(match[1]),
			URL:    trimmed,
		}, nil
	}

	return models.SourceRef{}, errs.Newf(errs.KindInvalidInput, "not a recognizable reddit post URL: %s", trimmed).
		WithDetail("url", trimmed)
}

// FetchContent loads the post and its top comments from the public JSON
// listing.
func (c *Client) FetchContent(ctx context.Context, ref models.SourceRef) (*models.Post, error) {
	endpoint := c.listingURL(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnexpected, "failed to build reddit request", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "reddit request failed", err).
			WithDetail("url", endpoint)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, ref); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "failed to read reddit response", err)
	}

	post, err := c.parseListing(body, ref)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "fetched post",
		"post_id", post.ID, "subreddit", post.Subreddit, "comments", len(post.Comments))

	return post, nil
}

func (c *Client) listingURL(ref models.SourceRef) string {
	if ref.Subreddit == "" {
		return fmt.Sprintf("%s/comments/%s.json?limit=%d&raw_json=1", c.baseURL, ref.PostID, c.maxComments)
	}

	return fmt.Sprintf("%s/r/%s/comments/%s.json?limit=%d&raw_json=1",
		c.baseURL, ref.Subreddit, ref.PostID, c.maxComments)
}

func classifyStatus(status int, ref models.SourceRef) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound:
		return errs.Newf(errs.KindNotFound, "post %s not found", ref.PostID).
			WithDetail("post_id", ref.PostID)
	case status == http.StatusTooManyRequests || status >= 500:
		return errs.Newf(errs.KindTransient, "reddit returned status %d", status).
			WithDetail("status", status)
	default:
		return errs.Newf(errs.KindUnexpected, "reddit returned status %d", status).
			WithDetail("status", status)
	}
}

// thing is the kind/data envelope every reddit JSON node uses.
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listingData struct {
	Children []thing `json:"children"`
}

type postData struct {
	ID         string  `json:"id"`
	Subreddit  string  `json:"subreddit"`
	Title      string  `json:"title"`
	SelfText   string  `json:"selftext"`
	URL        string  `json:"url"`
	Author     string  `json:"author"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
}

type commentData struct {
	ID     string `json:"id"`
	Body   string `json:"body"`
	Author string `json:"author"`
	Score  int    `json:"score"`
	Depth  int    `json:"depth"`
}

// parseListing decodes the two-element listing array: the post itself
// followed by its comment tree.
func (c *Client) parseListing(body []byte, ref models.SourceRef) (*models.Post, error) {
	var listings []thing
	if err := json.Unmarshal(body, &listings); err != nil {
		return nil, errs.Wrap(errs.KindUnexpected, "unexpected reddit response shape", err)
	}

	if len(listings) == 0 {
		return nil, errs.Newf(errs.KindNotFound, "post %s not found", ref.PostID)
	}

	var postListing listingData
	if err := json.Unmarshal(listings[0].Data, &postListing); err != nil || len(postListing.Children) == 0 {
		return nil, errs.Newf(errs.KindNotFound, "post %s not found", ref.PostID)
	}

	var raw postData
	if err := json.Unmarshal(postListing.Children[0].Data, &raw); err != nil {
		return nil, errs.Wrap(errs.KindUnexpected, "failed to decode post", err)
	}

	post := &models.Post{
		ID:        raw.ID,
		Subreddit: raw.Subreddit,
		Title:     raw.Title,
		SelfText:  normalizeDeleted(raw.SelfText),
		URL:       raw.URL,
		Author:    normalizeAuthor(raw.Author),
		Score:     raw.Score,
	}

	if post.ID == "" {
		post.ID = ref.PostID
	}

	if post.Subreddit == "" {
		post.Subreddit = ref.Subreddit
	}

	if raw.CreatedUTC > 0 {
		created := time.Unix(int64(raw.CreatedUTC), 0).UTC()
		post.CreatedAt = &created
	}

	if len(listings) > 1 {
		post.Comments = c.extractComments(listings[1], 0)
	}

	return post, nil
}

// extractComments flattens the comment tree depth-first, skipping "more"
// placeholders and deleted bodies, capped at maxComments.
func (c *Client) extractComments(node thing, depth int) []models.Comment {
	var listing listingData
	if err := json.Unmarshal(node.Data, &listing); err != nil {
		return nil
	}

	var comments []models.Comment

	for _, child := range listing.Children {
		if len(comments) >= c.maxComments {
			break
		}

		if child.Kind != "t1" {
			continue
		}

		var raw struct {
			commentData

			Replies json.RawMessage `json:"replies"`
		}

		if err := json.Unmarshal(child.Data, &raw); err != nil {
			continue
		}

		body := strings.TrimSpace(raw.Body)
		if body == "" || body == "[deleted]" || body == "[removed]" {
			continue
		}

		comments = append(comments, models.Comment{
			ID:     raw.ID,
			Body:   body,
			Author: normalizeAuthor(raw.Author),
			Depth:  depth,
			Score:  raw.Score,
		})

		// Replies nest another listing; an empty string means no replies.
		if len(raw.Replies) > 0 && raw.Replies[0] == '{' {
			var replies thing
			if err := json.Unmarshal(raw.Replies, &replies); err == nil {
				remaining := c.maxComments - len(comments)
				nested := c.extractComments(replies, depth+1)

				if len(nested) > remaining {
					nested = nested[:remaining]
				}

				comments = append(comments, nested...)
			}
		}
	}

	return comments
}

func normalizeAuthor(author string) string {
	if author == "" {
		return "[deleted]"
	}

	return author
}

func normalizeDeleted(text string) string {
	if text == "[deleted]" || text == "[removed]" {
		return ""
	}

	return text
}
