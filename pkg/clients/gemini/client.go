// Package gemini generates narration scripts with the Google Generative
// Language API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redflow/redflow/pkg/errs"
	"github.com/redflow/redflow/pkg/log"
	"github.com/redflow/redflow/pkg/models"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com"
	defaultModel       = "gemini-1.5-flash"
	defaultMaxWords    = 500
	defaultMaxComments = 20
	defaultTimeout     = 60 * time.Second
)

type Config struct {
	APIKey string
	// Model is the generative model name, without the "models/" prefix.
	Model   string
	BaseURL string
	// MaxWords is the word budget stated in the prompt. The generated script
	// may still exceed it; the pipeline treats that as a soft signal.
	MaxWords    int
	MaxComments int
	Timeout     time.Duration
}

// Client implements the ScriptGenerator contract.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errs.New(errs.KindInvalidInput, "gemini API key is required")
	}

	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	if cfg.MaxWords <= 0 {
		cfg.MaxWords = defaultMaxWords
	}

	if cfg.MaxComments <= 0 {
		cfg.MaxComments = defaultMaxComments
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.WithModule("gemini"),
	}, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// scriptPayload is the JSON shape the prompt instructs the model to return.
type scriptPayload struct {
	Title  string `json:"title"`
	Script string `json:"script"`
}

// GenerateScript asks the model for a narration script and title for the
// post.
func (c *Client) GenerateScript(ctx context.Context, post *models.Post, annotation string) (*models.Script, error) {
	prompt := c.buildPrompt(post, annotation)

	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindUnexpected, "failed to encode gemini request", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Wrap(errs.KindUnexpected, "failed to build gemini request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "gemini request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "failed to read gemini response", err)
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	text, err := extractText(body)
	if err != nil {
		return nil, err
	}

	parsed, err := parseScriptPayload(text)
	if err != nil {
		return nil, err
	}

	script := &models.Script{
		Title:           parsed.Title,
		Text:            parsed.Script,
		SourcePostID:    post.ID,
		SourceSubreddit: post.Subreddit,
		Annotation:      annotation,
		CreatedAt:       time.Now().UTC(),
	}

	c.logger.DebugContext(ctx, "script generated",
		"post_id", post.ID, "word_count", script.WordCount())

	return script, nil
}

func (c *Client) buildPrompt(post *models.Post, annotation string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a narration script for a short vertical video about the reddit post below.\n")
	fmt.Fprintf(&b, "Target length: at most %d words. Conversational tone, no stage directions.\n", c.cfg.MaxWords)
	b.WriteString("Respond with a single JSON object: {\"title\": \"...\", \"script\": \"...\"}. No other text.\n\n")

	fmt.Fprintf(&b, "Title: %s\n", post.Title)

	if strings.TrimSpace(post.SelfText) != "" {
		fmt.Fprintf(&b, "Post:\n%s\n", post.SelfText)
	}

	comments := post.TopComments(c.cfg.MaxComments)
	if len(comments) > 0 {
		b.WriteString("\nTop comments:\n")

		for _, comment := range comments {
			fmt.Fprintf(&b, "- %s\n", comment.Body)
		}
	}

	if strings.TrimSpace(annotation) != "" {
		fmt.Fprintf(&b, "\nRequester's angle to work in: %s\n", annotation)
	}

	return b.String()
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return errs.Newf(errs.KindTransient, "gemini returned status %d", status).
			WithDetail("status", status)
	case status == http.StatusBadRequest || status == http.StatusForbidden:
		return errs.Newf(errs.KindInvalidInput, "gemini rejected the request with status %d", status).
			WithDetail("status", status)
	default:
		return errs.Newf(errs.KindUnexpected, "gemini returned status %d", status).
			WithDetail("status", status)
	}
}

func extractText(body []byte) (string, error) {
	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", errs.Wrap(errs.KindUnexpected, "unexpected gemini response shape", err)
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", errs.New(errs.KindGenerationFailure, "gemini returned no candidates")
	}

	return decoded.Candidates[0].Content.Parts[0].Text, nil
}

// parseScriptPayload decodes the model output, tolerating markdown code
// fences around the JSON.
func parseScriptPayload(text string) (scriptPayload, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed scriptPayload
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return scriptPayload{}, errs.Wrap(errs.KindGenerationFailure, "gemini response is not the expected JSON", err)
	}

	if strings.TrimSpace(parsed.Title) == "" || strings.TrimSpace(parsed.Script) == "" {
		return scriptPayload{}, errs.New(errs.KindGenerationFailure, "gemini response is missing title or script")
	}

	return parsed, nil
}
