// Package youtube publishes rendered videos as YouTube Shorts through the
// data API's multipart upload. Only the simple single-request upload is
// supported; the caller provides a ready OAuth access token.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/redflow/redflow/pkg/errs"
	"github.com/redflow/redflow/pkg/log"
	"github.com/redflow/redflow/pkg/models"
)

const (
	defaultUploadURL  = "https://www.googleapis.com/upload/youtube/v3/videos"
	defaultPrivacy    = "public"
	defaultCategoryID = "22" // People & Blogs
	defaultTimeout    = 10 * time.Minute
)

type Config struct {
	// AccessToken is a valid OAuth bearer token. Token refresh is the
	// operator's concern.
	AccessToken string
	UploadURL   string
	// Privacy is the privacyStatus of published videos: public, unlisted or
	// private.
	Privacy    string
	CategoryID string
	Tags       []string
	Timeout    time.Duration
}

// Client implements the Publisher contract: it downloads the rendered video
// and re-uploads it to YouTube with metadata built from the script.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, errs.New(errs.KindInvalidInput, "youtube access token is required")
	}

	if cfg.UploadURL == "" {
		cfg.UploadURL = defaultUploadURL
	}

	if cfg.Privacy == "" {
		cfg.Privacy = defaultPrivacy
	}

	if cfg.CategoryID == "" {
		cfg.CategoryID = defaultCategoryID
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.WithModule("youtube"),
	}, nil
}

type snippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  string   `json:"categoryId"`
}

type status struct {
	PrivacyStatus           string `json:"privacyStatus"`
	SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
}

type videoMetadata struct {
	Snippet snippet `json:"snippet"`
	Status  status  `json:"status"`
}

// Publish downloads the rendered video and uploads it with title and
// description derived from the script and its source attribution.
func (c *Client) Publish(ctx context.Context, media *models.Media, script *models.Script, ref models.SourceRef) (*models.Publication, error) {
	video, err := c.download(ctx, media.URL)
	if err != nil {
		return nil, err
	}

	title := script.PublishTitle()

	videoID, err := c.upload(ctx, video, videoMetadata{
		Snippet: snippet{
			Title:       title,
			Description: buildDescription(script, ref),
			Tags:        c.cfg.Tags,
			CategoryID:  c.cfg.CategoryID,
		},
		Status: status{PrivacyStatus: c.cfg.Privacy},
	})
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "video published", "video_id", videoID, "title", title)

	return &models.Publication{
		VideoID: videoID,
		Title:   title,
		URL:     "https://youtu.be/" + videoID,
	}, nil
}

func (c *Client) download(ctx context.Context, videoURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnexpected, "failed to build video download request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "video download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.Newf(errs.KindTransient, "video download returned status %d", resp.StatusCode).
			WithDetail("status", resp.StatusCode)
	}

	video, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "failed to read video stream", err)
	}

	if len(video) == 0 {
		return nil, errs.New(errs.KindGenerationFailure, "rendered video is empty")
	}

	return video, nil
}

func (c *Client) upload(ctx context.Context, video []byte, metadata videoMetadata) (string, error) {
	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")

	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return "", errs.Wrap(errs.KindUnexpected, "failed to build upload body", err)
	}

	if err := json.NewEncoder(metaPart).Encode(metadata); err != nil {
		return "", errs.Wrap(errs.KindUnexpected, "failed to encode video metadata", err)
	}

	videoHeader := textproto.MIMEHeader{}
	videoHeader.Set("Content-Type", "video/mp4")

	videoPart, err := writer.CreatePart(videoHeader)
	if err != nil {
		return "", errs.Wrap(errs.KindUnexpected, "failed to build upload body", err)
	}

	if _, err := videoPart.Write(video); err != nil {
		return "", errs.Wrap(errs.KindUnexpected, "failed to buffer video", err)
	}

	if err := writer.Close(); err != nil {
		return "", errs.Wrap(errs.KindUnexpected, "failed to finalize upload body", err)
	}

	endpoint := c.cfg.UploadURL + "?uploadType=multipart&part=snippet,status"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", errs.Wrap(errs.KindUnexpected, "failed to build upload request", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.KindTransient, "youtube upload failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return "", err
	}

	var decoded struct {
		ID string `json:"id"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", errs.Wrap(errs.KindUnexpected, "unexpected upload response shape", err)
	}

	if decoded.ID == "" {
		return "", errs.New(errs.KindUnexpected, "upload response carries no video id")
	}

	return decoded.ID, nil
}

func buildDescription(script *models.Script, ref models.SourceRef) string {
	var b strings.Builder

	b.WriteString(script.Title)
	b.WriteString("\n\n")

	if ref.Subreddit != "" {
		fmt.Fprintf(&b, "Source: %s\n", ref.Permalink())
	} else if ref.URL != "" {
		fmt.Fprintf(&b, "Source: %s\n", ref.URL)
	}

	b.WriteString("#shorts")

	return b.String()
}

func classifyStatus(statusCode int) error {
	switch {
	case statusCode == http.StatusOK:
		return nil
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return errs.Newf(errs.KindTransient, "youtube returned status %d", statusCode).
			WithDetail("status", statusCode)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return errs.Newf(errs.KindInvalidInput, "youtube rejected the credentials with status %d", statusCode).
			WithDetail("status", statusCode)
	default:
		return errs.Newf(errs.KindUnexpected, "youtube returned status %d", statusCode).
			WithDetail("status", statusCode)
	}
}
