// Package heygen drives avatar video rendering: upload the narration audio,
// submit a render job and answer status checks until the job resolves.
package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redflow/redflow/pkg/errs"
	"github.com/redflow/redflow/pkg/log"
)

const (
	defaultBaseURL   = "https://api.heygen.com"
	defaultUploadURL = "https://upload.heygen.com"
	defaultWidth     = 1080
	defaultHeight    = 1920
	defaultTimeout   = 2 * time.Minute
)

type Config struct {
	APIKey   string
	AvatarID string
	BaseURL  string
	// UploadURL is the asset upload host, separate from the API host.
	UploadURL string
	// Width and Height are the output dimensions; the defaults produce the
	// 9:16 vertical format.
	Width   int
	Height  int
	Timeout time.Duration
}

// Client talks to the render API. It does not poll by itself; the pipeline
// drives CheckVideo.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errs.New(errs.KindInvalidInput, "heygen API key is required")
	}

	if cfg.AvatarID == "" {
		return nil, errs.New(errs.KindInvalidInput, "heygen avatar ID is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	if cfg.UploadURL == "" {
		cfg.UploadURL = defaultUploadURL
	}

	if cfg.Width <= 0 {
		cfg.Width = defaultWidth
	}

	if cfg.Height <= 0 {
		cfg.Height = defaultHeight
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.WithModule("heygen"),
	}, nil
}

// AudioAsset is the stored upload the render job references.
type AudioAsset struct {
	ID  string
	URL string
}

// UploadAudio stores the narration audio as a render asset.
func (c *Client) UploadAudio(ctx context.Context, audio []byte) (AudioAsset, error) {
	if len(audio) == 0 {
		return AudioAsset{}, errs.New(errs.KindGenerationFailure, "cannot upload empty audio")
	}

	endpoint := strings.TrimRight(c.cfg.UploadURL, "/") + "/v1/asset"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return AudioAsset{}, errs.Wrap(errs.KindUnexpected, "failed to build upload request", err)
	}

	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AudioAsset{}, errs.Wrap(errs.KindTransient, "audio upload failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, "asset upload"); err != nil {
		return AudioAsset{}, err
	}

	var decoded struct {
		Data struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return AudioAsset{}, errs.Wrap(errs.KindUnexpected, "unexpected upload response shape", err)
	}

	if decoded.Data.URL == "" {
		return AudioAsset{}, errs.New(errs.KindGenerationFailure, "upload response carries no asset URL")
	}

	c.logger.DebugContext(ctx, "audio asset uploaded", "asset_id", decoded.Data.ID, "bytes", len(audio))

	return AudioAsset{ID: decoded.Data.ID, URL: decoded.Data.URL}, nil
}

type generateVideoRequest struct {
	Title       string       `json:"title,omitempty"`
	VideoInputs []videoInput `json:"video_inputs"`
	Dimension   dimension    `json:"dimension"`
}

type videoInput struct {
	Character character `json:"character"`
	Voice     voice     `json:"voice"`
}

type character struct {
	Type        string `json:"type"`
	AvatarID    string `json:"avatar_id"`
	AvatarStyle string `json:"avatar_style"`
}

type voice struct {
	Type     string `json:"type"`
	AudioURL string `json:"audio_url"`
}

type dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SubmitVideo starts an avatar render job narrated by the uploaded audio
// asset and returns the job id.
func (c *Client) SubmitVideo(ctx context.Context, asset AudioAsset, title string) (string, error) {
	payload, err := json.Marshal(generateVideoRequest{
		Title: title,
		VideoInputs: []videoInput{{
			Character: character{Type: "avatar", AvatarID: c.cfg.AvatarID, AvatarStyle: "normal"},
			Voice:     voice{Type: "audio", AudioURL: asset.URL},
		}},
		Dimension: dimension{Width: c.cfg.Width, Height: c.cfg.Height},
	})
	if err != nil {
		return "", errs.Wrap(errs.KindUnexpected, "failed to encode render request", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v2/video/generate"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", errs.Wrap(errs.KindUnexpected, "failed to build render request", err)
	}

	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.KindTransient, "render submission failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, "render submission"); err != nil {
		return "", err
	}

	var decoded struct {
		Data struct {
			VideoID string `json:"video_id"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", errs.Wrap(errs.KindUnexpected, "unexpected render response shape", err)
	}

	if decoded.Data.VideoID == "" {
		return "", errs.New(errs.KindGenerationFailure, "render response carries no video id")
	}

	c.logger.InfoContext(ctx, "render job submitted", "video_id", decoded.Data.VideoID)

	return decoded.Data.VideoID, nil
}

// VideoStatus is the raw verdict of one status check.
type VideoStatus struct {
	Status   string
	VideoURL string
	Error    string
}

// Resolved render states. Everything else is treated as still pending.
const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// CheckVideo fetches the current state of a render job.
func (c *Client) CheckVideo(ctx context.Context, videoID string) (VideoStatus, error) {
	endpoint := fmt.Sprintf("%s/v1/video_status.get?video_id=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.QueryEscape(videoID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return VideoStatus{}, errs.Wrap(errs.KindUnexpected, "failed to build status request", err)
	}

	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return VideoStatus{}, errs.Wrap(errs.KindTransient, "status check failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, "status check"); err != nil {
		return VideoStatus{}, err
	}

	var decoded struct {
		Data struct {
			Status   string `json:"status"`
			VideoURL string `json:"video_url"`
			Error    struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return VideoStatus{}, errs.Wrap(errs.KindUnexpected, "unexpected status response shape", err)
	}

	return VideoStatus{
		Status:   decoded.Data.Status,
		VideoURL: decoded.Data.VideoURL,
		Error:    decoded.Data.Error.Message,
	}, nil
}

// Completed reports whether the job finished successfully.
func (s VideoStatus) Completed() bool {
	return s.Status == statusCompleted
}

// Failed reports whether the job itself failed. Failure reasons come from
// the render service and are terminal.
func (s VideoStatus) Failed() bool {
	return s.Status == statusFailed
}

// Reason returns the failure message, with a fallback when the service
// omits one.
func (s VideoStatus) Reason() string {
	if s.Error != "" {
		return s.Error
	}

	return "render job failed"
}

func classifyStatus(status int, operation string) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return errs.Newf(errs.KindTransient, "heygen %s returned status %d", operation, status).
			WithDetail("status", status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.Newf(errs.KindInvalidInput, "heygen rejected the credentials with status %d", status).
			WithDetail("status", status)
	default:
		return errs.Newf(errs.KindGenerationFailure, "heygen %s returned status %d", operation, status).
			WithDetail("status", status)
	}
}
