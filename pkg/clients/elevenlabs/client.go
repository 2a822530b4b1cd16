// Package elevenlabs synthesizes narration audio from script text.
package elevenlabs

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
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModelID = "eleven_multilingual_v2"
	defaultTimeout = 2 * time.Minute
)

type Config struct {
	APIKey  string
	VoiceID string
	ModelID string
	BaseURL string
	Timeout time.Duration
}

// Client calls the text-to-speech endpoint and returns MP3 bytes.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errs.New(errs.KindInvalidInput, "elevenlabs API key is required")
	}

	if cfg.VoiceID == "" {
		return nil, errs.New(errs.KindInvalidInput, "elevenlabs voice ID is required")
	}

	if cfg.ModelID == "" {
		cfg.ModelID = defaultModelID
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.WithModule("elevenlabs"),
	}, nil
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize converts text to speech and returns the audio bytes.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.New(errs.KindGenerationFailure, "cannot synthesize empty text")
	}

	payload, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       c.cfg.ModelID,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindUnexpected, "failed to encode tts request", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.VoiceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Wrap(errs.KindUnexpected, "failed to build tts request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "elevenlabs request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "failed to read audio stream", err)
	}

	if len(audio) == 0 {
		return nil, errs.New(errs.KindGenerationFailure, "elevenlabs returned no audio")
	}

	c.logger.DebugContext(ctx, "audio synthesized", "bytes", len(audio))

	return audio, nil
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return errs.Newf(errs.KindTransient, "elevenlabs returned status %d", status).
			WithDetail("status", status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.Newf(errs.KindInvalidInput, "elevenlabs rejected the credentials with status %d", status).
			WithDetail("status", status)
	default:
		return errs.Newf(errs.KindGenerationFailure, "elevenlabs returned status %d", status).
			WithDetail("status", status)
	}
}
