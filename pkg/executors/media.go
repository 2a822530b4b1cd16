// Package executors composes the concrete clients into the step contracts
// the pipeline consumes. Most clients implement their contract directly;
// media generation needs composition, narration audio is synthesized first
// and then drives the avatar render.
package executors

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redflow/redflow/pkg/clients/heygen"
	"github.com/redflow/redflow/pkg/log"
	"github.com/redflow/redflow/pkg/models"
	"github.com/redflow/redflow/pkg/protocol"
)

// SpeechSynthesizer turns script text into audio bytes.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// RenderService is the avatar render surface the media executor drives.
type RenderService interface {
	UploadAudio(ctx context.Context, audio []byte) (heygen.AudioAsset, error)
	SubmitVideo(ctx context.Context, asset heygen.AudioAsset, title string) (string, error)
	CheckVideo(ctx context.Context, videoID string) (heygen.VideoStatus, error)
}

// MediaExecutor implements the MediaGenerator contract: synthesize the
// narration, upload it as a render asset and submit the avatar job. Status
// checks are delegated to the render service.
type MediaExecutor struct {
	speech SpeechSynthesizer
	render RenderService
	logger *slog.Logger

	// audioSizes remembers the narration size per job so the finished media
	// can report it.
	audioSizes sync.Map
}

func NewMediaExecutor(speech SpeechSynthesizer, render RenderService) *MediaExecutor {
	return &MediaExecutor{
		speech: speech,
		render: render,
		logger: log.WithModule("media_executor"),
	}
}

func (e *MediaExecutor) GenerateMedia(ctx context.Context, script *models.Script) (models.MediaJob, error) {
	audio, err := e.speech.Synthesize(ctx, script.Text)
	if err != nil {
		return models.MediaJob{}, err
	}

	asset, err := e.render.UploadAudio(ctx, audio)
	if err != nil {
		return models.MediaJob{}, err
	}

	videoID, err := e.render.SubmitVideo(ctx, asset, script.PublishTitle())
	if err != nil {
		return models.MediaJob{}, err
	}

	e.audioSizes.Store(videoID, len(audio))

	e.logger.InfoContext(ctx, "media job started",
		"job_id", videoID, "asset_id", asset.ID, "audio_bytes", len(audio))

	return models.MediaJob{ID: videoID, AudioAssetID: asset.ID}, nil
}

func (e *MediaExecutor) CheckMedia(ctx context.Context, job models.MediaJob) (protocol.MediaStatus, error) {
	status, err := e.render.CheckVideo(ctx, job.ID)
	if err != nil {
		return protocol.MediaStatus{}, err
	}

	switch {
	case status.Completed():
		media := &models.Media{JobID: job.ID, URL: status.VideoURL}

		if size, ok := e.audioSizes.LoadAndDelete(job.ID); ok {
			media.AudioBytes = size.(int)
		}

		return protocol.MediaStatus{State: protocol.MediaCompleted, Media: media, Raw: status.Status}, nil
	case status.Failed():
		e.audioSizes.Delete(job.ID)

		return protocol.MediaStatus{State: protocol.MediaFailed, Reason: status.Reason(), Raw: status.Status}, nil
	default:
		return protocol.MediaStatus{State: protocol.MediaPending, Raw: status.Status}, nil
	}
}
