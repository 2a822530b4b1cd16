package executors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redflow/redflow/pkg/clients/heygen"
	"github.com/redflow/redflow/pkg/errs"
	"github.com/redflow/redflow/pkg/models"
	"github.com/redflow/redflow/pkg/protocol"
)

type fakeSpeech struct {
	audio []byte
	err   error
	calls int
}

func (f *fakeSpeech) Synthesize(_ context.Context, _ string) ([]byte, error) {
	f.calls++

	return f.audio, f.err
}

type fakeRender struct {
	uploadErr error
	submitErr error
	status    heygen.VideoStatus
	checkErr  error

	uploads int
	submits int
	checks  int
}

func (f *fakeRender) UploadAudio(_ context.Context, _ []byte) (heygen.AudioAsset, error) {
	f.uploads++

	return heygen.AudioAsset{ID: "asset-1", URL: "https://assets.example/asset-1"}, f.uploadErr
}

func (f *fakeRender) SubmitVideo(_ context.Context, _ heygen.AudioAsset, _ string) (string, error) {
	f.submits++

	return "vid-1", f.submitErr
}

func (f *fakeRender) CheckVideo(_ context.Context, _ string) (heygen.VideoStatus, error) {
	f.checks++

	return f.status, f.checkErr
}

func testScript() *models.Script {
	return &models.Script{Title: "T", Text: "narration"}
}

func TestGenerateMediaComposesPipeline(t *testing.T) {
	speech := &fakeSpeech{audio: []byte("mp3-bytes")}
	render := &fakeRender{}
	executor := NewMediaExecutor(speech, render)

	job, err := executor.GenerateMedia(context.Background(), testScript())
	require.NoError(t, err)

	assert.Equal(t, "vid-1", job.ID)
	assert.Equal(t, "asset-1", job.AudioAssetID)
	assert.Equal(t, 1, speech.calls)
	assert.Equal(t, 1, render.uploads)
	assert.Equal(t, 1, render.submits)
}

func TestGenerateMediaStopsOnSynthesisFailure(t *testing.T) {
	speech := &fakeSpeech{err: errs.New(errs.KindGenerationFailure, "no audio")}
	render := &fakeRender{}
	executor := NewMediaExecutor(speech, render)

	_, err := executor.GenerateMedia(context.Background(), testScript())
	require.Error(t, err)
	assert.Zero(t, render.uploads)
	assert.Zero(t, render.submits)
}

func TestCheckMediaMapsStates(t *testing.T) {
	tests := []struct {
		name   string
		status heygen.VideoStatus
		state  protocol.MediaState
	}{
		{name: "processing", status: heygen.VideoStatus{Status: "processing"}, state: protocol.MediaPending},
		{name: "waiting", status: heygen.VideoStatus{Status: "waiting"}, state: protocol.MediaPending},
		{
			name:   "completed",
			status: heygen.VideoStatus{Status: "completed", VideoURL: "https://videos.example/vid-1.mp4"},
			state:  protocol.MediaCompleted,
		},
		{
			name:   "failed",
			status: heygen.VideoStatus{Status: "failed", Error: "render error"},
			state:  protocol.MediaFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := NewMediaExecutor(&fakeSpeech{audio: []byte("a")}, &fakeRender{status: tt.status})

			result, err := executor.CheckMedia(context.Background(), models.MediaJob{ID: "vid-1"})
			require.NoError(t, err)
			assert.Equal(t, tt.state, result.State)

			switch tt.state {
			case protocol.MediaCompleted:
				require.NotNil(t, result.Media)
				assert.Equal(t, "https://videos.example/vid-1.mp4", result.Media.URL)
			case protocol.MediaFailed:
				assert.Equal(t, "render error", result.Reason)
			case protocol.MediaPending:
				assert.Nil(t, result.Media)
			}
		})
	}
}

func TestCompletedMediaCarriesAudioSize(t *testing.T) {
	speech := &fakeSpeech{audio: []byte("mp3-bytes")}
	render := &fakeRender{}
	executor := NewMediaExecutor(speech, render)

	job, err := executor.GenerateMedia(context.Background(), testScript())
	require.NoError(t, err)

	render.status = heygen.VideoStatus{Status: "completed", VideoURL: "https://videos.example/vid-1.mp4"}

	result, err := executor.CheckMedia(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, result.Media)
	assert.Equal(t, len("mp3-bytes"), result.Media.AudioBytes)
}
