// Package protocol defines the contracts between the pipeline engine and the
// external collaborators it drives. The engine only ever sees these
// interfaces; concrete clients live in pkg/clients and are injected at
// construction time.
package protocol

import (
	"context"

	"github.com/redflow/redflow/pkg/models"
)

// SourceParser turns raw user input into a source reference. Unparseable
// input fails with an invalid_input error.
type SourceParser interface {
	ParseSource(ctx context.Context, raw string) (models.SourceRef, error)
}

// ContentFetcher loads the post behind a source reference. A post with
// nothing usable in it fails with an empty_content error; transport-level
// trouble is classified transient by the implementation.
type ContentFetcher interface {
	FetchContent(ctx context.Context, ref models.SourceRef) (*models.Post, error)
}

// ScriptGenerator produces the narration script for a post. annotation is
// optional free-text commentary from the requester.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, post *models.Post, annotation string) (*models.Script, error)
}

// MediaState is the tri-state verdict of a media job status check.
type MediaState string

const (
	MediaPending   MediaState = "pending"
	MediaCompleted MediaState = "completed"
	MediaFailed    MediaState = "failed"
)

// MediaStatus reports the state of an asynchronous render job. Media is set
// only when completed; Reason only when failed. Raw carries the
// collaborator's own status string for progress messages.
type MediaStatus struct {
	State  MediaState
	Media  *models.Media
	Reason string
	Raw    string
}

// MediaGenerator starts an asynchronous render job and answers status
// checks for it. The engine polls CheckMedia until the job resolves.
type MediaGenerator interface {
	GenerateMedia(ctx context.Context, script *models.Script) (models.MediaJob, error)
	CheckMedia(ctx context.Context, job models.MediaJob) (MediaStatus, error)
}

// Publisher uploads the finished video to the publish target.
type Publisher interface {
	Publish(ctx context.Context, media *models.Media, script *models.Script, ref models.SourceRef) (*models.Publication, error)
}
