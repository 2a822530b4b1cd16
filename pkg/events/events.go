// Package events defines the event types published over the run lifecycle.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the event bus topic all run events are published to.
const Topic = "redflow.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent    EventType = "run.started"
	StepStartedEvent   EventType = "run.step.started"
	StepCompletedEvent EventType = "run.step.completed"
	StepFailedEvent    EventType = "run.step.failed"
	RunProgressEvent   EventType = "run.progress"
	RunFinishedEvent   EventType = "run.finished"
	RunFailedEvent     EventType = "run.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type RunStarted struct {
	BaseEvent

	SourceURL string `json:"source_url"`
	Identity  string `json:"identity,omitempty"`
	Preview   bool   `json:"preview"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type StepStarted struct {
	BaseEvent

	Step     string `json:"step"`
	Position int    `json:"position"`
	Total    int    `json:"total"`
}

func (e StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepCompleted struct {
	BaseEvent

	Step       string         `json:"step"`
	Output     map[string]any `json:"output,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepFailed struct {
	BaseEvent

	Step       string `json:"step"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

// RunProgress carries the free-form progress messages shown to the
// requester, including the pending ticks of the media poll.
type RunProgress struct {
	BaseEvent

	Message   string `json:"message"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
}

func (e RunProgress) GetType() EventType {
	return RunProgressEvent
}

type RunFinished struct {
	BaseEvent

	Status       string `json:"status"`
	PublishedURL string `json:"published_url,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

type RunFailed struct {
	BaseEvent

	Error      string `json:"error"`
	FailedStep string `json:"failed_step,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

func NewBaseEvent(eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
	}
}
