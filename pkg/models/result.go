package models

import "time"

// WorkflowStep enumerates the five fixed pipeline stages, in execution
// order.
type WorkflowStep string

const (
	StepParseSource     WorkflowStep = "parse_source"
	StepFetchContent    WorkflowStep = "fetch_content"
	StepGenerateScript  WorkflowStep = "generate_script"
	StepGenerateMedia   WorkflowStep = "generate_media"
	StepPublishArtifact WorkflowStep = "publish_artifact"
)

// Steps returns the full pipeline order.
func Steps() []WorkflowStep {
	return []WorkflowStep{
		StepParseSource,
		StepFetchContent,
		StepGenerateScript,
		StepGenerateMedia,
		StepPublishArtifact,
	}
}

// StepIndex returns the 1-based position of the step, for "Step 2/5"
// progress messages.
func StepIndex(step WorkflowStep) int {
	for i, s := range Steps() {
		if s == step {
			return i + 1
		}
	}

	return 0
}

// WorkflowStatus is the lifecycle state of a run or a step. Terminal states
// are never left once entered.
type WorkflowStatus string

const (
	StatusPending    WorkflowStatus = "pending"
	StatusInProgress WorkflowStatus = "in_progress"
	StatusCompleted  WorkflowStatus = "completed"
	StatusFailed     WorkflowStatus = "failed"
	StatusCancelled  WorkflowStatus = "cancelled"
)

func (s WorkflowStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepResult is the audit record of one step execution. A step appears at
// most once per run; in-step retries resolve the same record instead of
// appending new ones. Once the status is terminal the record is never
// mutated again.
type StepResult struct {
	Step        WorkflowStep   `json:"step"`
	Status      WorkflowStatus `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Complete resolves the step successfully with its output snapshot.
func (s *StepResult) Complete(output map[string]any) {
	now := time.Now().UTC()
	s.Status = StatusCompleted
	s.CompletedAt = &now
	s.Output = output
}

// Fail resolves the step with an error message.
func (s *StepResult) Fail(message string) {
	now := time.Now().UTC()
	s.Status = StatusFailed
	s.CompletedAt = &now
	s.Error = message
}

// WorkflowResult is the root aggregate of one pipeline run: overall status,
// the ordered step audit trail and the durable output of each completed
// step. It is owned by the single run that created it and is not persisted
// anywhere.
type WorkflowResult struct {
	ID          string         `json:"id"`
	Status      WorkflowStatus `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Steps       []StepResult   `json:"steps"`
	Error       string         `json:"error,omitempty"`

	Source      *SourceRef   `json:"source,omitempty"`
	Post        *Post        `json:"post,omitempty"`
	Script      *Script      `json:"script,omitempty"`
	Media       *Media       `json:"media,omitempty"`
	Publication *Publication `json:"publication,omitempty"`
}

func NewWorkflowResult(id string) *WorkflowResult {
	return &WorkflowResult{
		ID:        id,
		Status:    StatusInProgress,
		StartedAt: time.Now().UTC(),
	}
}

// BeginStep appends the pending StepResult for a step and returns a pointer
// to it. Retries within the step keep resolving this same record.
func (r *WorkflowResult) BeginStep(step WorkflowStep) *StepResult {
	r.Steps = append(r.Steps, StepResult{
		Step:      step,
		Status:    StatusInProgress,
		StartedAt: time.Now().UTC(),
	})

	return &r.Steps[len(r.Steps)-1]
}

// StepFor returns the recorded result for a step, if any.
func (r *WorkflowResult) StepFor(step WorkflowStep) (*StepResult, bool) {
	for i := range r.Steps {
		if r.Steps[i].Step == step {
			return &r.Steps[i], true
		}
	}

	return nil, false
}

// MarkCompleted moves the run to its successful terminal state.
func (r *WorkflowResult) MarkCompleted() {
	now := time.Now().UTC()
	r.Status = StatusCompleted
	r.CompletedAt = &now
}

// MarkFailed moves the run to its failed terminal state.
func (r *WorkflowResult) MarkFailed(message string) {
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.CompletedAt = &now
	r.Error = message
}

// Duration returns the total wall-clock time of the run, or zero while it
// is still in flight.
func (r *WorkflowResult) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}

	return r.CompletedAt.Sub(r.StartedAt)
}

// PublishedURL returns the final video URL if the run published one.
func (r *WorkflowResult) PublishedURL() string {
	if r.Publication == nil {
		return ""
	}

	return r.Publication.URL
}
