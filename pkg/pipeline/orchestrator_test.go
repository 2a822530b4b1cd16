package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redflow/redflow/pkg/errs"
	"github.com/redflow/redflow/pkg/models"
	"github.com/redflow/redflow/pkg/notify"
	"github.com/redflow/redflow/pkg/protocol"
	"github.com/redflow/redflow/pkg/resilience"
)

const testSourceURL = "https://www.reddit.com/r/golang/comments/abc123/some_post/"

// scriptedExecutors implements every collaborator interface with overridable
// behavior and call counters.
type scriptedExecutors struct {
	mu           sync.Mutex
	parseCalls   int
	fetchCalls   int
	scriptCalls  int
	submitCalls  int
	checkCalls   int
	publishCalls int

	parseFn   func(call int) (models.SourceRef, error)
	fetchFn   func(call int) (*models.Post, error)
	scriptFn  func(call int) (*models.Script, error)
	submitFn  func(call int) (models.MediaJob, error)
	checkFn   func(call int) (protocol.MediaStatus, error)
	publishFn func(call int) (*models.Publication, error)
}

func testRef() models.SourceRef {
	return models.SourceRef{Subreddit: "golang", PostID: "abc123", URL: testSourceURL}
}

func testPost() *models.Post {
	return &models.Post{
		ID:        "abc123",
		Subreddit: "golang",
		Title:     "A post about Go",
		SelfText:  "some body text",
		Score:     42,
		Comments:  []models.Comment{{ID: "c1", Body: "nice", Author: "u1"}},
	}
}

func testScript() *models.Script {
	return &models.Script{Title: "A post about Go", Text: "generated narration text"}
}

func (s *scriptedExecutors) count(counter *int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	*counter++

	return *counter
}

func (s *scriptedExecutors) ParseSource(_ context.Context, _ string) (models.SourceRef, error) {
	call := s.count(&s.parseCalls)
	if s.parseFn != nil {
		return s.parseFn(call)
	}

	return testRef(), nil
}

func (s *scriptedExecutors) FetchContent(_ context.Context, _ models.SourceRef) (*models.Post, error) {
	call := s.count(&s.fetchCalls)
	if s.fetchFn != nil {
		return s.fetchFn(call)
	}

	return testPost(), nil
}

func (s *scriptedExecutors) GenerateScript(_ context.Context, _ *models.Post, _ string) (*models.Script, error) {
	call := s.count(&s.scriptCalls)
	if s.scriptFn != nil {
		return s.scriptFn(call)
	}

	return testScript(), nil
}

func (s *scriptedExecutors) GenerateMedia(_ context.Context, _ *models.Script) (models.MediaJob, error) {
	call := s.count(&s.submitCalls)
	if s.submitFn != nil {
		return s.submitFn(call)
	}

	return models.MediaJob{ID: "job-1"}, nil
}

func (s *scriptedExecutors) CheckMedia(_ context.Context, _ models.MediaJob) (protocol.MediaStatus, error) {
	call := s.count(&s.checkCalls)
	if s.checkFn != nil {
		return s.checkFn(call)
	}

	return protocol.MediaStatus{
		State: protocol.MediaCompleted,
		Media: &models.Media{JobID: "job-1", URL: "https://videos.example/job-1.mp4"},
		Raw:   "completed",
	}, nil
}

func (s *scriptedExecutors) Publish(_ context.Context, _ *models.Media, script *models.Script, _ models.SourceRef) (*models.Publication, error) {
	call := s.count(&s.publishCalls)
	if s.publishFn != nil {
		return s.publishFn(call)
	}

	return &models.Publication{VideoID: "vid-1", Title: script.PublishTitle(), URL: "https://youtu.be/vid-1"}, nil
}

func (s *scriptedExecutors) calls() (parse, fetch, script, submit, check, publish int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.parseCalls, s.fetchCalls, s.scriptCalls, s.submitCalls, s.checkCalls, s.publishCalls
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, _, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) withPrefix(prefix string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	var matched []string

	for _, m := range n.messages {
		if strings.HasPrefix(m, prefix) {
			matched = append(matched, m)
		}
	}

	return matched
}

func testConfig() Config {
	return Config{
		DefaultStepTimeout: time.Second,
		Retry: resilience.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
			Multiplier:  2.0,
		},
		Poll: resilience.PollConfig{
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Ceiling:         time.Second,
		},
	}
}

func newTestOrchestrator(execs *scriptedExecutors, opts ...Option) *Orchestrator {
	return NewOrchestrator(Executors{
		Parser:          execs,
		Fetcher:         execs,
		ScriptGenerator: execs,
		MediaGenerator:  execs,
		Publisher:       execs,
	}, testConfig(), opts...)
}

func TestProcessAllStepsSucceed(t *testing.T) {
	execs := &scriptedExecutors{}
	o := newTestOrchestrator(execs)

	result, err := o.Process(context.Background(), Request{SourceURL: testSourceURL})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, models.StatusCompleted, result.Status)
	require.NotNil(t, result.CompletedAt)
	require.Len(t, result.Steps, len(models.Steps()))

	for i, step := range models.Steps() {
		assert.Equal(t, step, result.Steps[i].Step)
		assert.Equal(t, models.StatusCompleted, result.Steps[i].Status)
		require.NotNil(t, result.Steps[i].CompletedAt)
		assert.NotEmpty(t, result.Steps[i].Output)
	}

	require.NotNil(t, result.Source)
	require.NotNil(t, result.Post)
	require.NotNil(t, result.Script)
	require.NotNil(t, result.Media)
	require.NotNil(t, result.Publication)
	assert.Equal(t, "https://youtu.be/vid-1", result.PublishedURL())
}

func TestProcessEmptyContentStopsPipeline(t *testing.T) {
	execs := &scriptedExecutors{
		fetchFn: func(int) (*models.Post, error) {
			return &models.Post{ID: "abc123", Subreddit: "golang", Title: "deleted"}, nil
		},
	}
	o := newTestOrchestrator(execs)

	result, err := o.Process(context.Background(), Request{SourceURL: testSourceURL})
	require.Error(t, err)
	require.NotNil(t, result)

	assert.True(t, errs.IsKind(err, errs.KindEmptyContent))
	assert.Equal(t, models.StatusFailed, result.Status)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, models.StatusCompleted, result.Steps[0].Status)
	assert.Equal(t, models.StatusFailed, result.Steps[1].Status)
	assert.NotEmpty(t, result.Steps[1].Error)

	_, fetch, script, submit, check, publish := execs.calls()
	assert.Equal(t, 1, fetch, "empty content must not be retried")
	assert.Zero(t, script)
	assert.Zero(t, submit)
	assert.Zero(t, check)
	assert.Zero(t, publish)
}

func TestProcessMediaPendingThenCompleted(t *testing.T) {
	execs := &scriptedExecutors{
		checkFn: func(call int) (protocol.MediaStatus, error) {
			if call <= 3 {
				return protocol.MediaStatus{State: protocol.MediaPending, Raw: "processing"}, nil
			}

			return protocol.MediaStatus{
				State: protocol.MediaCompleted,
				Media: &models.Media{JobID: "job-1", URL: "https://videos.example/job-1.mp4"},
				Raw:   "completed",
			}, nil
		},
	}

	notifier := &recordingNotifier{}
	o := newTestOrchestrator(execs, WithNotifier(notifier))

	result, err := o.Process(context.Background(), Request{SourceURL: testSourceURL})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, result.Status)

	_, _, _, submit, check, _ := execs.calls()
	assert.Equal(t, 1, submit)
	assert.Equal(t, 4, check)
	assert.Len(t, notifier.withPrefix("Media render pending"), 3)
}

func TestProcessMediaJobFailureIsTerminal(t *testing.T) {
	execs := &scriptedExecutors{
		checkFn: func(int) (protocol.MediaStatus, error) {
			return protocol.MediaStatus{State: protocol.MediaFailed, Reason: "render error", Raw: "failed"}, nil
		},
	}
	o := newTestOrchestrator(execs)

	result, err := o.Process(context.Background(), Request{SourceURL: testSourceURL})
	require.Error(t, err)

	assert.True(t, errs.IsKind(err, errs.KindGenerationFailure))
	assert.Equal(t, models.StatusFailed, result.Status)

	_, _, _, _, check, publish := execs.calls()
	assert.Equal(t, 1, check, "a reported job failure must not be polled again")
	assert.Zero(t, publish)
}

func TestPreviewStopsAfterScript(t *testing.T) {
	execs := &scriptedExecutors{}
	o := newTestOrchestrator(execs)

	result, err := o.Preview(context.Background(), Request{SourceURL: testSourceURL})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Len(t, result.Steps, 3)
	require.NotNil(t, result.Script)
	assert.Nil(t, result.Media)
	assert.Nil(t, result.Publication)

	_, _, script, submit, check, publish := execs.calls()
	assert.Equal(t, 1, script)
	assert.Zero(t, submit)
	assert.Zero(t, check)
	assert.Zero(t, publish)
}

func TestProcessTransientFetchRetried(t *testing.T) {
	execs := &scriptedExecutors{
		fetchFn: func(call int) (*models.Post, error) {
			if call < 3 {
				return nil, errs.New(errs.KindTransient, "reddit returned 503")
			}

			return testPost(), nil
		},
	}
	o := newTestOrchestrator(execs)

	result, err := o.Process(context.Background(), Request{SourceURL: testSourceURL})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, result.Status)

	_, fetch, _, _, _, _ := execs.calls()
	assert.Equal(t, 3, fetch)

	stepResult, ok := result.StepFor(models.StepFetchContent)
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, stepResult.Status, "retries resolve the same step record")

	var fetchEntries int

	for _, s := range result.Steps {
		if s.Step == models.StepFetchContent {
			fetchEntries++
		}
	}

	assert.Equal(t, 1, fetchEntries)
}

func TestProcessRejectsConcurrentIdentity(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	execs := &scriptedExecutors{
		fetchFn: func(call int) (*models.Post, error) {
			// Only the first run blocks; later runs on the same identity
			// must proceed normally once the slot is free.
			if call == 1 {
				close(started)
				<-release
			}

			return testPost(), nil
		},
	}
	o := newTestOrchestrator(execs)

	type runOutcome struct {
		result *models.WorkflowResult
		err    error
	}

	first := make(chan runOutcome, 1)

	go func() {
		result, err := o.Process(context.Background(), Request{SourceURL: testSourceURL, Identity: "user-1"})
		first <- runOutcome{result: result, err: err}
	}()

	<-started

	result, err := o.Process(context.Background(), Request{SourceURL: testSourceURL, Identity: "user-1"})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindAlreadyInProgress))
	assert.Nil(t, result, "a rejected run must not produce a result")

	close(release)

	outcome := <-first
	require.NoError(t, outcome.err)
	assert.Equal(t, models.StatusCompleted, outcome.result.Status)

	// The slot is free again once the run finished.
	_, err = o.Preview(context.Background(), Request{SourceURL: testSourceURL, Identity: "user-1"})
	require.NoError(t, err)
}

func TestProcessRejectsEmptySource(t *testing.T) {
	o := newTestOrchestrator(&scriptedExecutors{})

	result, err := o.Process(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInvalidInput))
	assert.Nil(t, result)
}

func TestProcessAcceptsBareSourcePath(t *testing.T) {
	execs := &scriptedExecutors{}
	o := newTestOrchestrator(execs)

	result, err := o.Process(context.Background(), Request{SourceURL: "r/test/abc123"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, result.Status)

	parse, _, _, _, _, _ := execs.calls()
	assert.Equal(t, 1, parse, "the parser judges source validity, not the engine")
}

func TestProcessUnparseableSourceFailsAtParseStep(t *testing.T) {
	execs := &scriptedExecutors{
		parseFn: func(int) (models.SourceRef, error) {
			return models.SourceRef{}, errs.New(errs.KindInvalidInput, "unrecognized source form")
		},
	}
	o := newTestOrchestrator(execs)

	result, err := o.Process(context.Background(), Request{SourceURL: "gopher://nope"})
	require.Error(t, err)

	assert.True(t, errs.IsKind(err, errs.KindInvalidInput))
	require.NotNil(t, result, "a parse failure still produces the audit trail")
	require.Len(t, result.Steps, 1)
	assert.Equal(t, models.StatusFailed, result.Steps[0].Status)
}

func TestRunIDsAreUnique(t *testing.T) {
	o := newTestOrchestrator(&scriptedExecutors{})

	seen := make(map[string]bool)

	for i := range 10 {
		result, err := o.Preview(context.Background(), Request{SourceURL: testSourceURL})
		require.NoError(t, err)
		assert.False(t, seen[result.ID], "run id %q repeated at iteration %d", result.ID, i)
		seen[result.ID] = true
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	execs := &scriptedExecutors{
		fetchFn: func(int) (*models.Post, error) {
			return nil, errs.New(errs.KindTransient, "reddit returned 503")
		},
	}

	cfg := testConfig()
	cfg.Breaker = resilience.BreakerConfig{FailureThreshold: 3, OpenDuration: time.Minute}

	o := NewOrchestrator(Executors{
		Parser:          execs,
		Fetcher:         execs,
		ScriptGenerator: execs,
		MediaGenerator:  execs,
		Publisher:       execs,
	}, cfg)

	// First run burns three attempts and trips the breaker.
	_, err := o.Process(context.Background(), Request{SourceURL: testSourceURL})
	require.Error(t, err)

	// Second run is short-circuited before reaching the collaborator.
	result, err := o.Process(context.Background(), Request{SourceURL: testSourceURL})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindCircuitOpen))
	assert.Equal(t, models.StatusFailed, result.Status)

	_, fetch, _, _, _, _ := execs.calls()
	assert.Equal(t, 3, fetch, "open breaker must not admit further calls")

	snapshots := o.BreakerSnapshots()
	require.Len(t, snapshots, len(models.Steps()))

	for _, snap := range snapshots {
		if snap.Name == string(models.StepFetchContent) {
			assert.Equal(t, resilience.BreakerOpen, snap.State)
		}
	}
}

func TestProgressMessagesAreOrdered(t *testing.T) {
	notifier := &recordingNotifier{}
	o := newTestOrchestrator(&scriptedExecutors{}, WithNotifier(notifier))

	_, err := o.Process(context.Background(), Request{SourceURL: testSourceURL})
	require.NoError(t, err)

	steps := notifier.withPrefix("Step ")
	require.Len(t, steps, len(models.Steps()))
	assert.Contains(t, steps[0], "1/5")
	assert.Contains(t, steps[4], "5/5")

	published := notifier.withPrefix("Video published")
	assert.Len(t, published, 1)
}

var _ notify.Notifier = (*recordingNotifier)(nil)
