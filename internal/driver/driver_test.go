package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/povarna/generative-ai-agents/qa-eval/internal/aggregator"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/annotator"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/checkpoint"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/judge"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/loader"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// scriptedJudge answers prompts that hold a bare unique id. failures[id] lists the errors
// returned on the first calls for that id; later calls succeed.
type scriptedJudge struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string][]error
	always   map[string]error
}

func newScriptedJudge() *scriptedJudge {
	return &scriptedJudge{
		calls:    make(map[string]int),
		failures: make(map[string][]error),
		always:   make(map[string]error),
	}
}

func (j *scriptedJudge) Judge(_ context.Context, prompt string) (models.Verdict, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := j.calls[prompt]
	j.calls[prompt]++

	if err, ok := j.always[prompt]; ok {
		return models.Verdict{}, err
	}
	if script := j.failures[prompt]; n < len(script) {
		return models.Verdict{}, script[n]
	}
	return models.Verdict{Pred: "yes", Score: 4}, nil
}

func (j *scriptedJudge) callCount(id string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.calls[id]
}

// flakyStore fails the first listFailures calls to ListIDs.
type flakyStore struct {
	checkpoint.Store
	mu           sync.Mutex
	listFailures int
}

func (s *flakyStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	if s.listFailures > 0 {
		s.listFailures--
		s.mu.Unlock()
		return nil, errors.New("input/output error")
	}
	s.mu.Unlock()
	return s.Store.ListIDs(ctx)
}

func newTestSet(t *testing.T, ids ...string) *models.PredictionSet {
	t.Helper()
	samples := make([]models.Sample, 0, len(ids))
	for _, id := range ids {
		samples = append(samples, models.Sample{
			UniqueID:        id,
			Question:        "q",
			ReferenceAnswer: "a",
			PredictedAnswer: "p",
			Extra:           map[string]any{"video_name": id},
		})
	}
	set, err := models.NewPredictionSet(samples)
	require.NoError(t, err)
	return set
}

func newTestDriver(t *testing.T, store checkpoint.Store, j annotator.Judge, cfg Config) *Driver {
	t.Helper()
	prompt, err := judge.NewPrompt("{{.unique_id}}")
	require.NoError(t, err)
	ann := annotator.NewAnnotator(j, prompt, store, newTestLogger())
	return New(store, ann, cfg, newTestLogger())
}

func newFileStore(t *testing.T) *checkpoint.FileStore {
	t.Helper()
	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestRun_DuplicateRawIDsEndToEnd(t *testing.T) {
	store := newFileStore(t)
	j := newScriptedJudge()
	set := newTestSet(t, "vidA_0", "vidA_1")

	report, err := newTestDriver(t, store, j, Config{NumTasks: 2}).Run(context.Background(), set)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Completed)
	assert.Empty(t, report.Quarantined)

	ids, err := store.ListIDs(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"vidA_0", "vidA_1"}, ids)
}

func TestRun_LoadJudgeCombineScore(t *testing.T) {
	ctx := context.Background()
	input := `[
  {"video_name": "vidA", "question": "q1", "answer": "a1", "pred": "p1"},
  {"video_name": "vidA", "question": "q2", "answer": "a2", "pred": "p2"}
]`

	set, err := loader.NewLoader("video_name", newTestLogger()).Load(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"vidA_0", "vidA_1"}, set.IDs())

	store := newFileStore(t)
	j := newScriptedJudge()
	j.failures["vidA_1"] = []error{fmt.Errorf("%w: ThrottlingException", judge.ErrJudgeUnavailable)}

	report, err := newTestDriver(t, store, j, Config{NumTasks: 2}).Run(ctx, set)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Completed)
	assert.Empty(t, report.Quarantined)

	agg := aggregator.NewAggregator(newTestLogger())
	combined, err := agg.Combine(ctx, store, set)
	require.NoError(t, err)
	require.Len(t, combined, 2)
	assert.Equal(t, "q1", combined["vidA_0"].Sample.Question)
	assert.Equal(t, "q2", combined["vidA_1"].Sample.Question)
	assert.Equal(t, "vidA_1", combined["vidA_1"].Sample.UniqueID)

	metrics, err := agg.CalcScores(combined)
	require.NoError(t, err)
	assert.Equal(t, models.Metrics{YesCount: 2, NoCount: 0, Accuracy: 1, AverageScore: 4}, metrics)
}

func TestRun_ParallelChunks(t *testing.T) {
	store := newFileStore(t)
	j := newScriptedJudge()

	ids := make([]string, 25)
	for i := range ids {
		ids[i] = fmt.Sprintf("v_%d", i)
	}
	set := newTestSet(t, ids...)

	report, err := newTestDriver(t, store, j, Config{NumTasks: 4, Workers: 3}).Run(context.Background(), set)
	require.NoError(t, err)

	assert.Equal(t, 25, report.Completed)
	assert.Equal(t, 1, report.Passes)
	for _, id := range ids {
		assert.Equal(t, 1, j.callCount(id), "judge calls for %s", id)
	}
}

func TestRun_RetriesFailedItemOnNextPass(t *testing.T) {
	store := newFileStore(t)
	j := newScriptedJudge()
	j.failures["b_0"] = []error{fmt.Errorf("%w: connection reset", judge.ErrJudgeUnavailable)}
	set := newTestSet(t, "a_0", "b_0", "c_0")

	report, err := newTestDriver(t, store, j, Config{NumTasks: 2, MaxAttempts: 3}).Run(context.Background(), set)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Completed)
	assert.Equal(t, 2, report.Passes)
	assert.Equal(t, 2, j.callCount("b_0"))
	assert.Equal(t, 1, j.callCount("a_0"))
	assert.Equal(t, 1, j.callCount("c_0"))
}

func TestRun_ResumeSkipsPersistedRecords(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	existing := models.AnnotationRecord{
		Verdict: models.Verdict{Pred: "no", Score: 0},
		Sample:  models.Sample{UniqueID: "a_0", Question: "q", ReferenceAnswer: "a", PredictedAnswer: "p", Extra: map[string]any{}},
	}
	require.NoError(t, store.Put(ctx, "a_0", existing))

	j := newScriptedJudge()
	set := newTestSet(t, "a_0", "b_0")

	report, err := newTestDriver(t, store, j, Config{NumTasks: 2}).Run(ctx, set)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Completed)

	assert.Equal(t, 0, j.callCount("a_0"))
	assert.Equal(t, 1, j.callCount("b_0"))

	got, err := store.Get(ctx, "a_0")
	require.NoError(t, err)
	assert.Equal(t, existing.Verdict, got.Verdict)

	// A second run over a complete store does nothing.
	report, err = newTestDriver(t, store, j, Config{NumTasks: 2}).Run(ctx, set)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Passes)
	assert.Equal(t, 1, j.callCount("b_0"))
}

func TestRun_QuarantinesPoisonItem(t *testing.T) {
	store := newFileStore(t)
	j := newScriptedJudge()
	j.always["bad_0"] = fmt.Errorf("%w: missing key 'score'", judge.ErrMalformedResponse)
	set := newTestSet(t, "good_0", "bad_0")

	report, err := newTestDriver(t, store, j, Config{NumTasks: 1, MaxAttempts: 3}).Run(context.Background(), set)
	require.NoError(t, err)

	assert.Equal(t, []string{"bad_0"}, report.Quarantined)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 3, j.callCount("bad_0"))
	assert.Equal(t, 3, report.Passes)
}

func TestRun_TransientFailuresAreNotQuarantined(t *testing.T) {
	store := newFileStore(t)
	j := newScriptedJudge()
	throttled := fmt.Errorf("%w: ThrottlingException", judge.ErrJudgeUnavailable)
	j.failures["a_0"] = []error{throttled, throttled, throttled}
	set := newTestSet(t, "a_0")

	report, err := newTestDriver(t, store, j, Config{NumTasks: 1, MaxAttempts: 1, RetryDelay: time.Millisecond}).Run(context.Background(), set)
	require.NoError(t, err)

	assert.Empty(t, report.Quarantined)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 4, j.callCount("a_0"))
}

func TestRun_ListErrorIsRetried(t *testing.T) {
	store := &flakyStore{Store: newFileStore(t), listFailures: 2}
	j := newScriptedJudge()
	set := newTestSet(t, "a_0")

	report, err := newTestDriver(t, store, j, Config{NumTasks: 1, RetryDelay: time.Millisecond}).Run(context.Background(), set)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
}

func TestRun_IgnoresRecordsOutsideSet(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "stray_0", models.AnnotationRecord{Verdict: models.Verdict{Pred: "yes", Score: 5}}))

	report, err := newTestDriver(t, store, newScriptedJudge(), Config{NumTasks: 1}).Run(ctx, newTestSet(t, "a_0"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
}

func TestRun_EmptySet(t *testing.T) {
	report, err := newTestDriver(t, newFileStore(t), newScriptedJudge(), Config{NumTasks: 4}).Run(context.Background(), newTestSet(t))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.Equal(t, 0, report.Passes)
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := newFileStore(t)
	j := newScriptedJudge()
	j.always["a_0"] = fmt.Errorf("%w: ServiceUnavailableException", judge.ErrJudgeUnavailable)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestDriver(t, store, j, Config{NumTasks: 1, RetryDelay: 5 * time.Millisecond, MaxRetryDelay: 20 * time.Millisecond}).
		Run(ctx, newTestSet(t, "a_0"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type panickingAnnotator struct {
	mu    sync.Mutex
	calls int
	inner ChunkAnnotator
}

func (p *panickingAnnotator) AnnotateChunk(ctx context.Context, ids []string, set *models.PredictionSet) []annotator.Failure {
	p.mu.Lock()
	p.calls++
	first := p.calls == 1
	p.mu.Unlock()
	if first {
		panic("worker crashed")
	}
	return p.inner.AnnotateChunk(ctx, ids, set)
}

func TestRun_RecoversFromWorkerPanic(t *testing.T) {
	store := newFileStore(t)
	prompt, err := judge.NewPrompt("{{.unique_id}}")
	require.NoError(t, err)

	ann := &panickingAnnotator{inner: annotator.NewAnnotator(newScriptedJudge(), prompt, store, newTestLogger())}
	d := New(store, ann, Config{NumTasks: 1, MaxAttempts: 5}, newTestLogger())

	report, err := d.Run(context.Background(), newTestSet(t, "a_0", "b_0"))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Completed)
	assert.Equal(t, 2, report.Passes)
}

func TestWorkerCount(t *testing.T) {
	d := New(nil, nil, Config{Workers: 8}, newTestLogger())
	assert.Equal(t, 3, d.workerCount(3))
	assert.Equal(t, 8, d.workerCount(20))

	d = New(nil, nil, Config{}, newTestLogger())
	assert.GreaterOrEqual(t, d.workerCount(100), 1)
}
