package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/povarna/generative-ai-agents/qa-eval/internal/checkpoint"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func record(pred string, score int) models.AnnotationRecord {
	return models.AnnotationRecord{
		Verdict: models.Verdict{Pred: pred, Score: score},
		Sample:  models.Sample{Question: "q", ReferenceAnswer: "a", PredictedAnswer: "p"},
	}
}

func TestCalcScores_YesAndNo(t *testing.T) {
	agg := NewAggregator(newTestLogger())

	metrics, err := agg.CalcScores(models.CombinedResult{
		"a": record("yes", 4),
		"b": record("no", 1),
	})
	require.NoError(t, err)

	assert.Equal(t, models.Metrics{YesCount: 1, NoCount: 1, Accuracy: 0.5, AverageScore: 2.5}, metrics)
}

func TestCalcScores_SubstringMatch(t *testing.T) {
	agg := NewAggregator(newTestLogger())

	metrics, err := agg.CalcScores(models.CombinedResult{
		"a": record("YES", 5),
		"b": record("Yes, mostly", 4),
		"c": record("Nope", 0),
		"d": record("yes or no", 3),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, metrics.YesCount)
	assert.Equal(t, 1, metrics.NoCount)
	assert.InDelta(t, 0.75, metrics.Accuracy, 1e-9)
	assert.InDelta(t, 3.0, metrics.AverageScore, 1e-9)
}

func TestCalcScores_AmbiguousVerdictsExcludedFromAccuracy(t *testing.T) {
	agg := NewAggregator(newTestLogger())

	metrics, err := agg.CalcScores(models.CombinedResult{
		"a": record("yes", 4),
		"b": record("maybe", 2),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.YesCount)
	assert.Equal(t, 0, metrics.NoCount)
	assert.Equal(t, 1.0, metrics.Accuracy)
	assert.Equal(t, 3.0, metrics.AverageScore)
}

func TestCalcScores_DivisionByZero(t *testing.T) {
	tests := []struct {
		name     string
		combined models.CombinedResult
	}{
		{name: "empty result", combined: models.CombinedResult{}},
		{name: "nil result", combined: nil},
		{name: "no yes/no verdicts", combined: models.CombinedResult{"a": record("unsure", 2)}},
	}

	agg := NewAggregator(newTestLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agg.CalcScores(tt.combined)
			assert.ErrorIs(t, err, ErrDivisionByZero)
		})
	}
}

func TestCalcScores_Deterministic(t *testing.T) {
	agg := NewAggregator(newTestLogger())
	combined := models.CombinedResult{
		"a": record("yes", 4),
		"b": record("no", 1),
		"c": record("yes", 2),
	}

	first, err := agg.CalcScores(combined)
	require.NoError(t, err)
	for range 5 {
		again, err := agg.CalcScores(combined)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func newTestSet(t *testing.T, ids ...string) *models.PredictionSet {
	t.Helper()
	samples := make([]models.Sample, 0, len(ids))
	for _, id := range ids {
		samples = append(samples, models.Sample{UniqueID: id, Question: "q", ReferenceAnswer: "a", PredictedAnswer: "p"})
	}
	set, err := models.NewPredictionSet(samples)
	require.NoError(t, err)
	return set
}

func TestCombine_ReadsRecordsOfSet(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "vidA_0", record("yes", 5)))
	require.NoError(t, store.Put(ctx, "vidA_1", record("no", 2)))
	require.NoError(t, store.Put(ctx, "other_0", record("yes", 1)))

	agg := NewAggregator(newTestLogger())
	combined, err := agg.Combine(ctx, store, newTestSet(t, "vidA_0", "vidA_1"))
	require.NoError(t, err)

	require.Len(t, combined, 2)
	assert.Equal(t, "yes", combined["vidA_0"].Verdict.Pred)
	assert.Equal(t, 2, combined["vidA_1"].Verdict.Score)
	assert.NotContains(t, combined, "other_0")

	metrics, err := agg.CalcScores(combined)
	require.NoError(t, err)
	assert.Equal(t, models.Metrics{YesCount: 1, NoCount: 1, Accuracy: 0.5, AverageScore: 3.5}, metrics)
}

type failingReader struct {
	ids    []string
	getErr error
}

func (f failingReader) ListIDs(context.Context) ([]string, error) {
	if f.ids == nil {
		return nil, errors.New("permission denied")
	}
	return f.ids, nil
}

func (f failingReader) Get(context.Context, string) (models.AnnotationRecord, error) {
	return models.AnnotationRecord{}, f.getErr
}

func TestCombine_Errors(t *testing.T) {
	agg := NewAggregator(newTestLogger())
	set := newTestSet(t, "a_0")

	_, err := agg.Combine(context.Background(), failingReader{}, set)
	assert.Error(t, err)

	_, err = agg.Combine(context.Background(), failingReader{ids: []string{"a_0"}, getErr: checkpoint.ErrNotFound}, set)
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestWriteJSON_Metrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "metrics.json")

	err := WriteJSON(path, models.Metrics{YesCount: 1, NoCount: 1, Accuracy: 0.5, AverageScore: 2.5})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Yes count": 1, "No count": 1, "Accuracy": 0.5, "Average score": 2.5}`, string(data))
}

func TestWriteJSON_CombinedResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.json")
	combined := models.CombinedResult{"a_0": record("yes", 4)}

	require.NoError(t, WriteJSON(path, combined))
	// Overwrites replace the whole file.
	require.NoError(t, WriteJSON(path, combined))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string][]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded["a_0"], 2)
	assert.JSONEq(t, `{"pred": "yes", "score": 4}`, string(decoded["a_0"][0]))
}
