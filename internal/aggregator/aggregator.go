package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
	"github.com/rs/zerolog"
)

// ErrDivisionByZero means there is nothing to average: no records at all, or no yes/no verdicts.
var ErrDivisionByZero = errors.New("division by zero")

// RecordReader is the read side of the checkpoint store.
type RecordReader interface {
	ListIDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (models.AnnotationRecord, error)
}

type Aggregator struct {
	logger *zerolog.Logger
}

func NewAggregator(logger *zerolog.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Combine reads every persisted record that belongs to set.
func (a *Aggregator) Combine(ctx context.Context, store RecordReader, set *models.PredictionSet) (models.CombinedResult, error) {
	ids, err := store.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	combined := make(models.CombinedResult, len(ids))
	stray := 0
	for _, id := range ids {
		if !set.Contains(id) {
			stray++
			continue
		}

		record, err := store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read record %s: %w", id, err)
		}
		combined[id] = record
	}

	if stray > 0 {
		a.logger.Warn().
			Int("count", stray).
			Msg("checkpoint store holds records outside the prediction set, skipped")
	}

	a.logger.Info().
		Int("records", len(combined)).
		Int("expected", set.Len()).
		Msg("combined results")

	return combined, nil
}

// CalcScores counts yes/no verdicts by case-insensitive substring, "yes" taking precedence,
// and averages scores over all records. Verdicts containing neither are counted in neither
// bucket but still contribute their score.
func (a *Aggregator) CalcScores(combined models.CombinedResult) (models.Metrics, error) {
	var scoreSum, count, yesCount, noCount int

	for _, record := range combined {
		count++
		scoreSum += record.Verdict.Score

		pred := strings.ToLower(record.Verdict.Pred)
		switch {
		case strings.Contains(pred, "yes"):
			yesCount++
		case strings.Contains(pred, "no"):
			noCount++
		}
	}

	if count == 0 {
		return models.Metrics{}, fmt.Errorf("%w: average score over an empty result", ErrDivisionByZero)
	}
	if yesCount+noCount == 0 {
		return models.Metrics{}, fmt.Errorf("%w: accuracy without any yes/no verdict", ErrDivisionByZero)
	}

	if ambiguous := count - yesCount - noCount; ambiguous > 0 {
		a.logger.Warn().
			Int("ambiguous", ambiguous).
			Msg("verdicts without yes/no excluded from accuracy")
	}

	metrics := models.Metrics{
		YesCount:     yesCount,
		NoCount:      noCount,
		Accuracy:     float64(yesCount) / float64(yesCount+noCount),
		AverageScore: float64(scoreSum) / float64(count),
	}

	a.logger.Info().
		Int("yes", metrics.YesCount).
		Int("no", metrics.NoCount).
		Float64("accuracy", metrics.Accuracy).
		Float64("average_score", metrics.AverageScore).
		Msg("aggregation complete")

	return metrics, nil
}
