package annotator

//go:generate mockgen -source=annotator.go -destination=mocks/mock_annotator.go -package=mocks

import (
	"context"
	"fmt"

	"github.com/povarna/generative-ai-agents/qa-eval/internal/checkpoint"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/judge"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
	"github.com/rs/zerolog"
)

// Judge returns a verdict for a rendered prompt.
type Judge interface {
	Judge(ctx context.Context, prompt string) (models.Verdict, error)
}

// Renderer builds the prompt for a sample.
type Renderer interface {
	Render(sample models.Sample) (string, error)
}

// Store is the part of the checkpoint store the annotator writes to.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	Put(ctx context.Context, id string, record models.AnnotationRecord) error
}

var _ Store = checkpoint.Store(nil)

// Failure describes an id that was left unpersisted.
type Failure struct {
	ID  string
	Err error
	// Transient failures (timeouts, throttling, storage errors) are expected to clear
	// without a change to the input.
	Transient bool
}

type Annotator struct {
	judge    Judge
	renderer Renderer
	store    Store
	logger   *zerolog.Logger
}

func NewAnnotator(judge Judge, renderer Renderer, store Store, logger *zerolog.Logger) *Annotator {
	return &Annotator{
		judge:    judge,
		renderer: renderer,
		store:    store,
		logger:   logger,
	}
}

// AnnotateChunk judges every id of the chunk in order and persists each verdict as soon as
// it is available. A failure is logged and reported but never stops the chunk; the failing
// id simply stays absent from the store.
func (a *Annotator) AnnotateChunk(ctx context.Context, ids []string, set *models.PredictionSet) []Failure {
	var failures []Failure

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			for _, rest := range ids[i:] {
				failures = append(failures, Failure{ID: rest, Err: err, Transient: true})
			}
			return failures
		}

		if f := a.annotate(ctx, id, set); f != nil {
			a.logger.Error().
				Err(f.Err).
				Str("id", f.ID).
				Bool("transient", f.Transient).
				Msg("Error processing sample")
			failures = append(failures, *f)
		}
	}

	return failures
}

func (a *Annotator) annotate(ctx context.Context, id string, set *models.PredictionSet) *Failure {
	sample, ok := set.Get(id)
	if !ok {
		return &Failure{ID: id, Err: fmt.Errorf("id %s is not in the prediction set", id)}
	}

	done, err := a.store.Exists(ctx, id)
	if err != nil {
		return &Failure{ID: id, Err: fmt.Errorf("check record: %w", err), Transient: true}
	}
	if done {
		a.logger.Debug().Str("id", id).Msg("record already present, skipping judge call")
		return nil
	}

	prompt, err := a.renderer.Render(sample)
	if err != nil {
		return &Failure{ID: id, Err: fmt.Errorf("render prompt: %w", err)}
	}

	verdict, err := a.judge.Judge(ctx, prompt)
	if err != nil {
		return &Failure{ID: id, Err: err, Transient: judge.IsTransient(err)}
	}

	record := models.AnnotationRecord{Verdict: verdict, Sample: sample}
	if err := a.store.Put(ctx, id, record); err != nil {
		return &Failure{ID: id, Err: fmt.Errorf("persist record: %w", err), Transient: true}
	}

	a.logger.Debug().
		Str("id", id).
		Str("pred", verdict.Pred).
		Int("score", verdict.Score).
		Msg("sample annotated")
	return nil
}
