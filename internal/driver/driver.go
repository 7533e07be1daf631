package driver

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/povarna/generative-ai-agents/qa-eval/internal/annotator"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/partition"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ChunkAnnotator judges and persists a chunk of ids, returning the ids it left unpersisted.
type ChunkAnnotator interface {
	AnnotateChunk(ctx context.Context, ids []string, set *models.PredictionSet) []annotator.Failure
}

// Lister reports which ids have a persisted record.
type Lister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

type Config struct {
	// NumTasks is the number of chunks the incomplete ids are split into per pass.
	NumTasks int
	// Workers bounds how many chunks run at once. Zero means runtime.NumCPU().
	Workers int
	// MaxAttempts quarantines an id after this many permanent failures. Zero disables it.
	MaxAttempts int
	// RetryDelay is the base wait before a pass that follows a pass without progress.
	// Zero re-polls immediately.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

type Report struct {
	Total       int
	Completed   int
	Quarantined []string
	Passes      int
}

// Driver repeats annotation passes until every id of the prediction set has a record in
// the store or has been quarantined. The store is the only source of progress.
type Driver struct {
	store     Lister
	annotator ChunkAnnotator
	cfg       Config
	logger    *zerolog.Logger
}

func New(store Lister, annotator ChunkAnnotator, cfg Config, logger *zerolog.Logger) *Driver {
	return &Driver{
		store:     store,
		annotator: annotator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run returns once no id is left to annotate, or with the context error when ctx is done.
// Records persisted before a cancellation stay valid for the next run.
func (d *Driver) Run(ctx context.Context, set *models.PredictionSet) (*Report, error) {
	report := &Report{Total: set.Len()}
	attempts := make(map[string]int)
	quarantined := make(map[string]bool)
	idle := 0

	for {
		if err := ctx.Err(); err != nil {
			report.Quarantined = sortedKeys(quarantined)
			return report, err
		}

		completed, err := d.completionSet(ctx, set)
		if err != nil {
			d.logger.Error().Err(err).Msg("Failed to inspect checkpoint store, retrying")
			if err := d.wait(ctx, idle); err != nil {
				report.Quarantined = sortedKeys(quarantined)
				return report, err
			}
			idle++
			continue
		}

		var incomplete []string
		for _, id := range set.IDs() {
			if !completed[id] && !quarantined[id] {
				incomplete = append(incomplete, id)
			}
		}
		report.Completed = len(completed)

		d.logger.Info().
			Int("completed", len(completed)).
			Int("incomplete", len(incomplete)).
			Int("quarantined", len(quarantined)).
			Int("pass", report.Passes+1).
			Msg("Checkpoint progress")

		if len(incomplete) == 0 {
			break
		}

		chunks := partition.Split(incomplete, d.cfg.NumTasks)
		failures := d.dispatch(ctx, chunks, set)
		report.Passes++

		retrying := 0
		for _, f := range failures {
			if f.Transient || d.cfg.MaxAttempts <= 0 {
				retrying++
				continue
			}
			attempts[f.ID]++
			if attempts[f.ID] >= d.cfg.MaxAttempts {
				quarantined[f.ID] = true
				d.logger.Warn().
					Err(f.Err).
					Str("id", f.ID).
					Int("attempts", attempts[f.ID]).
					Msg("Sample quarantined after repeated failures")
				continue
			}
			retrying++
		}

		if retrying > 0 && len(failures) == len(incomplete) {
			if err := d.wait(ctx, idle); err != nil {
				report.Quarantined = sortedKeys(quarantined)
				return report, err
			}
			idle++
		} else {
			idle = 0
		}
	}

	report.Quarantined = sortedKeys(quarantined)
	return report, nil
}

// completionSet lists the store and keeps only ids of the prediction set.
func (d *Driver) completionSet(ctx context.Context, set *models.PredictionSet) (map[string]bool, error) {
	ids, err := d.store.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if set.Contains(id) {
			completed[id] = true
		}
	}
	return completed, nil
}

// dispatch runs a single chunk inline and several chunks on a bounded pool. Every chunk
// writes its failures to its own slot.
func (d *Driver) dispatch(ctx context.Context, chunks [][]string, set *models.PredictionSet) []annotator.Failure {
	if len(chunks) == 1 {
		return d.runChunk(ctx, chunks[0], set)
	}

	results := make([][]annotator.Failure, len(chunks))

	var g errgroup.Group
	g.SetLimit(d.workerCount(len(chunks)))
	for i, chunk := range chunks {
		g.Go(func() error {
			results[i] = d.runChunk(ctx, chunk, set)
			return nil
		})
	}
	_ = g.Wait()

	var failures []annotator.Failure
	for _, r := range results {
		failures = append(failures, r...)
	}
	return failures
}

// runChunk turns a panicking chunk into failures for all of its ids.
func (d *Driver) runChunk(ctx context.Context, chunk []string, set *models.PredictionSet) (failures []annotator.Failure) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Interface("panic", r).
				Int("chunk_size", len(chunk)).
				Msg("Worker crashed, chunk will be retried")
			failures = make([]annotator.Failure, 0, len(chunk))
			for _, id := range chunk {
				failures = append(failures, annotator.Failure{ID: id, Err: fmt.Errorf("worker panic: %v", r)})
			}
		}
	}()

	return d.annotator.AnnotateChunk(ctx, chunk, set)
}

func (d *Driver) workerCount(chunks int) int {
	workers := d.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return max(min(workers, chunks), 1)
}

func (d *Driver) wait(ctx context.Context, attempt int) error {
	delay := calculateBackoff(attempt, d.cfg.RetryDelay, d.cfg.MaxRetryDelay)
	if delay <= 0 {
		return ctx.Err()
	}

	d.logger.Debug().Dur("delay", delay).Msg("Waiting before next pass")

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
