package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/aggregator"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/setup"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	startTime := time.Now()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	predPath := flag.String("pred-path", "", "Path to the predictions file (JSON array or JSON lines)")
	outputDir := flag.String("output-dir", "", "Directory (or key prefix) for per-sample checkpoints")
	saveResult := flag.String("save-result", "", "Path for the combined result JSON")
	saveMetrics := flag.String("save-metrics", "", "Path for the metrics JSON")
	numTasks := flag.Int("num-tasks", 0, "Number of chunks the pending samples are split into per pass")

	flag.Parse()

	requireFlag("pred-path", *predPath)
	requireFlag("output-dir", *outputDir)
	requireFlag("save-result", *saveResult)
	requireFlag("save-metrics", *saveMetrics)
	if *numTasks < 1 {
		log.Fatal().Int("num-tasks", *numTasks).Msg("required flag -num-tasks must be a positive integer")
	}

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg := setup.LoadConfig()

	runLogger := cfg.NewLogger().
		With().
		Str("run_id", uuid.NewString()).
		Logger()
	log.Logger = runLogger

	ctx, cancel := setupGracefulShutdown()
	defer cancel()

	deps, err := setup.Wire(ctx, cfg, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	set, err := deps.Loader.LoadFile(ctx, *predPath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *predPath).Msg("Failed to load predictions")
	}

	store, err := deps.OpenStore(ctx, *outputDir)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.CheckpointBackend).Msg("Failed to open checkpoint store")
	}
	defer store.Close()

	report, err := deps.NewDriver(store, *numTasks).Run(ctx, set)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn().Msg("Interrupted, completed samples are kept for the next run")
			return
		}
		log.Fatal().Err(err).Msg("Annotation failed")
	}

	log.Info().
		Int("total", report.Total).
		Int("completed", report.Completed).
		Int("passes", report.Passes).
		Dur("duration", time.Since(startTime)).
		Msg("Annotation complete")

	if len(report.Quarantined) > 0 {
		log.Error().
			Strs("ids", report.Quarantined).
			Msg("Samples quarantined after repeated failures, excluded from metrics")
	}

	combined, err := deps.Aggregator.Combine(ctx, store, set)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to combine results")
	}
	if err := aggregator.WriteJSON(*saveResult, combined); err != nil {
		log.Fatal().Err(err).Msg("Failed to save combined result")
	}
	log.Info().Str("file", *saveResult).Int("records", len(combined)).Msg("Combined result written")

	metrics, err := deps.Aggregator.CalcScores(combined)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to calculate scores")
	}
	if err := aggregator.WriteJSON(*saveMetrics, metrics); err != nil {
		log.Fatal().Err(err).Msg("Failed to save metrics")
	}

	log.Info().
		Int("yes", metrics.YesCount).
		Int("no", metrics.NoCount).
		Float64("accuracy", metrics.Accuracy).
		Float64("average_score", metrics.AverageScore).
		Str("file", *saveMetrics).
		Msg("Evaluation complete")
}

func requireFlag(name, value string) {
	if value == "" {
		log.Fatal().Msgf("required flag -%s not provided", name)
	}
}

func setupGracefulShutdown() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Warn().Msg("Received interrupt signal, finishing current work...")
		cancel()
	}()

	return ctx, cancel
}
