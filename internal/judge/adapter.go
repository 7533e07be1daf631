package judge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/povarna/generative-ai-agents/qa-eval/internal/config"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/llm"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
	"github.com/rs/zerolog"
)

var (
	ErrMalformedResponse = errors.New("malformed judge response")
	ErrJudgeUnavailable  = errors.New("judge unavailable")
)

const defaultTimeout = 60 * time.Second

// Adapter makes a single judge call per verdict. It never retries.
type Adapter struct {
	system      string
	modelConfig config.ModelConfig
	timeout     time.Duration
	llmClient   llm.LLMClient
	logger      *zerolog.Logger
}

func NewAdapter(judgeCfg config.JudgeConfig, llmClient llm.LLMClient, logger *zerolog.Logger) *Adapter {
	return &Adapter{
		system:      judgeCfg.System,
		modelConfig: judgeCfg.Model,
		timeout:     judgeCfg.Model.EffectiveTimeout(defaultTimeout),
		llmClient:   llmClient,
		logger:      logger,
	}
}

// Judge sends prompt with the fixed system instruction and parses the reply.
// Transport failures wrap ErrJudgeUnavailable, unparseable replies wrap ErrMalformedResponse.
func (a *Adapter) Judge(ctx context.Context, prompt string) (models.Verdict, error) {
	now := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.llmClient.InvokeModel(callCtx, llm.LLMRequest{
		System:      a.system,
		Prompt:      prompt,
		MaxTokens:   a.modelConfig.MaxTokens,
		Temperature: a.modelConfig.Temperature,
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return models.Verdict{}, fmt.Errorf("%w: no reply within %s (%w): %w", ErrJudgeUnavailable, a.timeout, context.DeadlineExceeded, err)
		}
		return models.Verdict{}, fmt.Errorf("%w: %w", ErrJudgeUnavailable, err)
	}

	verdict, err := ParseVerdict(resp.Content)
	if err != nil {
		a.logger.Debug().
			Str("content", resp.Content).
			Str("stop_reason", resp.StopReason).
			Msg("unparseable judge reply")
		return models.Verdict{}, err
	}

	a.logger.Debug().
		Str("pred", verdict.Pred).
		Int("score", verdict.Score).
		Dur("duration", time.Since(now)).
		Msg("judge completed")

	return verdict, nil
}

// IsTransient reports whether a judge failure is expected to clear on its own, such as a
// timeout or throttling. Malformed replies and client errors are not transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return errors.Is(err, ErrJudgeUnavailable) && llm.IsRetryable(err)
}
