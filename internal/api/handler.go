package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/emicklei/go-restful/v3"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/aggregator"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/api/middleware"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/judge"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
	"github.com/rs/zerolog"
)

const defaultRequestID = "api_0"

type Judge interface {
	Judge(ctx context.Context, prompt string) (models.Verdict, error)
}

type Renderer interface {
	Render(sample models.Sample) (string, error)
}

type Scorer interface {
	CalcScores(combined models.CombinedResult) (models.Metrics, error)
}

type Handler struct {
	judge    Judge
	renderer Renderer
	scorer   Scorer
	logger   *zerolog.Logger
}

func NewHandler(judge Judge, renderer Renderer, scorer Scorer, logger *zerolog.Logger) *Handler {
	return &Handler{
		judge:    judge,
		renderer: renderer,
		scorer:   scorer,
		logger:   logger,
	}
}

// POST /api/v1/judge
// Body: JudgeRequest
// Returns: Verdict
func (h *Handler) Judge(req *restful.Request, resp *restful.Response) {
	var judgeRequest JudgeRequest
	if err := req.ReadEntity(&judgeRequest); err != nil {
		h.logger.Error().Err(err).Msg("Failed to parse request body")
		middleware.HandleError(resp, err, http.StatusBadRequest)
		return
	}

	if err := judgeRequest.Validate(); err != nil {
		middleware.HandleError(resp, err, http.StatusBadRequest)
		return
	}

	id := judgeRequest.ID
	if id == "" {
		id = defaultRequestID
	}

	prompt, err := h.renderer.Render(models.Sample{
		UniqueID:        id,
		Question:        judgeRequest.Question,
		ReferenceAnswer: judgeRequest.Answer,
		PredictedAnswer: judgeRequest.Pred,
		Extra:           judgeRequest.Extra,
	})
	if err != nil {
		middleware.HandleError(resp, fmt.Errorf("render prompt: %w", err), http.StatusBadRequest)
		return
	}

	h.logger.Info().Str("id", id).Msg("Start judging")

	verdict, err := h.judge.Judge(req.Request.Context(), prompt)
	if err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Judge call failed")
		middleware.HandleError(resp, err, statusFor(err))
		return
	}

	h.logger.Info().
		Str("id", id).
		Str("pred", verdict.Pred).
		Int("score", verdict.Score).
		Msg("Judging complete")

	resp.WriteHeaderAndEntity(http.StatusOK, verdict)
}

// POST /api/v1/scores
// Body: ScoresRequest
// Returns: Metrics
func (h *Handler) Scores(req *restful.Request, resp *restful.Response) {
	var scoresRequest ScoresRequest
	if err := req.ReadEntity(&scoresRequest); err != nil {
		h.logger.Error().Err(err).Msg("Failed to parse request body")
		middleware.HandleError(resp, err, http.StatusBadRequest)
		return
	}

	combined := make(models.CombinedResult, len(scoresRequest.Verdicts))
	for i, v := range scoresRequest.Verdicts {
		combined[strconv.Itoa(i)] = models.AnnotationRecord{Verdict: v}
	}

	metrics, err := h.scorer.CalcScores(combined)
	if err != nil {
		middleware.HandleError(resp, err, statusFor(err))
		return
	}

	resp.WriteHeaderAndEntity(http.StatusOK, metrics)
}

// Health handler GET API /api/v1/health
func (h *Handler) Health(req *restful.Request, resp *restful.Response) {
	healthResponse := HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	}

	resp.WriteHeaderAndEntity(http.StatusOK, healthResponse)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, judge.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, judge.ErrJudgeUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, aggregator.ErrDivisionByZero):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
