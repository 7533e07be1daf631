package api

import (
	"strings"

	"github.com/povarna/generative-ai-agents/qa-eval/internal/api/middleware"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
)

type HealthResponse struct {
	Status  string `json:"status" description:"Service status"`
	Version string `json:"version" description:"API version"`
}

type JudgeRequest struct {
	ID       string         `json:"id,omitempty" description:"Optional sample identifier, available to the prompt as unique_id"`
	Question string         `json:"question" description:"The question asked"`
	Answer   string         `json:"answer" description:"The reference answer"`
	Pred     string         `json:"pred" description:"The predicted answer to judge"`
	Extra    map[string]any `json:"extra,omitempty" description:"Extra fields referenced by the prompt template"`
}

func (r *JudgeRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return middleware.ErrEmptyQuestion
	}
	if strings.TrimSpace(r.Answer) == "" {
		return middleware.ErrEmptyAnswer
	}
	return nil
}

type ScoresRequest struct {
	Verdicts []models.Verdict `json:"verdicts" description:"Verdicts to aggregate"`
}
