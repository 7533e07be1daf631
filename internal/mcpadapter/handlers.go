package mcpadapter

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
)

const defaultPairID = "mcp_0"

type Judge interface {
	Judge(ctx context.Context, prompt string) (models.Verdict, error)
}

type Renderer interface {
	Render(sample models.Sample) (string, error)
}

type Scorer interface {
	CalcScores(combined models.CombinedResult) (models.Metrics, error)
}

// JudgeQAPairInput is the MCP tool input schema for judging one question-answer pair.
type JudgeQAPairInput struct {
	ID       string         `json:"id,omitempty" jsonschema:"optional sample identifier, available to the prompt as unique_id"`
	Question string         `json:"question" jsonschema:"the question asked"`
	Answer   string         `json:"answer" jsonschema:"the reference answer"`
	Pred     string         `json:"pred" jsonschema:"the predicted answer to judge"`
	Extra    map[string]any `json:"extra,omitempty" jsonschema:"optional extra fields referenced by the prompt template"`
}

// CalcScoresInput is the MCP tool input schema for scoring a list of verdicts.
type CalcScoresInput struct {
	Verdicts []models.Verdict `json:"verdicts" jsonschema:"verdicts to aggregate"`
}

// NewJudgeQAPairHandler returns a tool handler that renders the configured prompt for the
// pair and asks the judge once. Pass the returned function to mcp.AddTool.
func NewJudgeQAPairHandler(judge Judge, renderer Renderer) func(context.Context, *mcp.CallToolRequest, JudgeQAPairInput) (*mcp.CallToolResult, models.Verdict, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input JudgeQAPairInput) (*mcp.CallToolResult, models.Verdict, error) {
		return JudgeQAPair(ctx, judge, renderer, input)
	}
}

func JudgeQAPair(ctx context.Context, judge Judge, renderer Renderer, input JudgeQAPairInput) (*mcp.CallToolResult, models.Verdict, error) {
	id := input.ID
	if id == "" {
		id = defaultPairID
	}

	extra := make(map[string]any, len(input.Extra))
	for k, v := range input.Extra {
		extra[k] = v
	}

	prompt, err := renderer.Render(models.Sample{
		UniqueID:        id,
		Question:        input.Question,
		ReferenceAnswer: input.Answer,
		PredictedAnswer: input.Pred,
		Extra:           extra,
	})
	if err != nil {
		return nil, models.Verdict{}, fmt.Errorf("render prompt: %w", err)
	}

	verdict, err := judge.Judge(ctx, prompt)
	if err != nil {
		return nil, models.Verdict{}, err
	}
	return nil, verdict, nil
}

// NewCalcScoresHandler returns a tool handler computing metrics over the given verdicts.
func NewCalcScoresHandler(scorer Scorer) func(context.Context, *mcp.CallToolRequest, CalcScoresInput) (*mcp.CallToolResult, models.Metrics, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CalcScoresInput) (*mcp.CallToolResult, models.Metrics, error) {
		metrics, err := scorer.CalcScores(VerdictsToResult(input.Verdicts))
		return nil, metrics, err
	}
}

// VerdictsToResult keys verdicts by position so they can be scored like persisted records.
func VerdictsToResult(verdicts []models.Verdict) models.CombinedResult {
	combined := make(models.CombinedResult, len(verdicts))
	for i, v := range verdicts {
		combined[fmt.Sprintf("%d", i)] = models.AnnotationRecord{Verdict: v}
	}
	return combined
}
