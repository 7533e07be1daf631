package judge

import (
	"fmt"
	"strings"

	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
	"go.yaml.in/yaml/v3"
)

const (
	minScore = 0
	maxScore = 5
)

// ParseVerdict decodes a judge reply such as {'pred': 'yes', 'score': 4}. JSON objects and
// Python dict literals are both accepted since either is a valid YAML flow mapping.
func ParseVerdict(content string) (models.Verdict, error) {
	literal := extractLiteral(stripMarkdownCodeBlock(content))
	if literal == "" {
		return models.Verdict{}, fmt.Errorf("%w: no dictionary literal in %q", ErrMalformedResponse, content)
	}

	var fields map[string]any
	if err := yaml.Unmarshal([]byte(literal), &fields); err != nil {
		return models.Verdict{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	rawPred, ok := fields["pred"]
	if !ok {
		return models.Verdict{}, fmt.Errorf("%w: missing key 'pred'", ErrMalformedResponse)
	}
	pred, ok := rawPred.(string)
	if !ok {
		return models.Verdict{}, fmt.Errorf("%w: 'pred' must be a string, got %T", ErrMalformedResponse, rawPred)
	}
	switch strings.ToLower(strings.TrimSpace(pred)) {
	case "yes", "no":
	default:
		return models.Verdict{}, fmt.Errorf("%w: 'pred' must be yes or no, got %q", ErrMalformedResponse, pred)
	}

	rawScore, ok := fields["score"]
	if !ok {
		return models.Verdict{}, fmt.Errorf("%w: missing key 'score'", ErrMalformedResponse)
	}
	score, err := models.CoerceScore(rawScore)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if score < minScore || score > maxScore {
		return models.Verdict{}, fmt.Errorf("%w: score %d out of range [%d, %d]", ErrMalformedResponse, score, minScore, maxScore)
	}

	return models.Verdict{Pred: pred, Score: score}, nil
}

// extractLiteral returns the outermost {...} span of content, or "" when there is none.
func extractLiteral(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return ""
	}
	return content[start : end+1]
}

// stripMarkdownCodeBlock removes markdown code block formatting if present
func stripMarkdownCodeBlock(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		firstNewline := strings.Index(content, "\n")
		if firstNewline == -1 {
			return content
		}

		closingBackticks := strings.LastIndex(content, "```")
		if closingBackticks == -1 || closingBackticks <= firstNewline {
			return content
		}

		content = strings.TrimSpace(content[firstNewline+1 : closingBackticks])
	}

	return content
}
