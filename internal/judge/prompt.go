package judge

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
)

// Prompt renders the judge prompt for a sample. The template is parsed once and only
// executed afterwards, so a Prompt is safe for concurrent use.
type Prompt struct {
	tmpl *template.Template
}

func NewPrompt(text string) (*Prompt, error) {
	tmpl, err := template.New("judge-prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &Prompt{tmpl: tmpl}, nil
}

// Render substitutes the sample's fields into the template. Referencing a field the
// sample does not carry is an error.
func (p *Prompt) Render(sample models.Sample) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, sample.Fields()); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}
	return buf.String(), nil
}
