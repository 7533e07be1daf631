package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"go.yaml.in/yaml/v3"
)

const DefaultSystem = "You are an intelligent chatbot designed for evaluating the correctness of generative outputs for question-answer pairs. " +
	"Your task is to compare the predicted answer with the correct answer and determine if they match meaningfully. Here's how you can accomplish the task:" +
	"------" +
	"##INSTRUCTIONS: " +
	"- Focus on the meaningful match between the predicted answer and the correct answer.\n" +
	"- Consider synonyms or paraphrases as valid matches.\n" +
	"- Evaluate the correctness of the prediction compared to the answer."

const DefaultPrompt = "Please evaluate the following video-based question-answer pair:\n\n" +
	"Question: {{.question}}\n" +
	"Correct Answer: {{.answer}}\n" +
	"Predicted Answer: {{.pred}}\n\n" +
	"Provide your evaluation only as a yes/no and score where the score is an integer value between 0 and 5, with 5 indicating the highest meaningful match. " +
	"Please generate the response in the form of a Python dictionary string with keys 'pred' and 'score', where value of 'pred' is a string of 'yes' or 'no' and value of 'score' is in INTEGER, not STRING. " +
	"DO NOT PROVIDE ANY OTHER OUTPUT TEXT OR EXPLANATION. Only provide the Python dictionary string. " +
	"For example, your response should look like this: {'pred': 'yes', 'score': 4}."

const (
	DefaultIDField   = "video_name"
	DefaultMaxTokens = 256
)

// LoadJudgeConfig reads the judge configuration from JUDGE_CONFIG_PATH, falling back to
// configs/judge.yaml. A missing file yields the built-in defaults.
func LoadJudgeConfig() (*Config, error) {
	path := os.Getenv("JUDGE_CONFIG_PATH")
	if path == "" {
		path = "configs/judge.yaml"
	}

	return LoadJudgeConfigFile(path)
}

func LoadJudgeConfigFile(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read judge config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse judge config %s: %w", path, err)
		}
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Judge.System) == "" {
		cfg.Judge.System = DefaultSystem
	}
	if strings.TrimSpace(cfg.Judge.Prompt) == "" {
		cfg.Judge.Prompt = DefaultPrompt
	}
	if cfg.Judge.IDField == "" {
		cfg.Judge.IDField = DefaultIDField
	}
	if cfg.Judge.Model.MaxTokens == 0 {
		cfg.Judge.Model.MaxTokens = DefaultMaxTokens
	}
}

func (c *Config) Validate() error {
	if c.Judge.Model.MaxTokens < 0 {
		return fmt.Errorf("judge.model.max_tokens must be positive, got %d", c.Judge.Model.MaxTokens)
	}
	if c.Judge.Model.Temperature < 0 || c.Judge.Model.Temperature > 1 {
		return fmt.Errorf("judge.model.temperature must be within [0, 1], got %f", c.Judge.Model.Temperature)
	}
	if c.Judge.Model.Timeout < 0 {
		return fmt.Errorf("judge.model.timeout must not be negative, got %s", c.Judge.Model.Timeout)
	}
	if _, err := template.New("judge").Parse(c.Judge.Prompt); err != nil {
		return fmt.Errorf("invalid judge prompt template: %w", err)
	}
	return nil
}

// EffectiveTimeout returns the configured per-call timeout or fallback when unset.
func (m ModelConfig) EffectiveTimeout(fallback time.Duration) time.Duration {
	if m.Timeout > 0 {
		return m.Timeout
	}
	return fallback
}
