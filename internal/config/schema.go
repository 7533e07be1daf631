package config

import "time"

// Config represents the judge configuration file
type Config struct {
	Judge JudgeConfig `yaml:"judge"`
}

// JudgeConfig holds the fixed system instruction and the per-sample prompt template
type JudgeConfig struct {
	System  string      `yaml:"system"`
	Prompt  string      `yaml:"prompt"`
	IDField string      `yaml:"id_field"`
	Model   ModelConfig `yaml:"model"`
}

type ModelConfig struct {
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}
