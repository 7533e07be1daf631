package setup

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/povarna/generative-ai-agents/qa-eval/internal/aggregator"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/annotator"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/checkpoint"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/config"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/driver"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/judge"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/llm"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/llm/bedrock"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/llm/gpt"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/loader"
	redisconn "github.com/povarna/generative-ai-agents/qa-eval/internal/redis"
	applog "github.com/povarna/generative-ai-agents/qa-eval/internal/setup/logger"
	"github.com/rs/zerolog"
)

type Config struct {
	AWSRegion       string
	ClaudeModelID   string
	OpenAIKey       string
	OpenAIModelID   string
	DefaultProvider string

	CheckpointBackend   string
	RedisAddr           string
	RedisPassword       string
	RedisKeyPrefix      string
	RedisConnectRetries int
	S3Bucket            string
	S3Prefix            string
	S3Endpoint          string
	S3AccessKey         string
	S3SecretKey         string

	Workers       int
	MaxAttempts   int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	JudgeTimeout  time.Duration

	LogLevel  string
	LogFormat string
	APIPort   string
}

type Dependencies struct {
	JudgeConfig config.JudgeConfig
	Loader      *loader.Loader
	Prompt      *judge.Prompt
	Adapter     *judge.Adapter
	Aggregator  *aggregator.Aggregator
	Logger      *zerolog.Logger

	cfg *Config
}

func LoadConfig() *Config {
	return &Config{
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		ClaudeModelID:   getEnv("CLAUDE_MODEL_ID", ""),
		OpenAIKey:       getEnv("OPEN_AI_KEY", ""),
		OpenAIModelID:   getEnv("OPEN_AI_MODEL_ID", ""),
		DefaultProvider: getEnv("DEFAULT_LLM_PROVIDER", "bedrock"),

		CheckpointBackend:   getEnv("CHECKPOINT_BACKEND", "file"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisKeyPrefix:      getEnv("REDIS_KEY_PREFIX", ""),
		RedisConnectRetries: getEnvInt("REDIS_CONNECT_RETRIES", 3),
		S3Bucket:            getEnv("S3_BUCKET", ""),
		S3Prefix:            getEnv("S3_PREFIX", ""),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3AccessKey:         getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:         getEnv("S3_SECRET_KEY", ""),

		Workers:       getEnvInt("WORKERS", runtime.NumCPU()),
		MaxAttempts:   getEnvInt("MAX_ATTEMPTS", 5),
		RetryDelay:    getEnvDuration("RETRY_DELAY", time.Second),
		MaxRetryDelay: getEnvDuration("MAX_RETRY_DELAY", 30*time.Second),
		JudgeTimeout:  getEnvDuration("JUDGE_TIMEOUT", 60*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		APIPort:   getEnv("EVAL_API_PORT", "18081"),
	}
}

// Wire builds the judge side of the pipeline. Checkpoint stores are opened separately with
// OpenStore since only the batch command needs one.
// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger() zerolog.Logger {
	return applog.New(c.LogLevel, c.LogFormat)
}

func Wire(ctx context.Context, cfg *Config, logger *zerolog.Logger) (*Dependencies, error) {
	llmClient, err := createLLMClient(ctx, cfg.DefaultProvider, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.DefaultProvider, err)
	}

	judgeCfg, err := config.LoadJudgeConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load judge config: %w", err)
	}
	if judgeCfg.Judge.Model.Timeout == 0 {
		judgeCfg.Judge.Model.Timeout = cfg.JudgeTimeout
	}

	prompt, err := judge.NewPrompt(judgeCfg.Judge.Prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to compile judge prompt: %w", err)
	}

	return &Dependencies{
		JudgeConfig: judgeCfg.Judge,
		Loader:      loader.NewLoader(judgeCfg.Judge.IDField, logger),
		Prompt:      prompt,
		Adapter:     judge.NewAdapter(judgeCfg.Judge, llmClient, logger),
		Aggregator:  aggregator.NewAggregator(logger),
		Logger:      logger,
		cfg:         cfg,
	}, nil
}

// OpenStore opens the configured checkpoint backend. outputDir is the file store directory
// and the default key prefix of the Redis and S3 backends.
func (d *Dependencies) OpenStore(ctx context.Context, outputDir string) (checkpoint.Store, error) {
	return createStore(ctx, d.cfg, outputDir, d.Logger)
}

// NewDriver builds the annotation loop over store with numTasks chunks per pass.
func (d *Dependencies) NewDriver(store checkpoint.Store, numTasks int) *driver.Driver {
	ann := annotator.NewAnnotator(d.Adapter, d.Prompt, store, d.Logger)
	return driver.New(store, ann, driver.Config{
		NumTasks:      numTasks,
		Workers:       d.cfg.Workers,
		MaxAttempts:   d.cfg.MaxAttempts,
		RetryDelay:    d.cfg.RetryDelay,
		MaxRetryDelay: d.cfg.MaxRetryDelay,
	}, d.Logger)
}

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}

	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		value = defaultValue
	}

	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		value = defaultValue
	}

	return value
}

// getEnvDuration accepts Go durations ("1500ms", "2s") and bare numbers of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if seconds := getEnvFloat(key, -1); seconds >= 0 {
		return time.Duration(seconds * float64(time.Second))
	}

	return defaultValue
}

func createLLMClient(ctx context.Context, provider string, cfg *Config) (llm.LLMClient, error) {
	switch provider {
	case "bedrock":
		return bedrock.NewClient(ctx, cfg.AWSRegion, cfg.ClaudeModelID)
	case "openai":
		return gpt.NewClient(cfg.OpenAIKey, cfg.OpenAIModelID)
	default:
		return bedrock.NewClient(ctx, cfg.AWSRegion, cfg.ClaudeModelID)
	}
}

func createStore(ctx context.Context, cfg *Config, outputDir string, logger *zerolog.Logger) (checkpoint.Store, error) {
	switch cfg.CheckpointBackend {
	case "", "file":
		return checkpoint.NewFileStore(outputDir)
	case "redis":
		client, err := redisconn.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisConnectRetries, logger)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewRedisStore(client, firstNonEmpty(cfg.RedisKeyPrefix, outputDir), logger), nil
	case "s3":
		client, err := checkpoint.NewS3Client(ctx, checkpoint.S3Config{
			Region:    cfg.AWSRegion,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return checkpoint.NewS3Store(client, cfg.S3Bucket, firstNonEmpty(cfg.S3Prefix, outputDir))
	default:
		return nil, fmt.Errorf("unsupported checkpoint backend %q", cfg.CheckpointBackend)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
