package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/ctxkeeper/internal/core"
)

type AppConfig struct {
	RuntimePath string `env:"CTXKEEPER_RUNTIME_PATH" envDefault:".ctxkeeper"`
	Profile     string `env:"CTXKEEPER_PROFILE" envDefault:"default"`

	// Budget
	ContextWindow        int     `env:"CONTEXT_WINDOW" envDefault:"12288"`
	WarnThreshold        float64 `env:"WARN_THRESHOLD" envDefault:"0.80"`
	AutoThreshold        float64 `env:"AUTO_THRESHOLD" envDefault:"0.90"`
	KeepMessages         int     `env:"KEEP_MESSAGES" envDefault:"20"`
	DigestWindow         int     `env:"DIGEST_WINDOW" envDefault:"10"`
	ResponseSafetyMargin int     `env:"RESPONSE_SAFETY_MARGIN" envDefault:"50"`
	ContextTokenBudget   int     `env:"CONTEXT_TOKEN_BUDGET" envDefault:"2048"`
	CharsPerToken        int     `env:"CHARS_PER_TOKEN" envDefault:"4"`
	MessageOverhead      int     `env:"MESSAGE_OVERHEAD" envDefault:"5"`

	// Session
	AutoSaveEvery     int  `env:"AUTO_SAVE_EVERY" envDefault:"5"`
	AutoAttachSummary bool `env:"AUTO_ATTACH_SUMMARY" envDefault:"true"`

	// Generation defaults, overridden by the selected profile
	SystemPrompt      string  `env:"SYSTEM_PROMPT" envDefault:"You are a helpful AI assistant."`
	Temperature       float64 `env:"TEMPERATURE" envDefault:"0.7"`
	TopP              float64 `env:"TOP_P" envDefault:"0.9"`
	TopK              int     `env:"TOP_K" envDefault:"50"`
	RepetitionPenalty float64 `env:"REPETITION_PENALTY" envDefault:"1.1"`
	MaxTokens         int     `env:"MAX_TOKENS" envDefault:"512"`

	Backend BackendConfig
}

type BackendConfig struct {
	Provider       string        `env:"LLM_PROVIDER" envDefault:"llamacpp"`
	BaseURL        string        `env:"LLM_BASE_URL" envDefault:"http://127.0.0.1:8080"`
	APIKey         string        `env:"LLM_API_KEY"`
	Model          string        `env:"LLM_MODEL" envDefault:"local"`
	MaxInputTokens int           `env:"LLM_MAX_INPUT_TOKENS" envDefault:"12288"`
	Tokenizer      string        `env:"LLM_TOKENIZER" envDefault:"cl100k_base"`
	StreamBuffer   int           `env:"STREAM_BUFFER" envDefault:"64"`
	ReadyTimeout   time.Duration `env:"READY_TIMEOUT" envDefault:"2m"`
}

func NewAppConfig() (*AppConfig, error) {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("failed to parse app config: %w", err)
	}
	if !filepath.IsAbs(c.RuntimePath) {
		c.RuntimePath = GetRuntimePath()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *AppConfig) Validate() error {
	switch {
	case c.WarnThreshold <= 0 || c.WarnThreshold >= 1:
		return fmt.Errorf("WARN_THRESHOLD must be in (0,1), got %v", c.WarnThreshold)
	case c.AutoThreshold < c.WarnThreshold || c.AutoThreshold > 1:
		return fmt.Errorf("AUTO_THRESHOLD must be in [WARN_THRESHOLD,1], got %v", c.AutoThreshold)
	case c.CharsPerToken <= 0:
		return fmt.Errorf("CHARS_PER_TOKEN must be positive, got %d", c.CharsPerToken)
	case c.KeepMessages <= 0:
		return fmt.Errorf("KEEP_MESSAGES must be positive, got %d", c.KeepMessages)
	}
	return nil
}

// DefaultParams returns generation parameters before any profile is applied.
func (c *AppConfig) DefaultParams() core.GenerationParams {
	return core.GenerationParams{
		SystemPrompt:      c.SystemPrompt,
		Temperature:       c.Temperature,
		TopP:              c.TopP,
		TopK:              c.TopK,
		RepetitionPenalty: c.RepetitionPenalty,
		MaxTokens:         c.MaxTokens,
		ContextWindow:     c.ContextWindow,
	}
}

func (c *AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c *AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "sessions.db")
}

func (c *AppConfig) GetContextFilesPath() string {
	return filepath.Join(c.RuntimePath, "context_files")
}

func (c *AppConfig) GetProfilesPath() string {
	return filepath.Join(c.RuntimePath, "profiles.yaml")
}

func (c *AppConfig) GetInputHistoryPath() string {
	return filepath.Join(c.RuntimePath, "input_history")
}
