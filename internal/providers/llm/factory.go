package llm

import (
	"context"
	"fmt"

	"github.com/sandevgo/ctxkeeper/internal/config"
	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/budget"
	"github.com/sandevgo/ctxkeeper/pkg/log"
)

const (
	ProviderLlamaCpp = "llamacpp"
	ProviderOpenAI   = "openai"
)

// NewBackend creates the generation backend selected by configuration.
func NewBackend(ctx context.Context, cfg config.BackendConfig, est budget.Estimator) (core.Backend, error) {
	log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Str("base_url", cfg.BaseURL).
		Str("model", cfg.Model).
		Msg("starting generation backend")

	tokenizer := NewTokenizer(cfg.Tokenizer, est)

	switch cfg.Provider {
	case ProviderLlamaCpp:
		return NewLlamaCpp(cfg.BaseURL, cfg.APIKey, cfg.MaxInputTokens, tokenizer), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxInputTokens, tokenizer), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
