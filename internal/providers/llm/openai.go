package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/pkg/log"
	"github.com/sashabaranov/go-openai"
)

// OpenAI streams raw text completions from any OpenAI-compatible server.
// The prompt is already assembled, so the completions endpoint is used
// rather than chat.
type OpenAI struct {
	client         *openai.Client
	model          string
	tokenizer      *Tokenizer
	maxInputTokens int
}

func NewOpenAI(baseURL, apiKey, model string, maxInputTokens int, tokenizer *Tokenizer) *OpenAI {
	if apiKey == "" {
		apiKey = "dummy-key" // local servers ignore it
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	}

	return &OpenAI{
		client:         openai.NewClientWithConfig(clientConfig),
		model:          model,
		tokenizer:      tokenizer,
		maxInputTokens: maxInputTokens,
	}
}

// Ready treats a successful model listing as ready.
func (o *OpenAI) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if _, err := o.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrBackendUnready, err)
	}
	return nil
}

func (o *OpenAI) Generate(ctx context.Context, prompt string, params core.GenerationParams, emit func(string) error) error {
	logger := log.FromCtx(ctx)

	prompt, truncated := o.tokenizer.TruncateTail(ctx, prompt, o.maxInputTokens)
	if truncated {
		logger.Warn().Int("max_input_tokens", o.maxInputTokens).Msg("prompt truncated to backend input limit")
	}

	maxTokens, err := clampNewTokens(params.MaxTokens, params.ContextWindow, o.tokenizer.Count(ctx, prompt))
	if err != nil {
		return err
	}

	if params.TopK > 0 || params.RepetitionPenalty > 0 {
		logger.Debug().
			Int("top_k", params.TopK).
			Float64("repetition_penalty", params.RepetitionPenalty).
			Msg("sampler options not supported by completions API, ignored")
	}

	req := openai.CompletionRequest{
		Model:       o.model,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: float32(temperature(params.Temperature)),
		TopP:        float32(params.TopP),
		Stream:      true,
	}

	stream, err := o.client.CreateCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("create completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Text == "" {
			continue
		}
		if err := emit(resp.Choices[0].Text); err != nil {
			return err
		}
	}
}
