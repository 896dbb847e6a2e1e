package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/pkg/log"
)

const healthTimeout = 5 * time.Second

// LlamaCpp talks to the native llama.cpp server API, which exposes the full
// sampler set (top_k, repeat_penalty) and a loading state on /health.
type LlamaCpp struct {
	baseProvider
	tokenizer      *Tokenizer
	maxInputTokens int
}

func NewLlamaCpp(baseURL, apiKey string, maxInputTokens int, tokenizer *Tokenizer) *LlamaCpp {
	return &LlamaCpp{
		baseProvider:   newBaseProvider(baseURL, apiKey),
		tokenizer:      tokenizer,
		maxInputTokens: maxInputTokens,
	}
}

type completionRequest struct {
	Prompt        string  `json:"prompt"`
	NPredict      int     `json:"n_predict"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	TopK          int     `json:"top_k"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	Stream        bool    `json:"stream"`
	CachePrompt   bool    `json:"cache_prompt"`
}

type completionChunk struct {
	Content string `json:"content"`
	Stop    bool   `json:"stop"`
}

// Ready maps the server's 503 "loading model" answer to core.ErrBackendUnready.
func (l *LlamaCpp) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	resp, err := l.doRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrBackendUnready, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: model is loading", core.ErrBackendUnready)
	default:
		return fmt.Errorf("%w: health returned %d", core.ErrBackendUnready, resp.StatusCode)
	}
}

func (l *LlamaCpp) Generate(ctx context.Context, prompt string, params core.GenerationParams, emit func(string) error) error {
	logger := log.FromCtx(ctx)

	prompt, truncated := l.tokenizer.TruncateTail(ctx, prompt, l.maxInputTokens)
	if truncated {
		logger.Warn().Int("max_input_tokens", l.maxInputTokens).Msg("prompt truncated to backend input limit")
	}

	nPredict, err := clampNewTokens(params.MaxTokens, params.ContextWindow, l.tokenizer.Count(ctx, prompt))
	if err != nil {
		return err
	}

	payload := completionRequest{
		Prompt:        prompt,
		NPredict:      nPredict,
		Temperature:   temperature(params.Temperature),
		TopP:          params.TopP,
		TopK:          params.TopK,
		RepeatPenalty: params.RepetitionPenalty,
		Stream:        true,
		CachePrompt:   true,
	}

	resp, err := l.doRequest(ctx, http.MethodPost, "/completion", payload, map[string]string{
		"Accept": "text/event-stream",
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return readCompletionStream(ctx, resp.Body, emit)
}

// readCompletionStream walks "data:" lines of the SSE body. Each event is a
// JSON chunk; the one with stop=true ends the stream.
func readCompletionStream(ctx context.Context, body io.Reader, emit func(string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// blank separators, comments and other SSE fields
			continue
		}
		data = strings.TrimPrefix(data, " ")

		var chunk completionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("decode chunk: %w", err)
		}

		if chunk.Content != "" {
			if err := emit(chunk.Content); err != nil {
				return err
			}
		}
		if chunk.Stop {
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return io.ErrUnexpectedEOF
}
