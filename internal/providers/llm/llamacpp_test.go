package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/budget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func estimatorTokenizer() *Tokenizer {
	return NewTokenizer("", budget.DefaultEstimator())
}

func sseServer(t *testing.T, got *completionRequest, chunks ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/completion":
			if got != nil {
				require.NoError(t, json.NewDecoder(r.Body).Decode(got))
			}
			w.Header().Set("Content-Type", "text/event-stream")
			for _, c := range chunks {
				fmt.Fprintf(w, "data: %s\n\n", c)
				w.(http.Flusher).Flush()
			}
		default:
			http.NotFound(w, r)
		}
	}))
}

func collect(t *testing.T, b core.Backend, prompt string, params core.GenerationParams) ([]string, error) {
	t.Helper()
	var out []string
	err := b.Generate(context.Background(), prompt, params, func(f string) error {
		out = append(out, f)
		return nil
	})
	return out, err
}

func TestLlamaCpp_Ready(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "loading", status: http.StatusServiceUnavailable, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := NewLlamaCpp(srv.URL, "", 0, estimatorTokenizer()).Ready(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrBackendUnready)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLlamaCpp_ReadyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewLlamaCpp(url, "", 0, estimatorTokenizer()).Ready(context.Background())
	assert.ErrorIs(t, err, core.ErrBackendUnready)
}

func TestLlamaCpp_GenerateStreams(t *testing.T) {
	var req completionRequest
	srv := sseServer(t, &req,
		`{"content":"Hel","stop":false}`,
		`{"content":"lo","stop":false}`,
		`{"content":"!","stop":true}`,
	)
	defer srv.Close()

	b := NewLlamaCpp(srv.URL, "", 0, estimatorTokenizer())
	params := core.GenerationParams{
		Temperature:       0,
		TopP:              0.9,
		TopK:              50,
		RepetitionPenalty: 1.1,
		MaxTokens:         512,
		ContextWindow:     4096,
	}

	out, err := collect(t, b, "User: hi\n\nAssistant:", params)
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo", "!"}, out)
	assert.Equal(t, "User: hi\n\nAssistant:", req.Prompt)
	assert.Equal(t, 512, req.NPredict)
	assert.Equal(t, MinTemperature, req.Temperature)
	assert.Equal(t, 50, req.TopK)
	assert.Equal(t, 1.1, req.RepeatPenalty)
	assert.True(t, req.Stream)
}

func TestLlamaCpp_GenerateClampsNewTokens(t *testing.T) {
	var req completionRequest
	srv := sseServer(t, &req, `{"content":"","stop":true}`)
	defer srv.Close()

	b := NewLlamaCpp(srv.URL, "", 0, estimatorTokenizer())
	prompt := strings.Repeat("p", 400) // 100 tokens

	_, err := collect(t, b, prompt, core.GenerationParams{MaxTokens: 512, ContextWindow: 300})
	require.NoError(t, err)
	assert.Equal(t, 150, req.NPredict)
}

func TestLlamaCpp_GenerateContextFull(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	b := NewLlamaCpp(srv.URL, "", 0, estimatorTokenizer())
	_, err := collect(t, b, strings.Repeat("p", 400), core.GenerationParams{MaxTokens: 512, ContextWindow: 155})

	assert.ErrorIs(t, err, core.ErrContextFull)
	assert.False(t, called)
}

func TestLlamaCpp_GenerateTruncatesPrompt(t *testing.T) {
	var req completionRequest
	srv := sseServer(t, &req, `{"content":"ok","stop":true}`)
	defer srv.Close()

	b := NewLlamaCpp(srv.URL, "", 2, estimatorTokenizer())
	_, err := collect(t, b, "0123456789Assistant:", core.GenerationParams{MaxTokens: 20})
	require.NoError(t, err)

	assert.Equal(t, "nt:", req.Prompt[len(req.Prompt)-3:])
	assert.Len(t, req.Prompt, 8)
}

func TestLlamaCpp_GenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "http error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model crashed", http.StatusInternalServerError)
			},
			want: "http 500: model crashed",
		},
		{
			name: "bad chunk",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "data: {not json}\n\n")
			},
			want: "decode chunk",
		},
		{
			name: "stream cut before stop",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "data: {\"content\":\"par\"}\n\n")
			},
			want: "unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := collect(t, NewLlamaCpp(srv.URL, "", 0, estimatorTokenizer()), "p", core.GenerationParams{MaxTokens: 20})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLlamaCpp_EmitErrorStops(t *testing.T) {
	srv := sseServer(t, nil,
		`{"content":"a"}`,
		`{"content":"b"}`,
		`{"content":"c","stop":true}`,
	)
	defer srv.Close()

	stop := fmt.Errorf("consumer gone")
	n := 0
	err := NewLlamaCpp(srv.URL, "", 0, estimatorTokenizer()).Generate(context.Background(), "p", core.GenerationParams{MaxTokens: 20},
		func(string) error {
			n++
			if n == 2 {
				return stop
			}
			return nil
		})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, n)
}

func TestClampNewTokens(t *testing.T) {
	tests := []struct {
		name              string
		max, window, used int
		want              int
		wantErr           bool
	}{
		{name: "max tokens fits", max: 512, window: 12288, used: 1000, want: 512},
		{name: "window bound", max: 512, window: 1000, used: 800, want: 150},
		{name: "no window", max: 512, window: 0, used: 100000, want: 512},
		{name: "exactly ten", max: 512, window: 160, used: 100, want: 10},
		{name: "context full", max: 512, window: 159, used: 100, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := clampNewTokens(tt.max, tt.window, tt.used)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrContextFull)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
