package llm

import (
	"github.com/sandevgo/ctxkeeper/internal/core"
)

const (
	MinTemperature = 0.1

	// tokens kept free between prompt and generated text
	generationMargin = 50
	minNewTokens     = 10
)

// clampNewTokens bounds the generation length by what is left of the
// window after the prompt. A window <= 0 disables the bound.
func clampNewTokens(maxTokens, window, promptTokens int) (int, error) {
	n := maxTokens
	if window > 0 {
		n = min(maxTokens, window-promptTokens-generationMargin)
	}
	if n < minNewTokens {
		return 0, core.ErrContextFull
	}
	return n, nil
}

func temperature(t float64) float64 {
	return max(t, MinTemperature)
}
