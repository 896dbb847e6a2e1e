package prompt

import (
	"fmt"
	"strings"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/budget"
)

const (
	DefaultSafetyMargin = 50
	Cue                 = "Assistant:"
)

// Assembler turns a message log into a single completion prompt that fits
// the window after reserving room for the response.
type Assembler struct {
	estimator    budget.Estimator
	safetyMargin int
}

func NewAssembler(estimator budget.Estimator, safetyMargin int) *Assembler {
	if safetyMargin < 0 {
		safetyMargin = DefaultSafetyMargin
	}
	return &Assembler{estimator: estimator, safetyMargin: safetyMargin}
}

// Reserved is the part of the window kept for the response.
func (a *Assembler) Reserved(params core.GenerationParams) int {
	return params.MaxTokens + a.safetyMargin
}

// Build selects the newest messages that fit and serializes them in order:
//
//	<system prompt>\n\n
//	User: ...\n\n
//	Assistant: ...\n\n
//	Assistant:
//
// A window <= 0 falls back to params.ContextWindow. The estimate of the
// returned prompt never exceeds window minus Reserved(params).
func (a *Assembler) Build(messages []core.Message, systemPrompt string, params core.GenerationParams, window int) (string, error) {
	if window <= 0 {
		window = params.ContextWindow
	}

	reserved := a.Reserved(params)
	if reserved >= window {
		return "", fmt.Errorf("reserved %d of %d tokens: %w", reserved, window, core.ErrWindowTooSmall)
	}

	header := ""
	if systemPrompt != "" {
		header = systemPrompt + "\n\n"
	}

	available := window - reserved - a.estimator.Estimate(header) - a.estimator.Estimate(Cue)
	if available < 0 {
		return "", fmt.Errorf("system prompt exceeds %d available tokens: %w", window-reserved, core.ErrWindowTooSmall)
	}

	included := budget.FitRecent(messages, available, a.cost)

	var sb strings.Builder
	sb.WriteString(header)
	for _, m := range included {
		sb.WriteString(line(m))
	}
	sb.WriteString(Cue)

	return sb.String(), nil
}

// cost never undercounts the serialized line, so the sum over included
// messages bounds the estimate of their concatenation.
func (a *Assembler) cost(m core.Message) int {
	return max(a.estimator.EstimateMessage(m), a.estimator.Estimate(line(m)))
}

func line(m core.Message) string {
	return RoleLabel(m.Role) + ": " + m.Content + "\n\n"
}

// RoleLabel capitalizes a role for the transcript, user -> User.
func RoleLabel(role string) string {
	if role == "" {
		return ""
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
