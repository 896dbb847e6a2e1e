package budget

import "github.com/sandevgo/ctxkeeper/internal/core"

const (
	DefaultWarnThreshold = 0.80
	DefaultAutoThreshold = 0.90
)

type Thresholds struct {
	Warn float64
	Auto float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Warn: DefaultWarnThreshold, Auto: DefaultAutoThreshold}
}

// Snapshot is everything that consumes the context window for one session.
type Snapshot struct {
	SystemPrompt  string
	Messages      []core.Message
	ContextTokens int
	Window        int
}

// Used sums system prompt, messages and the tracked context-file allowance.
func (e Estimator) Used(s Snapshot) int {
	return e.Estimate(s.SystemPrompt) + e.EstimateMessages(s.Messages) + s.ContextTokens
}

func (e Estimator) Usage(s Snapshot, th Thresholds) core.Usage {
	used := e.Used(s)
	u := core.Usage{
		UsedTokens:  used,
		TotalBudget: s.Window,
		Approximate: true,
	}
	if s.Window <= 0 {
		return u
	}

	u.Percentage = float64(used) / float64(s.Window)
	u.Warn = u.Percentage >= th.Warn
	u.AutoSummarize = u.Percentage >= th.Auto
	return u
}
