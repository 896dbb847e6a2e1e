package ui

import (
	"fmt"
	"strings"

	"github.com/sandevgo/ctxkeeper/internal/core"
)

const DefaultMeterWidth = 20

// Bar draws a fixed-width fill bar for ratio, clamped to [0,1].
func Bar(ratio float64, width int) string {
	if width <= 0 {
		width = DefaultMeterWidth
	}
	ratio = min(max(ratio, 0), 1)
	filled := int(ratio*float64(width) + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// Meter renders the context usage line shown after every turn.
func Meter(u core.Usage) string {
	line := fmt.Sprintf("%s %.0f%% (%d/%d tokens", Bar(u.Percentage, DefaultMeterWidth), u.Percentage*100, u.UsedTokens, u.TotalBudget)
	if u.Approximate {
		line += ", estimated"
	}
	line += ")"

	switch {
	case u.AutoSummarize:
		return AlertStyle.Render(line)
	case u.Warn:
		return WarnStyle.Render(line)
	default:
		return UsageStyle.Render(line)
	}
}
