package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sandevgo/ctxkeeper/internal/service/conversation"
	"github.com/sandevgo/ctxkeeper/internal/service/memory"
	"github.com/sandevgo/ctxkeeper/pkg/log"
)

const truncatedMarker = "\n[... truncated]"

// refreshContext builds the system prompt actually sent to the backend and
// records how many tokens it adds on top of the configured one, so usage
// matches what the assembler sees.
func (a *Agent) refreshContext(ctx context.Context, store *conversation.Store) string {
	base := store.Params().SystemPrompt

	var parts []string
	if base != "" {
		parts = append(parts, base)
	}
	if facts := store.Facts(); len(facts) > 0 {
		lines := []string{"ABOUT THE USER:"}
		for _, k := range memory.SortedKeys(facts) {
			lines = append(lines, fmt.Sprintf("- %s: %s", memory.HumanKey(k), facts[k]))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	if block := a.contextBlock(ctx, store.ContextFiles()); block != "" {
		parts = append(parts, block)
	}

	full := strings.Join(parts, "\n\n")
	store.SetContextTokens(max(0, a.estimator.Estimate(full)-a.estimator.Estimate(base)))
	return full
}

// contextBlock concatenates attached files within ContextTokenBudget.
// Missing files are skipped with a warning.
func (a *Agent) contextBlock(ctx context.Context, names []string) string {
	if len(names) == 0 {
		return ""
	}
	logger := log.FromCtx(ctx)

	maxChars := a.estimator.Chars(a.appCfg.ContextTokenBudget)
	total := 0
	var contents []string

	for _, name := range names {
		if total >= maxChars {
			logger.Warn().Str("file", name).Msg("context token budget reached, skipping remaining files")
			break
		}

		content, err := a.files.Load(ctx, name)
		if err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("context file unavailable, skipped")
			continue
		}
		if content == "" {
			continue
		}

		available := maxChars - total
		if utf8.RuneCountInString(content) > available {
			content = string([]rune(content)[:available]) + truncatedMarker
		}

		contents = append(contents, fmt.Sprintf("[Context from %s]:\n%s\n", name, content))
		total += utf8.RuneCountInString(content)
	}

	return strings.Join(contents, "\n")
}
