package command

import (
	"context"
	"fmt"

	"github.com/sandevgo/ctxkeeper/internal/service/eviction"
)

type SummarizeCommand struct {
	sessions  Sessions
	formatter *ResponseFormatter
}

func NewSummarizeCommand(sessions Sessions) *SummarizeCommand {
	return &SummarizeCommand{
		sessions:  sessions,
		formatter: NewResponseFormatter(),
	}
}

func (c *SummarizeCommand) Name() string {
	return "summarize"
}

func (c *SummarizeCommand) Description() string {
	return "Summarize older messages into a context file now"
}

func (c *SummarizeCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	d, err := c.sessions.Summarize(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}
	if d.Action != eviction.ActionSummarize {
		return c.formatter.Success("Nothing to summarize yet"), nil
	}
	return c.formatter.Combine(
		c.formatter.Success(d.Message),
		c.formatter.Label("File", d.Path),
	), nil
}
