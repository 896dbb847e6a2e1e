package command

import "context"

type FactsCommand struct {
	sessions  Sessions
	formatter *ResponseFormatter
}

func NewFactsCommand(sessions Sessions) *FactsCommand {
	return &FactsCommand{
		sessions:  sessions,
		formatter: NewResponseFormatter(),
	}
}

func (c *FactsCommand) Name() string {
	return "facts"
}

func (c *FactsCommand) Description() string {
	return "Show what has been remembered about you"
}

func (c *FactsCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	store, err := c.sessions.Store(sessionID)
	if err != nil {
		return "", err
	}
	return c.formatter.Combine(
		c.formatter.Info("Memory"),
		store.MemorySummary()+"\n",
	), nil
}
