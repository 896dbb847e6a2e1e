package command

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sandevgo/ctxkeeper/internal/service/ui"
)

type UsageCommand struct {
	sessions  Sessions
	formatter *ResponseFormatter
}

func NewUsageCommand(sessions Sessions) *UsageCommand {
	return &UsageCommand{
		sessions:  sessions,
		formatter: NewResponseFormatter(),
	}
}

func (c *UsageCommand) Name() string {
	return "usage"
}

func (c *UsageCommand) Description() string {
	return "Show context window usage and session stats"
}

func (c *UsageCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	u, err := c.sessions.Usage(sessionID)
	if err != nil {
		return "", err
	}
	store, err := c.sessions.Store(sessionID)
	if err != nil {
		return "", err
	}

	sections := []string{
		c.formatter.Info("Context Usage"),
		ui.Meter(u) + "\n",
	}

	if st, ok := store.Stats(); ok {
		sections = append(sections,
			c.formatter.Label("Session", st.SessionID)+
				c.formatter.Label("Messages", fmt.Sprintf("%d (user %d, assistant %d)", st.TotalMessages, st.UserMessages, st.AssistantMessages))+
				c.formatter.Label("Memory items", strconv.Itoa(st.MemoryItems))+
				c.formatter.Label("Context files", strconv.Itoa(st.ContextFiles))+
				c.formatter.Label("Duration", st.Duration.Truncate(time.Second).String()),
		)
	}

	if u.Warn {
		sections = append(sections, c.formatter.Tip("run /summarize to compress older messages now"))
	}
	return c.formatter.Combine(sections...), nil
}
