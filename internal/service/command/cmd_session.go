package command

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/ctxkeeper/internal/core"
)

const sessionsLimit = 10

type SaveCommand struct {
	sessions  Sessions
	formatter *ResponseFormatter
}

func NewSaveCommand(sessions Sessions) *SaveCommand {
	return &SaveCommand{
		sessions:  sessions,
		formatter: NewResponseFormatter(),
	}
}

func (c *SaveCommand) Name() string {
	return "save"
}

func (c *SaveCommand) Description() string {
	return "Save the current session"
}

func (c *SaveCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	if err := c.sessions.Save(ctx, sessionID); err != nil {
		return "", err
	}
	return c.formatter.Success("Session saved: " + sessionID), nil
}

type SessionsCommand struct {
	repo      core.SessionRepository
	formatter *ResponseFormatter
}

func NewSessionsCommand(repo core.SessionRepository) *SessionsCommand {
	return &SessionsCommand{
		repo:      repo,
		formatter: NewResponseFormatter(),
	}
}

func (c *SessionsCommand) Name() string {
	return "sessions"
}

func (c *SessionsCommand) Description() string {
	return "List recently saved sessions"
}

func (c *SessionsCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	list, err := c.repo.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(list) == 0 {
		return c.formatter.Success("No saved sessions"), nil
	}

	items := make([]string, 0, sessionsLimit)
	for i, s := range list {
		if i == sessionsLimit {
			break
		}
		item := fmt.Sprintf("%s  %3d messages  %s", s.ID, s.MessageCount, s.UpdatedAt.Local().Format(time.DateTime))
		if s.ID == sessionID {
			item += "  (current)"
		}
		items = append(items, item)
	}

	sections := []string{c.formatter.Info("Saved Sessions"), c.formatter.List(items)}
	if len(list) > sessionsLimit {
		sections = append(sections, c.formatter.Tip(fmt.Sprintf("%d more, see `ctxkeeper sessions list`", len(list)-sessionsLimit)))
	}
	return c.formatter.Combine(sections...), nil
}
