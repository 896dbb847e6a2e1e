package command

import (
	"context"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/agent"
	"github.com/sandevgo/ctxkeeper/internal/service/conversation"
	"github.com/sandevgo/ctxkeeper/internal/service/eviction"
)

// Sessions is the part of the agent the chat commands act on.
type Sessions interface {
	Store(id string) (*conversation.Store, error)
	Usage(id string) (core.Usage, error)
	Summarize(ctx context.Context, id string) (eviction.Decision, error)
	Regenerate(ctx context.Context, id string, onFragment func(string) error) (agent.TurnResult, error)
	Save(ctx context.Context, id string) error
	AttachFile(ctx context.Context, id, name string) error
	DetachFile(ctx context.Context, id, name string) error
}

func NewCommands(
	sessions Sessions,
	repo core.SessionRepository,
	files core.ContextFileStore,
) []core.Command {
	return []core.Command{
		NewUsageCommand(sessions),
		NewSummarizeCommand(sessions),
		NewRegenerateCommand(sessions),
		NewSaveCommand(sessions),
		NewSessionsCommand(repo),
		NewFilesCommand(sessions, files),
		NewFactsCommand(sessions),
	}
}
