package command

import (
	"context"
	"fmt"
	"slices"

	"github.com/sandevgo/ctxkeeper/internal/core"
)

type FilesCommand struct {
	sessions  Sessions
	files     core.ContextFileStore
	formatter *ResponseFormatter
}

func NewFilesCommand(sessions Sessions, files core.ContextFileStore) *FilesCommand {
	return &FilesCommand{
		sessions:  sessions,
		files:     files,
		formatter: NewResponseFormatter(),
	}
}

func (c *FilesCommand) Name() string {
	return "files"
}

func (c *FilesCommand) Description() string {
	return "List, attach or detach context files"
}

func (c *FilesCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	if len(args) == 0 {
		return c.list(ctx, sessionID, "")
	}

	switch args[0] {
	case "list":
		category := ""
		if len(args) > 1 {
			category = args[1]
		}
		return c.list(ctx, sessionID, category)
	case "attach", "detach":
		if len(args) != 2 {
			return c.usage(), nil
		}
		return c.toggle(ctx, sessionID, args[0], args[1])
	default:
		return c.usage(), nil
	}
}

func (c *FilesCommand) list(ctx context.Context, sessionID, category string) (string, error) {
	store, err := c.sessions.Store(sessionID)
	if err != nil {
		return "", err
	}
	entries, err := c.files.List(ctx, category)
	if err != nil {
		return "", fmt.Errorf("failed to list context files: %w", err)
	}
	if len(entries) == 0 {
		return c.formatter.Success("No context files"), nil
	}

	attached := store.ContextFiles()
	items := make([]string, 0, len(entries))
	for _, e := range entries {
		mark := " "
		if slices.Contains(attached, e.Name) {
			mark = "*"
		}
		cat := e.Category
		if cat == "" {
			cat = "-"
		}
		items = append(items, fmt.Sprintf("%s %s  [%s]  %d bytes", mark, e.Name, cat, e.Size))
	}

	return c.formatter.Combine(
		c.formatter.Info("Context Files"),
		c.formatter.List(items),
		c.formatter.Tip("* marks files attached to this session"),
	), nil
}

func (c *FilesCommand) toggle(ctx context.Context, sessionID, op, name string) (string, error) {
	if op == "attach" {
		if err := c.sessions.AttachFile(ctx, sessionID, name); err != nil {
			return "", fmt.Errorf("failed to attach %s: %w", name, err)
		}
		return c.formatter.Success("Attached " + name), nil
	}
	if err := c.sessions.DetachFile(ctx, sessionID, name); err != nil {
		return "", fmt.Errorf("failed to detach %s: %w", name, err)
	}
	return c.formatter.Success("Detached " + name), nil
}

func (c *FilesCommand) usage() string {
	return c.formatter.Usage("/files [list [category] | attach <name> | detach <name>]")
}
