package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/generation"
	"github.com/sandevgo/ctxkeeper/internal/service/ui"
)

type outputKey struct{}

// WithOutput makes streaming commands write fragments to w as they arrive
// instead of returning them with the result.
func WithOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, outputKey{}, w)
}

func outputFromCtx(ctx context.Context) io.Writer {
	w, _ := ctx.Value(outputKey{}).(io.Writer)
	return w
}

type RegenerateCommand struct {
	sessions  Sessions
	formatter *ResponseFormatter
}

func NewRegenerateCommand(sessions Sessions) *RegenerateCommand {
	return &RegenerateCommand{
		sessions:  sessions,
		formatter: NewResponseFormatter(),
	}
}

func (c *RegenerateCommand) Name() string {
	return "regenerate"
}

func (c *RegenerateCommand) Description() string {
	return "Replace the last reply with a new one"
}

func (c *RegenerateCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	out := outputFromCtx(ctx)
	var buffered strings.Builder

	res, err := c.sessions.Regenerate(ctx, sessionID, func(fragment string) error {
		if out != nil {
			_, err := io.WriteString(out, fragment)
			return err
		}
		buffered.WriteString(fragment)
		return nil
	})
	if errors.Is(err, core.ErrNoReply) {
		return c.formatter.Success("Nothing to regenerate yet"), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to regenerate: %w", err)
	}

	var sections []string
	if out == nil {
		sections = append(sections, buffered.String())
	} else {
		sections = append(sections, "")
	}

	switch res.Status {
	case generation.StatusCompleted:
		sections = append(sections, c.formatter.Success("Reply regenerated"))
	case generation.StatusCancelled:
		sections = append(sections, c.formatter.Tip("regeneration cancelled, previous reply kept"))
	default:
		return "", fmt.Errorf("generation failed, previous reply kept: %w", res.Err)
	}

	for _, n := range res.Notices {
		sections = append(sections, ui.WarnStyle.Render(n))
	}
	sections = append(sections, ui.DescStyle.Render(ui.Meter(res.Usage)))
	return c.formatter.Combine(sections...), nil
}
