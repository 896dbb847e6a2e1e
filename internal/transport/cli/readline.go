package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sandevgo/ctxkeeper/internal/config"
	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/internal/service/agent"
	"github.com/sandevgo/ctxkeeper/internal/service/command"
	"github.com/sandevgo/ctxkeeper/internal/service/generation"
	"github.com/sandevgo/ctxkeeper/internal/service/ui"
	"github.com/sandevgo/ctxkeeper/pkg/log"
)

// Chat is the part of the agent the terminal needs.
type Chat interface {
	Turn(ctx context.Context, id, input string, onFragment func(string) error) (agent.TurnResult, error)
	Close(ctx context.Context, id string) error
}

type ReadLine struct {
	cfg       *config.AppConfig
	chat      Chat
	router    core.CmdRouter
	sessionID string
	rl        *readline.Instance
}

func NewReadLine(cfg *config.AppConfig, chat Chat, router core.CmdRouter, sessionID string) (*ReadLine, error) {
	// Ensure runtime directory exists
	if err := os.MkdirAll(cfg.RuntimePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     cfg.GetInputHistoryPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init readline: %w", err)
	}

	return &ReadLine{
		cfg:       cfg,
		chat:      chat,
		router:    router,
		sessionID: sessionID,
		rl:        rl,
	}, nil
}

func (r *ReadLine) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Str("session", r.sessionID).Msg("chat started, type /help for commands or 'exit' to quit")

	for {
		// Check context before blocking read
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := r.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					return nil // Exit on Ctrl+C
				}
				continue
			} else if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if quit := r.handle(ctx, line, r.rl.Stdout()); quit {
			return nil
		}
	}
}

// handle processes one input line and reports whether the chat should end.
func (r *ReadLine) handle(ctx context.Context, line string, out io.Writer) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "exit", "quit":
		return true
	}

	if reply, ok := r.router.Execute(command.WithOutput(ctx, out), r.sessionID, line); ok {
		fmt.Fprintln(out, reply)
		return false
	}

	res, err := r.chat.Turn(ctx, r.sessionID, line, func(fragment string) error {
		_, err := io.WriteString(out, fragment)
		return err
	})
	if err != nil {
		if errors.Is(err, core.ErrSessionBusy) {
			fmt.Fprintln(out, ui.WarnStyle.Render("Still generating, please wait."))
			return false
		}
		log.FromCtx(ctx).Error().Err(err).Msg("turn failed")
		fmt.Fprintln(out, ui.AlertStyle.Render("Error: "+err.Error()))
		return false
	}

	fmt.Fprintln(out)
	switch res.Status {
	case generation.StatusFailed:
		fmt.Fprintln(out, ui.AlertStyle.Render("Generation failed: "+errText(res.Err)))
	case generation.StatusCancelled:
		fmt.Fprintln(out, ui.WarnStyle.Render("[cancelled]"))
	}

	for _, n := range res.Notices {
		fmt.Fprintln(out, ui.WarnStyle.Render(n))
	}
	fmt.Fprintln(out, ui.DescStyle.Render(ui.Meter(res.Usage)))
	return false
}

func (r *ReadLine) Shutdown(ctx context.Context) error {
	err := r.chat.Close(ctx, r.sessionID)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Str("session", r.sessionID).Msg("failed to save session on exit")
	}
	if r.rl != nil {
		return errors.Join(err, r.rl.Close())
	}
	return err
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
