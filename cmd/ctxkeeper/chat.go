package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sandevgo/ctxkeeper/internal/service/command"
	"github.com/sandevgo/ctxkeeper/internal/transport/cli"
	"github.com/sandevgo/ctxkeeper/pkg/log"
	"github.com/sandevgo/ctxkeeper/pkg/srv"
	"github.com/spf13/cobra"
)

var (
	chatSession string
	chatProfile string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long:  `Starts a new chat session, or resumes a saved one with --session, and streams replies as they are generated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// logger setup
		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)

		services, err := newChatServices(ctx)
		if err != nil {
			return err
		}

		// Start services; the chat ending stops the rest
		srv.StartServices(ctx, stop, services)

		// Wait for shutdown signal
		srv.ShutdownServices(ctx, services)
		logger.Info().Msg("chat closed")
		return nil
	},
}

func newChatServices(ctx context.Context) ([]srv.Service, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	st, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	services := []srv.Service{srv.NewCleanup(st.db.Close)}

	ag, err := newAgent(ctx, cfg, st)
	if err != nil {
		_ = st.db.Close()
		return nil, err
	}

	sessionID := chatSession
	if sessionID != "" {
		err = ag.Open(ctx, sessionID)
	} else {
		profile := chatProfile
		if profile == "" {
			profile = cfg.Profile
		}
		params, perr := sessionParams(cfg, profile)
		if perr != nil {
			_ = st.db.Close()
			return nil, perr
		}
		sessionID = ag.NewSession(ctx, params)
	}
	if err != nil {
		_ = st.db.Close()
		return nil, err
	}

	router := command.New(command.NewCommands(ag, st.repo, st.files))
	rl, err := cli.NewReadLine(cfg, ag, router, sessionID)
	if err != nil {
		_ = st.db.Close()
		return nil, err
	}
	return append(services, rl), nil
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "resume a saved session by id")
	chatCmd.Flags().StringVarP(&chatProfile, "profile", "p", "", "personality profile for a new session (default CTXKEEPER_PROFILE)")
	rootCmd.AddCommand(chatCmd)
}
