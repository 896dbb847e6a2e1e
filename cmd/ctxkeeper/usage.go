package main

import (
	"context"
	"fmt"

	"github.com/sandevgo/ctxkeeper/internal/config"
	"github.com/sandevgo/ctxkeeper/internal/service/budget"
	"github.com/sandevgo/ctxkeeper/internal/service/conversation"
	"github.com/sandevgo/ctxkeeper/internal/service/ui"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage <session-id>",
	Short: "Show context window usage of a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd.Context(), func(ctx context.Context, cfg *config.AppConfig, st *storage) error {
			sess, err := st.repo.Load(ctx, args[0])
			if err != nil {
				return err
			}

			est := budget.NewEstimator(cfg.CharsPerToken, cfg.MessageOverhead)
			store := conversation.NewStore(conversation.Config{Estimator: est})
			store.Load(sess)

			u := est.Usage(store.Snapshot(), budget.Thresholds{Warn: cfg.WarnThreshold, Auto: cfg.AutoThreshold})
			fmt.Fprintln(cmd.OutOrStdout(), ui.Meter(u))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)
}
