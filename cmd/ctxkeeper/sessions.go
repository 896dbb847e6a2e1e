package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sandevgo/ctxkeeper/internal/config"
	"github.com/sandevgo/ctxkeeper/internal/service/conversation"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd.Context(), func(ctx context.Context, _ *config.AppConfig, st *storage) error {
			list, err := st.repo.List(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No saved sessions")
				return nil
			}
			for _, s := range list {
				fmt.Fprintf(out, "%s  %4d messages  updated %s\n", s.ID, s.MessageCount, s.UpdatedAt.Local().Format(time.DateTime))
			}
			return nil
		})
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show session stats and transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd.Context(), func(ctx context.Context, _ *config.AppConfig, st *storage) error {
			sess, err := st.repo.Load(ctx, args[0])
			if err != nil {
				return err
			}
			stats := conversation.SessionStats(sess)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session:        %s\n", stats.SessionID)
			fmt.Fprintf(out, "Created:        %s\n", stats.CreatedAt.Local().Format(time.DateTime))
			fmt.Fprintf(out, "Messages:       %d (user %d, assistant %d)\n", stats.TotalMessages, stats.UserMessages, stats.AssistantMessages)
			fmt.Fprintf(out, "Memory items:   %d\n", stats.MemoryItems)
			fmt.Fprintf(out, "Context files:  %d\n", stats.ContextFiles)
			fmt.Fprintf(out, "Duration:       %s\n\n", stats.Duration.Truncate(time.Second))

			transcript, err := conversation.Export(sess, conversation.FormatText)
			if err != nil {
				return err
			}
			_, err = out.Write(transcript)
			return err
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd.Context(), func(ctx context.Context, _ *config.AppConfig, st *storage) error {
			if err := st.repo.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
			return nil
		})
	},
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a session as txt, md, json or html",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd.Context(), func(ctx context.Context, _ *config.AppConfig, st *storage) error {
			sess, err := st.repo.Load(ctx, args[0])
			if err != nil {
				return err
			}
			data, err := conversation.Export(sess, exportFormat)
			if err != nil {
				return err
			}
			if exportOutput == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(exportOutput, data, 0644); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", sess.ID, exportOutput)
			return nil
		})
	},
}

func init() {
	sessionsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", conversation.FormatText, "export format: txt, md, json or html")
	sessionsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd, sessionsExportCmd)
	rootCmd.AddCommand(sessionsCmd)
}
