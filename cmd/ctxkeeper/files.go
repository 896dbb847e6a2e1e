package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/ctxkeeper/internal/config"
	"github.com/sandevgo/ctxkeeper/internal/service/budget"
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Inspect context files",
}

var filesListCmd = &cobra.Command{
	Use:   "list [category]",
	Short: "List context files, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category := ""
		if len(args) == 1 {
			category = args[0]
		}
		return withStorage(cmd.Context(), func(ctx context.Context, _ *config.AppConfig, st *storage) error {
			entries, err := st.files.List(ctx, category)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No context files")
				return nil
			}
			for _, e := range entries {
				cat := e.Category
				if cat == "" {
					cat = "-"
				}
				fmt.Fprintf(out, "%-40s %-16s %8d  %s\n", e.Name, cat, e.Size, e.Modified.Local().Format(time.DateTime))
			}
			return nil
		})
	},
}

var filesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a context file with its stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd.Context(), func(ctx context.Context, cfg *config.AppConfig, st *storage) error {
			est := budget.NewEstimator(cfg.CharsPerToken, cfg.MessageOverhead)
			stats, err := st.files.Stats(ctx, args[0], est)
			if err != nil {
				return err
			}
			content, err := st.files.Load(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d chars, %d words, %d lines, ~%d tokens\n\n",
				stats.Name, stats.Characters, stats.Words, stats.Lines, stats.EstimatedTokens)
			fmt.Fprintln(out, content)
			return nil
		})
	},
}

var filesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search context files for text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd.Context(), func(ctx context.Context, _ *config.AppConfig, st *storage) error {
			hits, err := st.files.Search(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintf(out, "No matches for %q\n", args[0])
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(out, "%s\n  %s\n", h.File, h.Snippet)
			}
			return nil
		})
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a context file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd.Context(), func(ctx context.Context, _ *config.AppConfig, st *storage) error {
			if err := st.files.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		})
	},
}

func init() {
	filesCmd.AddCommand(filesListCmd, filesShowCmd, filesSearchCmd, filesDeleteCmd)
	rootCmd.AddCommand(filesCmd)
}
